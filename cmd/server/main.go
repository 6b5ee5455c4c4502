package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"timetally/internal/aggregate"
	"timetally/internal/config"
	"timetally/internal/handler"
	"timetally/internal/logger"
	"timetally/internal/middleware"
	"timetally/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
)

func main() {
	configFile := flag.String("config", "", "config file path (e.g. etc/config-dev.yaml)")
	flag.Parse()

	cfg := config.Load(*configFile)
	logger.Init(cfg.Log)
	middleware.JWTSecret = []byte(cfg.Server.JWTSecret)

	db, err := cfg.OpenGormDB()
	if err != nil {
		slog.Error("db connect failed", "err", err)
		os.Exit(1)
	}

	authSvc := service.NewAuthService(db)
	projectSvc := service.NewProjectService(db)
	ruleSvc := service.NewRuleService(db)
	entrySvc := service.NewTimeEntryService(db)
	eventSvc := service.NewEventService(db, ruleSvc)
	reconciler := service.NewReconciler(eventSvc, entrySvc, aggregate.Policy{
		IncrementMinutes: cfg.Rounding.IncrementMinutes,
	})
	eventSvc.SetReconciler(reconciler)

	var suggester service.Suggester
	if cfg.Suggester.Enabled {
		suggester = service.NewLLMSuggester(cfg.Suggester.BaseURL, cfg.Suggester.APIKey, cfg.Suggester.Model)
		slog.Info("suggester enabled", "model", cfg.Suggester.Model)
	}
	classifierSvc := service.NewClassifierService(db, ruleSvc, eventSvc, reconciler, suggester)

	authH := handler.NewAuthHandler(authSvc)
	projectH := handler.NewProjectHandler(projectSvc)
	ruleH := handler.NewRuleHandler(ruleSvc, classifierSvc)
	eventH := handler.NewEventHandler(eventSvc, classifierSvc)
	entryH := handler.NewEntryHandler(entrySvc, reconciler)

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	r.POST("/api/login", authH.Login)
	api := r.Group("/api", middleware.JWTAuth())

	api.GET("/projects", projectH.List)
	api.POST("/projects", projectH.Create)
	api.DELETE("/projects/:id", projectH.Archive)

	api.GET("/rules", ruleH.List)
	api.POST("/rules", ruleH.Create)
	api.PUT("/rules/:id", ruleH.Update)
	api.DELETE("/rules/:id", ruleH.Delete)
	api.POST("/rules/preview", ruleH.Preview)
	api.POST("/rules/apply", ruleH.Apply)
	api.GET("/overrides", ruleH.ListOverrides)

	api.GET("/events", eventH.List)
	api.GET("/events/:id", eventH.Get)
	api.PUT("/events/:id/classification", eventH.Reclassify)
	api.GET("/events/:id/explain", eventH.Explain)

	api.GET("/entries", entryH.List)
	api.POST("/entries", entryH.Create)
	api.POST("/entries/recalculate", entryH.Recalculate)
	api.GET("/entries/computed", entryH.ComputedPreview)
	api.PUT("/entries/:id", entryH.Update)
	api.PUT("/entries/:id/protection", entryH.SetProtection)

	if cfg.Recalc.Cron != "" {
		c := cron.New()
		_, err := c.AddFunc(cfg.Recalc.Cron, func() {
			recalcAll(authSvc, reconciler)
		})
		if err != nil {
			slog.Error("bad recalc cron", "cron", cfg.Recalc.Cron, "err", err)
			os.Exit(1)
		}
		c.Start()
		defer c.Stop()
		slog.Info("scheduled recalculation enabled", "cron", cfg.Recalc.Cron)
	}

	slog.Info("server starting", "addr", cfg.Addr())
	if err := r.Run(cfg.Addr()); err != nil {
		slog.Error("server failed", "err", err)
	}
}

// recalcAll recomputes today's entries for every member. Per-user failures
// are logged and skipped so one bad day cannot stall the sweep.
func recalcAll(auth *service.AuthService, reconciler *service.Reconciler) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	members, err := auth.ListMembers(ctx)
	if err != nil {
		slog.Error("recalc sweep: list members failed", "err", err)
		return
	}
	today := time.Now().UTC()
	for _, m := range members {
		if err := reconciler.RecalculateForDate(ctx, m.ID, today); err != nil {
			slog.Warn("recalc sweep: user failed", "uid", m.ID, "err", err)
		}
	}
	slog.Info("recalc sweep done", "users", len(members))
}
