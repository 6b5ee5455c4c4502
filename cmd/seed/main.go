package main

import (
	"flag"
	"log"
	"time"

	"timetally/internal/config"
	"timetally/internal/logger"
	"timetally/internal/model"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Creates the schema and a demo account with sample projects, rules, and
// events. Safe to rerun: existing rows are left alone.
func main() {
	configFile := flag.String("config", "etc/config-dev.yaml", "config file")
	password := flag.String("password", "demo123", "demo account password")
	flag.Parse()

	logger.Init(config.LogConfig{Level: "info", Console: true})

	cfg := config.Load(*configFile)
	db, err := cfg.OpenGormDB()
	if err != nil {
		log.Fatal("db connect failed: ", err)
	}

	err = db.AutoMigrate(
		&model.Member{},
		&model.Project{},
		&model.CalendarEvent{},
		&model.ClassificationRule{},
		&model.ClassificationOverride{},
		&model.TimeEntry{},
	)
	if err != nil {
		log.Fatal("migrate failed: ", err)
	}
	logger.Info("schema migrated")

	var demo model.Member
	err = db.Where("username = ?", "demo").First(&demo).Error
	if err == nil {
		logger.Info("demo account already present, skipping seed", "uid", demo.ID)
		return
	}
	if err != gorm.ErrRecordNotFound {
		log.Fatal("lookup demo account: ", err)
	}

	hash, _ := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	demo = model.Member{Username: "demo", Password: string(hash), Name: "Demo", Role: "user"}
	if err := db.Create(&demo).Error; err != nil {
		log.Fatal("create demo account: ", err)
	}

	acme := model.Project{ID: uuid.New(), UserID: demo.ID, Name: "Acme Website", Client: "Acme Corp"}
	internal := model.Project{ID: uuid.New(), UserID: demo.ID, Name: "Internal", Client: ""}
	if err := db.Create([]*model.Project{&acme, &internal}).Error; err != nil {
		log.Fatal("create projects: ", err)
	}

	attended := true
	notAttended := false
	rules := []model.ClassificationRule{
		{ID: uuid.New(), UserID: demo.ID, Query: `domain:acme.com`, ProjectID: &acme.ID, Weight: 2, IsEnabled: true},
		{ID: uuid.New(), UserID: demo.ID, Query: `"acme"`, ProjectID: &acme.ID, Weight: 1, IsEnabled: true},
		{ID: uuid.New(), UserID: demo.ID, Query: `title:standup`, ProjectID: &internal.ID, Weight: 1, IsEnabled: true},
		{ID: uuid.New(), UserID: demo.ID, Query: `response:declined`, Attended: &notAttended, Weight: 2, IsEnabled: true},
		{ID: uuid.New(), UserID: demo.ID, Query: `response:accepted`, Attended: &attended, Weight: 1, IsEnabled: true},
	}
	if err := db.Create(&rules).Error; err != nil {
		log.Fatal("create rules: ", err)
	}

	day := time.Now().UTC().Truncate(24 * time.Hour)
	events := []model.CalendarEvent{
		{
			ID: uuid.New(), UserID: demo.ID, CalendarID: "primary",
			Title:     "Acme design review",
			Attendees: model.StringList{"pm@acme.com", "demo@example.com"},
			StartTime: day.Add(9 * time.Hour), EndTime: day.Add(10 * time.Hour),
			ResponseStatus: "accepted",
		},
		{
			ID: uuid.New(), UserID: demo.ID, CalendarID: "primary",
			Title:     "Daily standup",
			StartTime: day.Add(10 * time.Hour), EndTime: day.Add(10*time.Hour + 15*time.Minute),
			IsRecurring: true, ResponseStatus: "accepted",
		},
		{
			ID: uuid.New(), UserID: demo.ID, CalendarID: "primary",
			Title:     "All-hands (skipping)",
			StartTime: day.Add(15 * time.Hour), EndTime: day.Add(16 * time.Hour),
			ResponseStatus: "declined",
		},
	}
	if err := db.Create(&events).Error; err != nil {
		log.Fatal("create events: ", err)
	}

	logger.Info("seed done", "uid", demo.ID, "projects", 2, "rules", len(rules), "events", len(events))
}
