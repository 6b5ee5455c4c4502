package handler

import (
	"errors"
	"net/http"
	"time"

	"timetally/internal/middleware"
	"timetally/internal/model"
	"timetally/internal/query"
	"timetally/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type RuleHandler struct {
	rules      *service.RuleService
	classifier *service.ClassifierService
}

func NewRuleHandler(rules *service.RuleService, classifier *service.ClassifierService) *RuleHandler {
	return &RuleHandler{rules: rules, classifier: classifier}
}

// GET /api/rules
func (h *RuleHandler) List(c *gin.Context) {
	rules, err := h.rules.List(c.Request.Context(), middleware.UserID(c), false)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rules)
}

// POST /api/rules
func (h *RuleHandler) Create(c *gin.Context) {
	var req model.RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	rule, err := h.rules.Create(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		status := http.StatusInternalServerError
		var parseErr *query.ParseError
		if errors.As(err, &parseErr) || errors.Is(err, service.ErrRuleTarget) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rule)
}

// PUT /api/rules/:id
func (h *RuleHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req model.RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	rule, err := h.rules.Update(c.Request.Context(), middleware.UserID(c), id, req)
	if err != nil {
		status := http.StatusInternalServerError
		var parseErr *query.ParseError
		switch {
		case errors.Is(err, service.ErrRuleNotFound):
			status = http.StatusNotFound
		case errors.As(err, &parseErr), errors.Is(err, service.ErrRuleTarget):
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rule)
}

// DELETE /api/rules/:id
func (h *RuleHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := h.rules.Delete(c.Request.Context(), middleware.UserID(c), id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrRuleNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GET /api/overrides?since=2026-01-01 — the manual-reclassification audit
// log, mined externally for rule suggestions.
func (h *RuleHandler) ListOverrides(c *gin.Context) {
	since := time.Time{}
	if t, err := time.Parse("2006-01-02", c.Query("since")); err == nil {
		since = t
	}
	overrides, err := h.rules.ListOverrides(c.Request.Context(), middleware.UserID(c), since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, overrides)
}

// POST /api/rules/preview — dry evaluation of a candidate query. A malformed
// query is a hard 400 here.
func (h *RuleHandler) Preview(c *gin.Context) {
	var req model.RulePreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	preview, err := h.classifier.PreviewRule(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		status := http.StatusInternalServerError
		var parseErr *query.ParseError
		if errors.As(err, &parseErr) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, preview)
}

// POST /api/rules/apply
func (h *RuleHandler) Apply(c *gin.Context) {
	var req model.ApplyRulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	from, to := parseDateRange(req.Start, req.End)
	result, err := h.classifier.ApplyRules(c.Request.Context(), middleware.UserID(c), from, to, req.DryRun)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "partial": result})
		return
	}
	c.JSON(http.StatusOK, result)
}
