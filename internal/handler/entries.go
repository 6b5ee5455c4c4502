package handler

import (
	"errors"
	"net/http"
	"time"

	"timetally/internal/middleware"
	"timetally/internal/model"
	"timetally/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type EntryHandler struct {
	entries    *service.TimeEntryService
	reconciler *service.Reconciler
}

func NewEntryHandler(entries *service.TimeEntryService, reconciler *service.Reconciler) *EntryHandler {
	return &EntryHandler{entries: entries, reconciler: reconciler}
}

// GET /api/entries?from=2026-01-01&to=2026-01-31&project_id=...
func (h *EntryHandler) List(c *gin.Context) {
	var from, to *string
	if s := c.Query("from"); s != "" {
		from = &s
	}
	if s := c.Query("to"); s != "" {
		to = &s
	}
	var projectID *uuid.UUID
	if s := c.Query("project_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project_id"})
			return
		}
		projectID = &id
	}
	entries, err := h.entries.List(c.Request.Context(), middleware.UserID(c), from, to, projectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entries)
}

// POST /api/entries/recalculate — one date or an inclusive range. Range
// failures name the failing date; earlier days stay committed.
func (h *EntryHandler) Recalculate(c *gin.Context) {
	var req model.RecalculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	userID := middleware.UserID(c)
	ctx := c.Request.Context()

	var err error
	switch {
	case req.Date != "":
		var day time.Time
		day, err = time.Parse("2006-01-02", req.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date"})
			return
		}
		err = h.reconciler.RecalculateForDate(ctx, userID, day)
	case req.Start != "" && req.End != "":
		var start, end time.Time
		start, err = time.Parse("2006-01-02", req.Start)
		if err == nil {
			end, err = time.Parse("2006-01-02", req.End)
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date range"})
			return
		}
		if end.Before(start) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "end before start"})
			return
		}
		err = h.reconciler.RecalculateForDateRange(ctx, userID, start, end)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "date or start+end required"})
		return
	}

	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrConcurrentModification) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GET /api/entries/computed?project_id=...&date=2026-01-05 — read-only
// preview of what reconciliation would produce.
func (h *EntryHandler) ComputedPreview(c *gin.Context) {
	projectID, err := uuid.Parse(c.Query("project_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project_id"})
		return
	}
	day, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date"})
		return
	}
	entry, err := h.reconciler.ComputeForProjectAndDate(c.Request.Context(), middleware.UserID(c), projectID, day)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if entry == nil {
		c.JSON(http.StatusOK, gin.H{"entry": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": entry})
}

type entryCreateRequest struct {
	ProjectID   uuid.UUID `json:"project_id" binding:"required"`
	Date        string    `json:"date" binding:"required"`
	Hours       float64   `json:"hours"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
}

// POST /api/entries — manual entry, outside the computed flow.
func (h *EntryHandler) Create(c *gin.Context) {
	var req entryCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date"})
		return
	}
	entry, err := h.entries.CreateManual(c.Request.Context(), middleware.UserID(c), req.ProjectID, req.Date, req.Hours, req.Title, req.Description)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrEntryExists) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entry)
}

type entryEditRequest struct {
	Hours       *float64 `json:"hours"`
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
}

// PUT /api/entries/:id — user edit of the visible fields. Sets has_user_edits
// so reconciliation preserves them afterwards.
func (h *EntryHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req entryEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	entry, err := h.entries.UpdateUserFields(c.Request.Context(), middleware.UserID(c), id, req.Hours, req.Title, req.Description)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, service.ErrEntryNotFound):
			status = http.StatusNotFound
		case errors.Is(err, service.ErrEntryInvoiced):
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entry)
}

type entryProtectionRequest struct {
	Pinned *bool `json:"pinned"`
	Locked *bool `json:"locked"`
}

// PUT /api/entries/:id/protection
func (h *EntryHandler) SetProtection(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req entryProtectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	entry, err := h.entries.SetProtection(c.Request.Context(), middleware.UserID(c), id, req.Pinned, req.Locked)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrEntryNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entry)
}
