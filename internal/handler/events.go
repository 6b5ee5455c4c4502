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

type EventHandler struct {
	events     *service.EventService
	classifier *service.ClassifierService
}

func NewEventHandler(events *service.EventService, classifier *service.ClassifierService) *EventHandler {
	return &EventHandler{events: events, classifier: classifier}
}

// GET /api/events?from=2026-01-01&to=2026-01-31&status=pending
func (h *EventHandler) List(c *gin.Context) {
	from, to := parseDateRange(c.Query("from"), c.Query("to"))
	var status *model.ClassificationStatus
	if s := c.Query("status"); s != "" {
		st := model.ClassificationStatus(s)
		status = &st
	}
	events, err := h.events.List(c.Request.Context(), middleware.UserID(c), from, to, status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, events)
}

// GET /api/events/:id
func (h *EventHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	ev, err := h.events.Get(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrEventNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ev)
}

// PUT /api/events/:id/classification — manual reclassification. The event's
// day is recomputed before the response returns.
func (h *EventHandler) Reclassify(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req model.ReclassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	ev, err := h.events.Reclassify(c.Request.Context(), middleware.UserID(c), id, req)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, service.ErrEventNotFound):
			status = http.StatusNotFound
		case errors.Is(err, service.ErrConcurrentModification):
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ev)
}

// GET /api/events/:id/explain
func (h *EventHandler) Explain(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	exp, err := h.classifier.Explain(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrEventNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, exp)
}

// parseDateRange turns optional YYYY-MM-DD bounds into half-open time bounds.
// Unparseable values are treated as absent.
func parseDateRange(start, end string) (*time.Time, *time.Time) {
	var from, to *time.Time
	if t, err := time.Parse("2006-01-02", start); err == nil {
		from = &t
	}
	if t, err := time.Parse("2006-01-02", end); err == nil {
		e := t.AddDate(0, 0, 1)
		to = &e
	}
	return from, to
}
