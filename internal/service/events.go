package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"timetally/internal/logger"
	"timetally/internal/model"
	"timetally/internal/query"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrEventNotFound = errors.New("event not found")

type EventService struct {
	db         *gorm.DB
	rules      *RuleService
	reconciler *Reconciler
}

func NewEventService(db *gorm.DB, rules *RuleService) *EventService {
	return &EventService{db: db, rules: rules}
}

// SetReconciler breaks the construction cycle: the reconciler reads events
// through this service, and reclassification triggers the reconciler.
func (s *EventService) SetReconciler(r *Reconciler) { s.reconciler = r }

func (s *EventService) Get(ctx context.Context, userID int, eventID uuid.UUID) (*model.CalendarEvent, error) {
	var ev model.CalendarEvent
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", eventID, userID).First(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}
	return &ev, nil
}

func (s *EventService) List(ctx context.Context, userID int, from, to *time.Time, status *model.ClassificationStatus) ([]model.CalendarEvent, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if from != nil {
		q = q.Where("start_time >= ?", *from)
	}
	if to != nil {
		q = q.Where("start_time < ?", *to)
	}
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	var events []model.CalendarEvent
	if err := q.Order("start_time ASC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// ListClassifiedForDay returns classified events overlapping the given day.
// Pending and skipped events never reach aggregation.
func (s *EventService) ListClassifiedForDay(ctx context.Context, userID int, day time.Time) ([]model.CalendarEvent, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)
	var events []model.CalendarEvent
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND start_time < ? AND end_time > ?",
			userID, model.StatusClassified, dayEnd, dayStart).
		Order("start_time ASC").Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("list classified events: %w", err)
	}
	return events, nil
}

// ListForClassification returns events a rule run may touch: pending ones
// plus rule/llm-classified ones eligible for re-evaluation. Manual
// classifications are never candidates.
func (s *EventService) ListForClassification(ctx context.Context, userID int, from, to *time.Time) ([]model.CalendarEvent, error) {
	q := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("status = ? OR (status = ? AND source IN ?)",
			model.StatusPending, model.StatusClassified,
			[]model.ClassificationSource{model.SourceRule, model.SourceLLM})
	if from != nil {
		q = q.Where("start_time >= ?", *from)
	}
	if to != nil {
		q = q.Where("start_time < ?", *to)
	}
	var events []model.CalendarEvent
	if err := q.Order("start_time ASC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list classification candidates: %w", err)
	}
	return events, nil
}

// ApplyClassification persists an automatic classification decision.
func (s *EventService) ApplyClassification(ctx context.Context, ev *model.CalendarEvent) error {
	err := s.db.WithContext(ctx).Model(&model.CalendarEvent{}).
		Where("id = ? AND user_id = ?", ev.ID, ev.UserID).
		Updates(map[string]interface{}{
			"status":       ev.Status,
			"project_id":   ev.ProjectID,
			"source":       ev.Source,
			"confidence":   ev.Confidence,
			"needs_review": ev.NeedsReview,
			"attended":     ev.Attended,
		}).Error
	if err != nil {
		return fmt.Errorf("apply classification: %w", err)
	}
	return nil
}

// Reclassify applies a user decision to an event. Overriding a non-manual
// classification appends a ClassificationOverride audit record; the affected
// day (or days, when the project changed) is then recomputed.
func (s *EventService) Reclassify(ctx context.Context, userID int, eventID uuid.UUID, req model.ReclassifyRequest) (*model.CalendarEvent, error) {
	ev, err := s.Get(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}

	priorProject := ev.ProjectID
	priorSource := ""
	if ev.Source != nil {
		priorSource = string(*ev.Source)
	}

	changed := false
	switch {
	case priorProject == nil && req.ProjectID != nil,
		priorProject != nil && req.ProjectID == nil:
		changed = true
	case priorProject != nil && req.ProjectID != nil:
		changed = *priorProject != *req.ProjectID
	}

	if changed && priorSource != "" && priorSource != string(model.SourceManual) {
		o := &model.ClassificationOverride{
			EventID:       ev.ID,
			UserID:        userID,
			FromProjectID: priorProject,
			ToProjectID:   req.ProjectID,
			FromSource:    priorSource,
			Reason:        req.Reason,
		}
		if err := s.rules.RecordOverride(ctx, o); err != nil {
			return nil, err
		}
	}

	src := model.SourceManual
	ev.Source = &src
	ev.Confidence = nil
	ev.NeedsReview = false
	switch {
	case req.Skip:
		ev.Status = model.StatusSkipped
		ev.ProjectID = nil
	case req.ProjectID != nil:
		ev.Status = model.StatusClassified
		ev.ProjectID = req.ProjectID
	default:
		ev.Status = model.StatusPending
		ev.ProjectID = nil
	}

	if err := s.db.WithContext(ctx).Save(ev).Error; err != nil {
		return nil, fmt.Errorf("save event: %w", err)
	}

	day := time.Date(ev.StartTime.Year(), ev.StartTime.Month(), ev.StartTime.Day(), 0, 0, 0, 0, time.UTC)
	if err := s.reconciler.RecalculateForDate(ctx, userID, day); err != nil {
		return nil, err
	}
	logger.Info("event reclassified", "event", ev.ID, "project", ev.ProjectID, "changed", changed)
	return ev, nil
}

// View projects an event into the matcher's read-only shape.
func View(ev *model.CalendarEvent) *query.EventView {
	return &query.EventView{
		Title:        ev.Title,
		Description:  ev.Description,
		Attendees:    ev.Attendees,
		Response:     ev.ResponseStatus,
		Transparency: ev.Transparency,
		Recurring:    ev.IsRecurring,
		Calendar:     ev.CalendarID,
	}
}
