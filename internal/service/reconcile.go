package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"timetally/internal/aggregate"
	"timetally/internal/logger"
	"timetally/internal/model"

	"github.com/google/uuid"
)

// ErrConcurrentModification reports that another reconciliation already
// holds the (user, date) pair. Callers may retry with backoff.
var ErrConcurrentModification = errors.New("concurrent reconciliation for this user and date")

// EventSource is the slice of event storage reconciliation consumes.
type EventSource interface {
	ListClassifiedForDay(ctx context.Context, userID int, day time.Time) ([]model.CalendarEvent, error)
}

// EntryStore is the time entry storage contract reconciliation writes
// through. TimeEntryService is the gorm implementation.
type EntryStore interface {
	ListForDate(ctx context.Context, userID int, date string) ([]model.TimeEntry, error)
	UpsertFromComputed(ctx context.Context, userID int, date string, c aggregate.Entry) (*model.TimeEntry, error)
	MarkStale(ctx context.Context, userID int, entryID uuid.UUID) error
	Delete(ctx context.Context, userID int, entryID uuid.UUID) error
	InTx(ctx context.Context, fn func(EntryStore) error) error
}

// Reconciler recomputes stored time entries from classified events, one
// (user, date) at a time. Each pass is idempotent; concurrent passes for the
// same pair are rejected rather than interleaved.
type Reconciler struct {
	events  EventSource
	entries EntryStore
	policy  aggregate.Policy

	mu    sync.Mutex
	inUse map[string]bool
}

func NewReconciler(events EventSource, entries EntryStore, policy aggregate.Policy) *Reconciler {
	if policy.IncrementMinutes == 0 {
		policy = aggregate.DefaultPolicy()
	}
	return &Reconciler{events: events, entries: entries, policy: policy, inUse: make(map[string]bool)}
}

func (r *Reconciler) acquire(userID int, date string) (func(), error) {
	key := fmt.Sprintf("%d/%s", userID, date)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inUse[key] {
		return nil, fmt.Errorf("%w: %s", ErrConcurrentModification, key)
	}
	r.inUse[key] = true
	return func() {
		r.mu.Lock()
		delete(r.inUse, key)
		r.mu.Unlock()
	}, nil
}

// RecalculateForDate recomputes all of one user's entries for one day:
// classified events are grouped by project and aggregated, results are
// upserted, and entries whose project produced nothing this round are either
// deleted or, when protected, stale-zeroed. All writes happen in one
// transaction.
func (r *Reconciler) RecalculateForDate(ctx context.Context, userID int, day time.Time) error {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	date := dayStart.Format("2006-01-02")

	release, err := r.acquire(userID, date)
	if err != nil {
		return err
	}
	defer release()

	events, err := r.events.ListClassifiedForDay(ctx, userID, dayStart)
	if err != nil {
		return err
	}

	dayEnd := dayStart.AddDate(0, 0, 1)
	aggEvents := make([]aggregate.Event, 0, len(events))
	for _, e := range events {
		if e.ProjectID == nil {
			// Should not happen: project_id is set iff status=classified.
			logger.Warn("classified event without project", "event", e.ID)
			continue
		}
		start, end := clampToDay(e.StartTime, e.EndTime, dayStart, dayEnd)
		if !end.After(start) {
			continue
		}
		aggEvents = append(aggEvents, aggregate.Event{
			ID:        e.ID,
			ProjectID: *e.ProjectID,
			Title:     e.Title,
			Start:     start,
			End:       end,
		})
	}

	computed, err := aggregate.Compute(dayStart, aggEvents, r.policy)
	if err != nil {
		return err
	}

	return r.entries.InTx(ctx, func(tx EntryStore) error {
		seen := make(map[uuid.UUID]bool, len(computed))
		for _, c := range computed {
			seen[c.ProjectID] = true
			if _, err := tx.UpsertFromComputed(ctx, userID, date, c); err != nil {
				return err
			}
		}

		existing, err := tx.ListForDate(ctx, userID, date)
		if err != nil {
			return err
		}
		for _, entry := range existing {
			if seen[entry.ProjectID] {
				continue
			}
			// Manual and imported entries are not derived from events and are
			// never reconciliation orphans.
			if entry.Source != model.EntrySourceCalendar {
				continue
			}
			if entry.Protected() {
				if err := tx.MarkStale(ctx, userID, entry.ID); err != nil {
					return err
				}
				logger.Info("entry stale-zeroed", "entry", entry.ID, "project", entry.ProjectID, "date", date)
				continue
			}
			if err := tx.Delete(ctx, userID, entry.ID); err != nil {
				return err
			}
			logger.Info("orphaned entry deleted", "entry", entry.ID, "project", entry.ProjectID, "date", date)
		}
		return nil
	})
}

// RecalculateForDateRange walks the range one day at a time. The first
// failing day aborts the walk and is named in the error; prior days stay
// committed. Cancellation is honored between days, never mid-day.
func (r *Reconciler) RecalculateForDateRange(ctx context.Context, userID int, start, end time.Time) error {
	cur := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)

	for !cur.After(last) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.RecalculateForDate(ctx, userID, cur); err != nil {
			return fmt.Errorf("recalculate %s: %w", cur.Format("2006-01-02"), err)
		}
		cur = cur.AddDate(0, 0, 1)
	}
	return nil
}

// ComputeForProjectAndDate previews the computed entry for one project on
// one day without persisting anything. Nil when the project has no
// classified events that day.
func (r *Reconciler) ComputeForProjectAndDate(ctx context.Context, userID int, projectID uuid.UUID, day time.Time) (*aggregate.Entry, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	events, err := r.events.ListClassifiedForDay(ctx, userID, dayStart)
	if err != nil {
		return nil, err
	}

	var aggEvents []aggregate.Event
	for _, e := range events {
		if e.ProjectID == nil || *e.ProjectID != projectID {
			continue
		}
		start, end := clampToDay(e.StartTime, e.EndTime, dayStart, dayEnd)
		if !end.After(start) {
			continue
		}
		aggEvents = append(aggEvents, aggregate.Event{
			ID:        e.ID,
			ProjectID: *e.ProjectID,
			Title:     e.Title,
			Start:     start,
			End:       end,
		})
	}
	if len(aggEvents) == 0 {
		return nil, nil
	}

	computed, err := aggregate.Compute(dayStart, aggEvents, r.policy)
	if err != nil {
		return nil, err
	}
	for i := range computed {
		if computed[i].ProjectID == projectID {
			return &computed[i], nil
		}
	}
	return nil, nil
}

// clampToDay bounds an event span to the day being aggregated, so events
// crossing midnight contribute only their in-day portion.
func clampToDay(start, end, dayStart, dayEnd time.Time) (time.Time, time.Time) {
	if start.Before(dayStart) {
		start = dayStart
	}
	if end.After(dayEnd) {
		end = dayEnd
	}
	return start, end
}
