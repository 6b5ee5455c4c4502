package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"timetally/internal/aggregate"
	"timetally/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrEntryNotFound = errors.New("time entry not found")

// ErrEntryInvoiced guards user edits against invoiced entries.
var ErrEntryInvoiced = errors.New("time entry is invoiced")

// TimeEntryService is the gorm-backed EntryStore. All writes preserve the
// one-entry-per-(user, project, date) invariant via the unique index and the
// upsert path.
type TimeEntryService struct{ db *gorm.DB }

func NewTimeEntryService(db *gorm.DB) *TimeEntryService { return &TimeEntryService{db: db} }

func (s *TimeEntryService) List(ctx context.Context, userID int, from, to *string, projectID *uuid.UUID) ([]model.TimeEntry, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if from != nil {
		q = q.Where("date >= ?", *from)
	}
	if to != nil {
		q = q.Where("date <= ?", *to)
	}
	if projectID != nil {
		q = q.Where("project_id = ?", *projectID)
	}
	var entries []model.TimeEntry
	if err := q.Order("date ASC, project_id ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return entries, nil
}

func (s *TimeEntryService) ListForDate(ctx context.Context, userID int, date string) ([]model.TimeEntry, error) {
	var entries []model.TimeEntry
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND date = ?", userID, date).
		Order("project_id ASC").Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list entries for date: %w", err)
	}
	return entries, nil
}

// UpsertFromComputed writes a computed entry. A new row is created with
// source=calendar; an existing row gets only its computed block overwritten,
// plus the user-visible fields when the entry has no user edits. Identical
// recomputations are skipped entirely so repeated reconciliation is
// write-free.
func (s *TimeEntryService) UpsertFromComputed(ctx context.Context, userID int, date string, c aggregate.Entry) (*model.TimeEntry, error) {
	details, err := json.Marshal(c.Details)
	if err != nil {
		return nil, fmt.Errorf("marshal details: %w", err)
	}

	var entry model.TimeEntry
	err = s.db.WithContext(ctx).
		Where("user_id = ? AND project_id = ? AND date = ?", userID, c.ProjectID, date).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		entry = model.TimeEntry{
			ID:                   uuid.New(),
			UserID:               userID,
			ProjectID:            c.ProjectID,
			Date:                 date,
			Hours:                c.Hours,
			Title:                c.Title,
			Description:          c.Description,
			Source:               model.EntrySourceCalendar,
			ComputedHours:        c.Hours,
			ComputedTitle:        c.Title,
			ComputedDescription:  c.Description,
			CalculationDetails:   string(details),
			ContributingEventIDs: c.EventIDs,
		}
		if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
			return nil, fmt.Errorf("insert entry: %w", err)
		}
		return &entry, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load entry: %w", err)
	}

	computedInSync := entry.ComputedHours == c.Hours &&
		entry.ComputedTitle == c.Title &&
		entry.ComputedDescription == c.Description &&
		entry.CalculationDetails == string(details) &&
		!entry.IsStale
	visibleInSync := entry.HasUserEdits ||
		(entry.Hours == c.Hours && entry.Title == c.Title && entry.Description == c.Description)
	if computedInSync && visibleInSync {
		return &entry, nil
	}

	entry.ComputedHours = c.Hours
	entry.ComputedTitle = c.Title
	entry.ComputedDescription = c.Description
	entry.CalculationDetails = string(details)
	entry.ContributingEventIDs = c.EventIDs
	entry.IsStale = false
	if !entry.HasUserEdits {
		entry.Hours = c.Hours
		entry.Title = c.Title
		entry.Description = c.Description
	}
	if err := s.db.WithContext(ctx).Save(&entry).Error; err != nil {
		return nil, fmt.Errorf("update entry: %w", err)
	}
	return &entry, nil
}

// MarkStale zeroes the computed block of a protected entry whose events are
// gone and flags it for user attention. User-facing hours are untouched.
func (s *TimeEntryService) MarkStale(ctx context.Context, userID int, entryID uuid.UUID) error {
	empty, _ := json.Marshal(aggregate.Details{Events: []aggregate.EventDetail{}})
	err := s.db.WithContext(ctx).Model(&model.TimeEntry{}).
		Where("id = ? AND user_id = ?", entryID, userID).
		Updates(map[string]interface{}{
			"computed_hours":         0,
			"computed_title":         "",
			"computed_description":   "",
			"calculation_details":    string(empty),
			"contributing_event_ids": model.UUIDList{},
			"is_stale":               true,
		}).Error
	if err != nil {
		return fmt.Errorf("mark stale: %w", err)
	}
	return nil
}

func (s *TimeEntryService) Delete(ctx context.Context, userID int, entryID uuid.UUID) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", entryID, userID).
		Delete(&model.TimeEntry{})
	if res.Error != nil {
		return fmt.Errorf("delete entry: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// InTx runs fn against a store bound to one transaction. Reconciliation
// wraps each date's upserts and deletions in a single transaction.
func (s *TimeEntryService) InTx(ctx context.Context, fn func(EntryStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&TimeEntryService{db: tx})
	})
}

// ErrEntryExists guards the one-entry-per-(user, project, date) invariant on
// manual creation.
var ErrEntryExists = errors.New("time entry already exists for this project and date")

// CreateManual inserts a user-authored entry. Manual entries start with user
// edits set, so reconciliation never overwrites their visible fields.
func (s *TimeEntryService) CreateManual(ctx context.Context, userID int, projectID uuid.UUID, date string, hours float64, title, description string) (*model.TimeEntry, error) {
	var existing model.TimeEntry
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND project_id = ? AND date = ?", userID, projectID, date).
		First(&existing).Error
	if err == nil {
		return nil, ErrEntryExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load entry: %w", err)
	}

	entry := model.TimeEntry{
		ID:           uuid.New(),
		UserID:       userID,
		ProjectID:    projectID,
		Date:         date,
		Hours:        hours,
		Title:        title,
		Description:  description,
		Source:       model.EntrySourceManual,
		HasUserEdits: true,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, fmt.Errorf("insert entry: %w", err)
	}
	return &entry, nil
}

// UpdateUserFields applies a user edit to hours/title/description and marks
// the entry as user-edited so reconciliation stops overwriting the visible
// values.
func (s *TimeEntryService) UpdateUserFields(ctx context.Context, userID int, entryID uuid.UUID, hours *float64, title, description *string) (*model.TimeEntry, error) {
	var entry model.TimeEntry
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", entryID, userID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load entry: %w", err)
	}
	if entry.InvoiceID != nil {
		return nil, ErrEntryInvoiced
	}

	if hours != nil {
		entry.Hours = *hours
	}
	if title != nil {
		entry.Title = *title
	}
	if description != nil {
		entry.Description = *description
	}
	entry.HasUserEdits = true
	if err := s.db.WithContext(ctx).Save(&entry).Error; err != nil {
		return nil, fmt.Errorf("update entry: %w", err)
	}
	return &entry, nil
}

// SetProtection toggles the pin/lock flags.
func (s *TimeEntryService) SetProtection(ctx context.Context, userID int, entryID uuid.UUID, pinned, locked *bool) (*model.TimeEntry, error) {
	var entry model.TimeEntry
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", entryID, userID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load entry: %w", err)
	}
	if pinned != nil {
		entry.IsPinned = *pinned
	}
	if locked != nil {
		entry.IsLocked = *locked
	}
	if err := s.db.WithContext(ctx).Save(&entry).Error; err != nil {
		return nil, fmt.Errorf("update entry: %w", err)
	}
	return &entry, nil
}
