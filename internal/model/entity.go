package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ClassificationStatus string

const (
	StatusPending    ClassificationStatus = "pending"
	StatusClassified ClassificationStatus = "classified"
	StatusSkipped    ClassificationStatus = "skipped"
)

type ClassificationSource string

const (
	SourceManual ClassificationSource = "manual"
	SourceRule   ClassificationSource = "rule"
	SourceLLM    ClassificationSource = "llm"
)

// Time entry sources. Calendar entries are owned by the reconciler; manual
// and import entries carry user edits from the start.
const (
	EntrySourceManual   = "manual"
	EntrySourceCalendar = "calendar"
	EntrySourceImport   = "import"
)

type Member struct {
	ID       int    `gorm:"primaryKey" json:"id"`
	Username string `gorm:"uniqueIndex" json:"username"`
	Password string `json:"-"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

type Project struct {
	ID        uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	UserID    int       `gorm:"index" json:"user_id"`
	Name      string    `json:"name"`
	Client    string    `json:"client"`
	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"created_at"`
}

// StringList stores a JSON array of strings in a single column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	return string(data), err
}

func (l *StringList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("scan StringList: unsupported type %T", src)
	}
}

// UUIDList stores a JSON array of UUIDs in a single column.
type UUIDList []uuid.UUID

func (l UUIDList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	return string(data), err
}

func (l *UUIDList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("scan UUIDList: unsupported type %T", src)
	}
}

// CalendarEvent is a synced calendar event plus its mutable classification
// state. Ingestion creates events; only the classifier services and direct
// user action mutate the classification triple. project_id is set iff
// status = classified.
type CalendarEvent struct {
	ID             uuid.UUID  `gorm:"type:char(36);primaryKey" json:"id"`
	UserID         int        `gorm:"index:idx_events_user_start" json:"user_id"`
	CalendarID     string     `json:"calendar_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Attendees      StringList `gorm:"type:json" json:"attendees"`
	StartTime      time.Time  `gorm:"index:idx_events_user_start" json:"start_time"`
	EndTime        time.Time  `json:"end_time"`
	IsRecurring    bool       `json:"is_recurring"`
	ResponseStatus string     `json:"response_status"`
	Transparency   string     `json:"transparency"`

	Status      ClassificationStatus  `gorm:"type:varchar(16);default:pending" json:"status"`
	ProjectID   *uuid.UUID            `gorm:"type:char(36)" json:"project_id"`
	Source      *ClassificationSource `gorm:"type:varchar(16)" json:"source"`
	Confidence  *float64              `json:"confidence"`
	NeedsReview bool                  `json:"needs_review"`
	Attended    *bool                 `json:"attended"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ClassificationRule carries exactly one target: a project for the project
// dimension, or an attended flag for the attendance dimension.
type ClassificationRule struct {
	ID        uuid.UUID  `gorm:"type:char(36);primaryKey" json:"id"`
	UserID    int        `gorm:"index" json:"user_id"`
	Query     string     `json:"query"`
	ProjectID *uuid.UUID `gorm:"type:char(36)" json:"project_id"`
	Attended  *bool      `json:"attended"`
	Weight    float64    `gorm:"default:1" json:"weight"`
	IsEnabled bool       `gorm:"default:true" json:"is_enabled"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ClassificationOverride is an append-only record of a user correcting an
// automatic classification. Consumed externally for rule suggestion mining.
type ClassificationOverride struct {
	ID            uuid.UUID  `gorm:"type:char(36);primaryKey" json:"id"`
	EventID       uuid.UUID  `gorm:"type:char(36);index" json:"event_id"`
	UserID        int        `gorm:"index" json:"user_id"`
	FromProjectID *uuid.UUID `gorm:"type:char(36)" json:"from_project_id"`
	ToProjectID   *uuid.UUID `gorm:"type:char(36)" json:"to_project_id"`
	FromSource    string     `json:"from_source"`
	Reason        string     `json:"reason"`
	CreatedAt     time.Time  `json:"created_at"`
}

// TimeEntry is one billable entry per (user, project, date). Hours and
// Description are user-visible and may be user-edited; the computed_* block
// belongs to the reconciler and records how the value was derived.
type TimeEntry struct {
	ID        uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	UserID    int       `gorm:"uniqueIndex:uk_entries_user_project_date" json:"user_id"`
	ProjectID uuid.UUID `gorm:"type:char(36);uniqueIndex:uk_entries_user_project_date" json:"project_id"`
	Date      string    `gorm:"type:date;uniqueIndex:uk_entries_user_project_date" json:"date"`

	Hours       float64 `json:"hours"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Source      string  `gorm:"type:varchar(16);default:calendar" json:"source"`

	IsPinned     bool       `json:"is_pinned"`
	IsLocked     bool       `json:"is_locked"`
	InvoiceID    *uuid.UUID `gorm:"type:char(36)" json:"invoice_id"`
	IsStale      bool       `json:"is_stale"`
	HasUserEdits bool       `json:"has_user_edits"`

	ComputedHours        float64  `json:"computed_hours"`
	ComputedTitle        string   `json:"computed_title"`
	ComputedDescription  string   `json:"computed_description"`
	CalculationDetails   string   `gorm:"type:json" json:"calculation_details"`
	ContributingEventIDs UUIDList `gorm:"type:json" json:"contributing_event_ids"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Protected reports whether reconciliation may delete this entry. Pinned,
// locked, and invoiced entries survive as stale-zeroed rows instead.
func (e *TimeEntry) Protected() bool {
	return e.IsPinned || e.IsLocked || e.InvoiceID != nil
}

func (Member) TableName() string                 { return "members" }
func (Project) TableName() string                { return "projects" }
func (CalendarEvent) TableName() string          { return "calendar_events" }
func (ClassificationRule) TableName() string     { return "classification_rules" }
func (ClassificationOverride) TableName() string { return "classification_overrides" }
func (TimeEntry) TableName() string              { return "time_entries" }
