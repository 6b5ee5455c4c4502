package model

import (
	"time"

	"github.com/google/uuid"
)

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type User struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type ProjectRequest struct {
	Name   string `json:"name" binding:"required"`
	Client string `json:"client"`
}

type RuleRequest struct {
	Query     string     `json:"query" binding:"required"`
	ProjectID *uuid.UUID `json:"project_id"`
	Attended  *bool      `json:"attended"`
	Weight    float64    `json:"weight"`
	Enabled   *bool      `json:"enabled"`
}

type RulePreviewRequest struct {
	Query     string     `json:"query" binding:"required"`
	ProjectID *uuid.UUID `json:"project_id"`
	Start     string     `json:"start"`
	End       string     `json:"end"`
}

type ReclassifyRequest struct {
	ProjectID *uuid.UUID `json:"project_id"`
	Skip      bool       `json:"skip"`
	Reason    string     `json:"reason"`
}

type ApplyRulesRequest struct {
	Start  string `json:"start"`
	End    string `json:"end"`
	DryRun bool   `json:"dry_run"`
}

type RecalculateRequest struct {
	Date  string `json:"date"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// RuleMatch is one previewed match for a candidate rule query.
type RuleMatch struct {
	EventID   uuid.UUID `json:"event_id"`
	Title     string    `json:"title"`
	StartTime time.Time `json:"start_time"`
}

// RuleConflict flags a previewed match that is already classified elsewhere.
type RuleConflict struct {
	EventID          uuid.UUID  `json:"event_id"`
	CurrentProjectID *uuid.UUID `json:"current_project_id"`
	CurrentSource    string     `json:"current_source"`
	ProposedProject  *uuid.UUID `json:"proposed_project_id"`
}

type RulePreview struct {
	Matches   []RuleMatch    `json:"matches"`
	Conflicts []RuleConflict `json:"conflicts"`
	Stats     PreviewStats   `json:"stats"`
}

type PreviewStats struct {
	TotalMatches    int `json:"total_matches"`
	AlreadyCorrect  int `json:"already_correct"`
	WouldChange     int `json:"would_change"`
	ManualConflicts int `json:"manual_conflicts"`
}
