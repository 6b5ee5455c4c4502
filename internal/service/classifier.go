package service

import (
	"context"
	"fmt"
	"time"

	"timetally/internal/classify"
	"timetally/internal/logger"
	"timetally/internal/model"
	"timetally/internal/query"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ClassifierService runs the scoring classifier over stored events. The
// pure scoring lives in internal/classify; this layer owns rule snapshots,
// suggester calls, persistence, and recalculation fan-out.
type ClassifierService struct {
	db         *gorm.DB
	rules      *RuleService
	events     *EventService
	reconciler *Reconciler
	suggester  Suggester // nil when not configured
}

func NewClassifierService(db *gorm.DB, rules *RuleService, events *EventService, reconciler *Reconciler, suggester Suggester) *ClassifierService {
	return &ClassifierService{db: db, rules: rules, events: events, reconciler: reconciler, suggester: suggester}
}

// ApplyResult summarizes one rule application run.
type ApplyResult struct {
	Classified []AppliedEvent     `json:"classified"`
	Skipped    []uuid.UUID        `json:"skipped"`
	Pending    int                `json:"pending"`
	RuleErrors []AppliedRuleError `json:"rule_errors,omitempty"`
}

type AppliedEvent struct {
	EventID     uuid.UUID `json:"event_id"`
	ProjectID   uuid.UUID `json:"project_id"`
	Confidence  float64   `json:"confidence"`
	NeedsReview bool      `json:"needs_review"`
	Source      string    `json:"source"`
}

// AppliedRuleError flags a rule whose query failed to parse during the run.
// The rule is skipped, not fatal; operators need to see it.
type AppliedRuleError struct {
	RuleID string `json:"rule_id"`
	Error  string `json:"error"`
}

// ApplyRules classifies pending events plus rule/llm-classified ones
// eligible for re-evaluation, then recalculates every affected day. Rules
// are snapshotted once for the whole batch. Manual classifications are
// untouchable throughout.
func (s *ClassifierService) ApplyRules(ctx context.Context, userID int, from, to *time.Time, dryRun bool) (*ApplyResult, error) {
	rules, err := s.rules.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	events, err := s.events.ListForClassification(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}
	projects, err := s.listProjects(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := &ApplyResult{}
	seenRuleErrors := make(map[string]bool)
	affectedDays := make(map[time.Time]bool)

	for i := range events {
		ev := &events[i]
		attVote, projVote := s.suggest(ctx, ev, projects)

		view := View(ev)
		source := ""
		if ev.Source != nil {
			source = string(*ev.Source)
		}
		attendance, project := classify.ClassifyEvent(view, source, rules, attVote, projVote)

		for _, re := range append(attendance.RuleErrors, project.RuleErrors...) {
			if !seenRuleErrors[re.RuleID] {
				seenRuleErrors[re.RuleID] = true
				result.RuleErrors = append(result.RuleErrors, AppliedRuleError{RuleID: re.RuleID, Error: re.Err.Error()})
				logger.Warn("rule query failed to parse", "rule", re.RuleID, "err", re.Err)
			}
		}
		if attendance.ManualHold || project.ManualHold {
			continue
		}

		if attendance.Decided {
			attended := attendance.Target == classify.TargetAttended
			ev.Attended = &attended
			if !attended {
				src := model.SourceRule
				if attendance.FromLLM {
					src = model.SourceLLM
				}
				ev.Status = model.StatusSkipped
				ev.ProjectID = nil
				ev.Source = &src
				ev.Confidence = &attendance.Confidence
				ev.NeedsReview = attendance.NeedsReview
				result.Skipped = append(result.Skipped, ev.ID)
				if !dryRun {
					if err := s.events.ApplyClassification(ctx, ev); err != nil {
						return nil, err
					}
					affectedDays[dayOf(ev.StartTime)] = true
				}
				continue
			}
		}

		if !project.Decided {
			result.Pending++
			continue
		}

		projectID, err := uuid.Parse(project.Target)
		if err != nil {
			result.Pending++
			continue
		}
		src := model.SourceRule
		if project.FromLLM {
			src = model.SourceLLM
		}
		ev.Status = model.StatusClassified
		ev.ProjectID = &projectID
		ev.Source = &src
		ev.Confidence = &project.Confidence
		ev.NeedsReview = project.NeedsReview

		result.Classified = append(result.Classified, AppliedEvent{
			EventID:     ev.ID,
			ProjectID:   projectID,
			Confidence:  project.Confidence,
			NeedsReview: project.NeedsReview,
			Source:      string(src),
		})
		if !dryRun {
			if err := s.events.ApplyClassification(ctx, ev); err != nil {
				return nil, err
			}
			affectedDays[dayOf(ev.StartTime)] = true
		}
	}

	if !dryRun {
		for day := range affectedDays {
			if err := s.reconciler.RecalculateForDate(ctx, userID, day); err != nil {
				return result, fmt.Errorf("recalculate %s: %w", day.Format("2006-01-02"), err)
			}
		}
	}
	return result, nil
}

// Explain classifies one event without persisting and returns the full vote
// trail for both dimensions.
type Explanation struct {
	EventID    uuid.UUID       `json:"event_id"`
	Attendance classify.Result `json:"attendance"`
	Project    classify.Result `json:"project"`
}

func (s *ClassifierService) Explain(ctx context.Context, userID int, eventID uuid.UUID) (*Explanation, error) {
	ev, err := s.events.Get(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}
	rules, err := s.rules.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	projects, err := s.listProjects(ctx, userID)
	if err != nil {
		return nil, err
	}

	attVote, projVote := s.suggest(ctx, ev, projects)
	source := ""
	if ev.Source != nil {
		source = string(*ev.Source)
	}
	attendance, project := classify.ClassifyEvent(View(ev), source, rules, attVote, projVote)
	return &Explanation{EventID: ev.ID, Attendance: attendance, Project: project}, nil
}

// PreviewRule evaluates a candidate query against stored events without
// applying anything. A malformed query is a hard error here, unlike the
// skip-and-report path during rule application.
func (s *ClassifierService) PreviewRule(ctx context.Context, userID int, req model.RulePreviewRequest) (*model.RulePreview, error) {
	node, err := query.Parse(req.Query)
	if err != nil {
		return nil, err
	}

	var from, to *time.Time
	if t, perr := time.Parse("2006-01-02", req.Start); perr == nil {
		from = &t
	}
	if t, perr := time.Parse("2006-01-02", req.End); perr == nil {
		end := t.AddDate(0, 0, 1)
		to = &end
	}
	events, err := s.events.List(ctx, userID, from, to, nil)
	if err != nil {
		return nil, err
	}

	preview := &model.RulePreview{
		Matches:   make([]model.RuleMatch, 0),
		Conflicts: make([]model.RuleConflict, 0),
	}
	for i := range events {
		ev := &events[i]
		if !query.Evaluate(node, View(ev)) {
			continue
		}
		preview.Matches = append(preview.Matches, model.RuleMatch{
			EventID: ev.ID, Title: ev.Title, StartTime: ev.StartTime,
		})

		if ev.ProjectID != nil && req.ProjectID != nil && *ev.ProjectID != *req.ProjectID {
			source := ""
			if ev.Source != nil {
				source = string(*ev.Source)
			}
			preview.Conflicts = append(preview.Conflicts, model.RuleConflict{
				EventID:          ev.ID,
				CurrentProjectID: ev.ProjectID,
				CurrentSource:    source,
				ProposedProject:  req.ProjectID,
			})
			if source == string(model.SourceManual) {
				preview.Stats.ManualConflicts++
			}
		}
	}
	preview.Stats.TotalMatches = len(preview.Matches)
	preview.Stats.WouldChange = len(preview.Conflicts)
	preview.Stats.AlreadyCorrect = preview.Stats.TotalMatches - preview.Stats.WouldChange
	return preview, nil
}

// suggest asks the external oracle for votes. Suggester failures are logged
// and degrade to no vote; they never fail classification.
func (s *ClassifierService) suggest(ctx context.Context, ev *model.CalendarEvent, projects []model.Project) (*classify.Vote, *classify.Vote) {
	if s.suggester == nil {
		return nil, nil
	}
	attVote, projVote, err := s.suggester.Suggest(ctx, View(ev), projects)
	if err != nil {
		logger.Warn("suggester unavailable", "event", ev.ID, "err", err)
		return nil, nil
	}
	return attVote, projVote
}

func (s *ClassifierService) listProjects(ctx context.Context, userID int) ([]model.Project, error) {
	var projects []model.Project
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND archived = ?", userID, false).
		Order("name ASC").Find(&projects).Error
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
