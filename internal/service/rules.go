package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"timetally/internal/classify"
	"timetally/internal/model"
	"timetally/internal/query"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrRuleTarget is returned when a rule does not carry exactly one target.
var ErrRuleTarget = errors.New("rule must target exactly one of project or attendance")

var ErrRuleNotFound = errors.New("rule not found")

type RuleService struct{ db *gorm.DB }

func NewRuleService(db *gorm.DB) *RuleService { return &RuleService{db: db} }

func (s *RuleService) List(ctx context.Context, userID int, enabledOnly bool) ([]model.ClassificationRule, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if enabledOnly {
		q = q.Where("is_enabled = ?", true)
	}
	var rules []model.ClassificationRule
	if err := q.Order("weight DESC, created_at ASC").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rules, nil
}

func (s *RuleService) Create(ctx context.Context, userID int, req model.RuleRequest) (*model.ClassificationRule, error) {
	if err := validateRule(req); err != nil {
		return nil, err
	}
	rule := model.ClassificationRule{
		ID:        uuid.New(),
		UserID:    userID,
		Query:     req.Query,
		ProjectID: req.ProjectID,
		Attended:  req.Attended,
		Weight:    req.Weight,
		IsEnabled: true,
	}
	if rule.Weight == 0 {
		rule.Weight = classify.DefaultWeight
	}
	if req.Enabled != nil {
		rule.IsEnabled = *req.Enabled
	}
	if err := s.db.WithContext(ctx).Create(&rule).Error; err != nil {
		return nil, fmt.Errorf("insert rule: %w", err)
	}
	return &rule, nil
}

func (s *RuleService) Update(ctx context.Context, userID int, ruleID uuid.UUID, req model.RuleRequest) (*model.ClassificationRule, error) {
	if err := validateRule(req); err != nil {
		return nil, err
	}
	var rule model.ClassificationRule
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", ruleID, userID).First(&rule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load rule: %w", err)
	}

	rule.Query = req.Query
	rule.ProjectID = req.ProjectID
	rule.Attended = req.Attended
	if req.Weight != 0 {
		rule.Weight = req.Weight
	}
	if req.Enabled != nil {
		rule.IsEnabled = *req.Enabled
	}
	if err := s.db.WithContext(ctx).Save(&rule).Error; err != nil {
		return nil, fmt.Errorf("update rule: %w", err)
	}
	return &rule, nil
}

func (s *RuleService) Delete(ctx context.Context, userID int, ruleID uuid.UUID) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", ruleID, userID).
		Delete(&model.ClassificationRule{})
	if res.Error != nil {
		return fmt.Errorf("delete rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// Snapshot loads the user's enabled rules once and flattens them for the
// scorer. A classification batch works against a single snapshot even if
// rules are edited mid-flight.
func (s *RuleService) Snapshot(ctx context.Context, userID int) ([]classify.Rule, error) {
	stored, err := s.List(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	rules := make([]classify.Rule, 0, len(stored))
	for _, r := range stored {
		cr := classify.Rule{ID: r.ID.String(), Query: r.Query, Weight: r.Weight}
		switch {
		case r.ProjectID != nil:
			cr.Dimension = classify.DimensionProject
			cr.Target = r.ProjectID.String()
		case r.Attended != nil:
			cr.Dimension = classify.DimensionAttendance
			cr.Target = classify.TargetDNA
			if *r.Attended {
				cr.Target = classify.TargetAttended
			}
		default:
			continue
		}
		rules = append(rules, cr)
	}
	return rules, nil
}

// RecordOverride appends an audit record of a manual reclassification.
// Override rows are never mutated or deleted here.
func (s *RuleService) RecordOverride(ctx context.Context, o *model.ClassificationOverride) error {
	o.ID = uuid.New()
	o.CreatedAt = time.Now().UTC()
	if err := s.db.WithContext(ctx).Create(o).Error; err != nil {
		return fmt.Errorf("insert override: %w", err)
	}
	return nil
}

func (s *RuleService) ListOverrides(ctx context.Context, userID int, since time.Time) ([]model.ClassificationOverride, error) {
	var out []model.ClassificationOverride
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Order("created_at DESC").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	return out, nil
}

// validateRule enforces exactly one target and a parseable query, so broken
// rules fail loudly at creation instead of being silently skipped at scoring
// time.
func validateRule(req model.RuleRequest) error {
	if (req.ProjectID == nil) == (req.Attended == nil) {
		return ErrRuleTarget
	}
	if _, err := query.Parse(req.Query); err != nil {
		return err
	}
	return nil
}
