// Package classify scores weighted classification votes for a single
// calendar event. It is pure: no I/O, no storage, no clock. Rules and the
// optional external suggestion are evaluated per dimension (attendance,
// project); the caller applies the resulting decision to the event.
package classify

import (
	"sort"

	"timetally/internal/query"
)

// Confidence thresholds. Both boundaries are closed on the review side:
// exactly 0.5 and exactly 0.8 classify with needs_review set.
const (
	ConfidenceFloor   = 0.5
	ConfidenceCeiling = 0.8
)

// Rule weights. PriorityWeight is the conventional weight for rules that
// should dominate ordinary ones.
const (
	DefaultWeight  = 1.0
	PriorityWeight = 2.0
)

type Dimension string

const (
	DimensionAttendance Dimension = "attendance"
	DimensionProject    Dimension = "project"
)

// Attendance dimension targets.
const (
	TargetAttended = "attended"
	TargetDNA      = "dna" // did not attend
)

// OriginLLM marks votes contributed by the external suggester.
const OriginLLM = "llm"

// Rule is an enabled classification rule flattened for scoring.
type Rule struct {
	ID        string
	Query     string
	Dimension Dimension
	Target    string
	Weight    float64
}

// Vote is one weighted opinion about the correct target for a dimension.
// Ephemeral: produced during a classification pass and discarded afterwards,
// except when echoed back in explain responses.
type Vote struct {
	Origin    string // rule ID, or OriginLLM
	Dimension Dimension
	Target    string
	Weight    float64
}

// RuleError surfaces a rule whose query failed to parse. The rule is skipped
// for this pass; the batch continues.
type RuleError struct {
	RuleID string
	Err    error
}

// Result is the outcome of scoring one dimension.
type Result struct {
	Dimension  Dimension
	ManualHold bool // event is manually classified; nothing was scored

	Decided     bool // false: leave the event pending
	Target      string
	Confidence  float64
	NeedsReview bool
	FromLLM     bool // winning decision carried mostly by the external vote

	Votes      []Vote
	RuleErrors []RuleError
}

// Classify scores one dimension of an event. currentSource is the event's
// current classification source; "manual" short-circuits before any scoring
// work, honoring the manual-protection invariant. Rules targeting other
// dimensions and disabled rules must be filtered out by the caller (see
// service.RuleSnapshot).
func Classify(ev *query.EventView, currentSource string, dim Dimension, rules []Rule, external *Vote) Result {
	res := Result{Dimension: dim}
	if currentSource == "manual" {
		res.ManualHold = true
		return res
	}

	scores := make(map[string]float64)
	llmWeight := make(map[string]float64)
	ruleWeight := make(map[string]float64)
	var total float64

	for _, r := range rules {
		if r.Dimension != dim {
			continue
		}
		node, err := query.Parse(r.Query)
		if err != nil {
			res.RuleErrors = append(res.RuleErrors, RuleError{RuleID: r.ID, Err: err})
			continue
		}
		if !query.Evaluate(node, ev) {
			continue
		}
		scores[r.Target] += r.Weight
		ruleWeight[r.Target] += r.Weight
		total += r.Weight
		res.Votes = append(res.Votes, Vote{Origin: r.ID, Dimension: dim, Target: r.Target, Weight: r.Weight})
	}

	if external != nil && external.Dimension == dim && external.Weight > 0 {
		scores[external.Target] += external.Weight
		llmWeight[external.Target] += external.Weight
		total += external.Weight
		res.Votes = append(res.Votes, *external)
	}

	if len(scores) == 0 {
		return res
	}

	winner := pickWinner(scores)
	confidence := scores[winner] / total
	if confidence > 1 {
		confidence = 1
	}
	res.Confidence = confidence

	if confidence < ConfidenceFloor {
		return res
	}

	res.Decided = true
	res.Target = winner
	res.NeedsReview = confidence <= ConfidenceCeiling
	res.FromLLM = llmWeight[winner] > ruleWeight[winner]
	return res
}

// pickWinner returns the target with the highest accumulated score. Ties go
// to the lexicographically smallest target identifier so repeated runs over
// the same inputs decide identically.
func pickWinner(scores map[string]float64) string {
	targets := make([]string, 0, len(scores))
	for t := range scores {
		targets = append(targets, t)
	}
	sort.Strings(targets)

	winner := targets[0]
	for _, t := range targets[1:] {
		if scores[t] > scores[winner] {
			winner = t
		}
	}
	return winner
}

// ClassifyEvent scores both dimensions with one consistent rule set.
// attVote and projVote are the external suggester's votes, either may be nil.
func ClassifyEvent(ev *query.EventView, currentSource string, rules []Rule, attVote, projVote *Vote) (attendance, project Result) {
	attendance = Classify(ev, currentSource, DimensionAttendance, rules, attVote)
	project = Classify(ev, currentSource, DimensionProject, rules, projVote)
	return attendance, project
}
