package classify

import (
	"testing"

	"timetally/internal/query"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func acmeEvent() *query.EventView {
	return &query.EventView{
		Title:     "Acme weekly sync",
		Attendees: []string{"pm@acme.com"},
		Response:  "accepted",
	}
}

func projectRule(id, q, target string, weight float64) Rule {
	return Rule{ID: id, Query: q, Dimension: DimensionProject, Target: target, Weight: weight}
}

func TestClassify_ManualHold(t *testing.T) {
	rules := []Rule{projectRule("r1", "acme", "proj-a", PriorityWeight)}

	res := Classify(acmeEvent(), "manual", DimensionProject, rules, nil)

	assert.True(t, res.ManualHold)
	assert.False(t, res.Decided)
	assert.Empty(t, res.Votes, "manual hold must short-circuit before scoring")
}

func TestClassify_NoVotesStaysPending(t *testing.T) {
	rules := []Rule{projectRule("r1", "billing", "proj-a", DefaultWeight)}

	res := Classify(acmeEvent(), "", DimensionProject, rules, nil)

	assert.False(t, res.Decided)
	assert.Zero(t, res.Confidence)
	assert.Empty(t, res.Votes)
}

func TestClassify_SingleRuleFullConfidence(t *testing.T) {
	rules := []Rule{projectRule("r1", "domain:acme.com", "proj-a", DefaultWeight)}

	res := Classify(acmeEvent(), "rule", DimensionProject, rules, nil)

	require.True(t, res.Decided)
	assert.Equal(t, "proj-a", res.Target)
	assert.Equal(t, 1.0, res.Confidence)
	assert.False(t, res.NeedsReview)
}

func TestClassify_WeightedVoteSplit(t *testing.T) {
	// proj-a: 2.0 + 0.8 = 2.8, proj-b: 1.0, confidence 2.8/3.8.
	rules := []Rule{
		projectRule("r1", "domain:acme.com", "proj-a", PriorityWeight),
		projectRule("r2", "acme", "proj-a", 0.8),
		projectRule("r3", "sync", "proj-b", DefaultWeight),
	}

	res := Classify(acmeEvent(), "", DimensionProject, rules, nil)

	require.True(t, res.Decided)
	assert.Equal(t, "proj-a", res.Target)
	assert.InDelta(t, 2.8/3.8, res.Confidence, 1e-9)
	assert.True(t, res.NeedsReview, "0.74 is inside the review band")
	assert.Len(t, res.Votes, 3)
}

func TestClassify_ConfidenceBoundaries(t *testing.T) {
	tests := []struct {
		name        string
		winWeight   float64
		loseWeight  float64
		decided     bool
		needsReview bool
	}{
		{"exactly at floor", 1.0, 1.0, true, true},
		{"inside review band", 0.7, 0.3, true, true},
		{"exactly at ceiling", 0.8, 0.2, true, true},
		{"above ceiling", 0.81, 0.19, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := []Rule{
				projectRule("win", "acme", "proj-a", tt.winWeight),
				projectRule("lose", "sync", "proj-b", tt.loseWeight),
			}
			res := Classify(acmeEvent(), "", DimensionProject, rules, nil)

			assert.Equal(t, tt.decided, res.Decided)
			if tt.decided {
				assert.Equal(t, "proj-a", res.Target)
				assert.Equal(t, tt.needsReview, res.NeedsReview)
			}
		})
	}
}

func TestClassify_BelowFloorStaysPending(t *testing.T) {
	// Three-way split: the best target holds 0.4 of the mass, under the floor.
	rules := []Rule{
		projectRule("r1", "acme", "proj-a", 0.4),
		projectRule("r2", "sync", "proj-b", 0.3),
		projectRule("r3", "weekly", "proj-c", 0.3),
	}

	res := Classify(acmeEvent(), "", DimensionProject, rules, nil)

	assert.False(t, res.Decided)
	assert.InDelta(t, 0.4, res.Confidence, 1e-9)
	assert.Len(t, res.Votes, 3, "votes are still recorded for explainability")
}

func TestClassify_TieGoesToSmallestTarget(t *testing.T) {
	rules := []Rule{
		projectRule("r1", "acme", "proj-b", DefaultWeight),
		projectRule("r2", "sync", "proj-a", DefaultWeight),
	}

	res := Classify(acmeEvent(), "", DimensionProject, rules, nil)

	require.True(t, res.Decided, "a 0.5 tie still decides")
	assert.Equal(t, "proj-a", res.Target)
	assert.Equal(t, 0.5, res.Confidence)
	assert.True(t, res.NeedsReview)
}

func TestClassify_BadRuleSkippedAndReported(t *testing.T) {
	rules := []Rule{
		projectRule("bad", "bogusfield:x", "proj-b", PriorityWeight),
		projectRule("good", "acme", "proj-a", DefaultWeight),
	}

	res := Classify(acmeEvent(), "", DimensionProject, rules, nil)

	require.True(t, res.Decided)
	assert.Equal(t, "proj-a", res.Target)
	require.Len(t, res.RuleErrors, 1)
	assert.Equal(t, "bad", res.RuleErrors[0].RuleID)
}

func TestClassify_ExternalVote(t *testing.T) {
	rules := []Rule{projectRule("r1", "acme", "proj-a", DefaultWeight)}
	ext := &Vote{Origin: OriginLLM, Dimension: DimensionProject, Target: "proj-b", Weight: 3.0}

	res := Classify(acmeEvent(), "", DimensionProject, rules, ext)

	require.True(t, res.Decided)
	assert.Equal(t, "proj-b", res.Target)
	assert.True(t, res.FromLLM)
	assert.InDelta(t, 0.75, res.Confidence, 1e-9)
}

func TestClassify_ExternalVoteWrongDimensionIgnored(t *testing.T) {
	rules := []Rule{projectRule("r1", "acme", "proj-a", DefaultWeight)}
	ext := &Vote{Origin: OriginLLM, Dimension: DimensionAttendance, Target: TargetDNA, Weight: 1.0}

	res := Classify(acmeEvent(), "", DimensionProject, rules, ext)

	require.True(t, res.Decided)
	assert.Equal(t, "proj-a", res.Target)
	assert.Len(t, res.Votes, 1)
}

func TestClassify_FromLLMOnlyWhenLLMCarriesWinner(t *testing.T) {
	rules := []Rule{projectRule("r1", "acme", "proj-a", PriorityWeight)}
	ext := &Vote{Origin: OriginLLM, Dimension: DimensionProject, Target: "proj-a", Weight: 0.5}

	res := Classify(acmeEvent(), "", DimensionProject, rules, ext)

	require.True(t, res.Decided)
	assert.False(t, res.FromLLM, "rules outweigh the external vote for the winner")
}

func TestClassify_ConfidenceWithinUnit(t *testing.T) {
	rules := []Rule{
		projectRule("r1", "acme", "proj-a", 5),
		projectRule("r2", "sync", "proj-a", 5),
	}

	res := Classify(acmeEvent(), "", DimensionProject, rules, nil)

	require.True(t, res.Decided)
	assert.Equal(t, 1.0, res.Confidence)
	assert.GreaterOrEqual(t, res.Confidence, 0.0)
	assert.LessOrEqual(t, res.Confidence, 1.0)
}

func TestClassifyEvent_BothDimensions(t *testing.T) {
	rules := []Rule{
		projectRule("p1", "domain:acme.com", "proj-a", PriorityWeight),
		{ID: "a1", Query: "response:accepted", Dimension: DimensionAttendance, Target: TargetAttended, Weight: DefaultWeight},
		{ID: "a2", Query: "response:declined", Dimension: DimensionAttendance, Target: TargetDNA, Weight: PriorityWeight},
	}

	attendance, project := ClassifyEvent(acmeEvent(), "", rules, nil, nil)

	require.True(t, attendance.Decided)
	assert.Equal(t, TargetAttended, attendance.Target)
	assert.Equal(t, DimensionAttendance, attendance.Dimension)

	require.True(t, project.Decided)
	assert.Equal(t, "proj-a", project.Target)
	assert.Equal(t, DimensionProject, project.Dimension)
}

func TestClassifyEvent_ManualHoldBothDimensions(t *testing.T) {
	attendance, project := ClassifyEvent(acmeEvent(), "manual", nil, nil, nil)
	assert.True(t, attendance.ManualHold)
	assert.True(t, project.ManualHold)
}
