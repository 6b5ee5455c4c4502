package aggregate

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func ev(project uuid.UUID, title string, start, end time.Time) Event {
	return Event{ID: uuid.New(), ProjectID: project, Title: title, Start: start, End: end}
}

func TestCompute_NonOverlappingSum(t *testing.T) {
	proj := uuid.New()
	entries, err := Compute(day, []Event{
		ev(proj, "standup", at(9, 0), at(9, 30)),
		ev(proj, "review", at(11, 0), at(12, 0)),
	}, DefaultPolicy())
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, 1.5, e.Hours)
	assert.Equal(t, 90, e.Details.UnionMinutes)
	assert.Equal(t, 90, e.Details.FinalMinutes)
	assert.Len(t, e.Details.TimeRanges, 2)
}

func TestCompute_OverlapCountedOnce(t *testing.T) {
	proj := uuid.New()
	// 9:00-10:00 and 9:30-10:30 cover 90 minutes, not 120.
	entries, err := Compute(day, []Event{
		ev(proj, "sync", at(9, 0), at(10, 0)),
		ev(proj, "follow-up", at(9, 30), at(10, 30)),
	}, DefaultPolicy())
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, 90, e.Details.UnionMinutes)
	assert.Equal(t, 1.5, e.Hours)
	require.Len(t, e.Details.TimeRanges, 1)
	assert.Equal(t, "09:00", e.Details.TimeRanges[0].Start)
	assert.Equal(t, "10:30", e.Details.TimeRanges[0].End)
}

func TestCompute_AdjacentMerged(t *testing.T) {
	proj := uuid.New()
	entries, err := Compute(day, []Event{
		ev(proj, "a", at(9, 0), at(10, 0)),
		ev(proj, "b", at(10, 0), at(11, 0)),
	}, DefaultPolicy())
	require.NoError(t, err)

	e := entries[0]
	require.Len(t, e.Details.TimeRanges, 1)
	assert.Equal(t, 120, e.Details.UnionMinutes)
}

func TestCompute_ContainedEvent(t *testing.T) {
	proj := uuid.New()
	entries, err := Compute(day, []Event{
		ev(proj, "outer", at(9, 0), at(12, 0)),
		ev(proj, "inner", at(10, 0), at(10, 30)),
	}, DefaultPolicy())
	require.NoError(t, err)

	assert.Equal(t, 180, entries[0].Details.UnionMinutes)
}

func TestCompute_GroupsByProject(t *testing.T) {
	projA, projB := uuid.New(), uuid.New()
	entries, err := Compute(day, []Event{
		ev(projA, "a", at(9, 0), at(10, 0)),
		ev(projB, "b", at(9, 0), at(10, 0)),
		ev(projA, "a2", at(14, 0), at(15, 0)),
	}, DefaultPolicy())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.True(t, entries[0].ProjectID.String() < entries[1].ProjectID.String(),
		"entries ordered by project id")

	byProject := map[uuid.UUID]Entry{entries[0].ProjectID: entries[0], entries[1].ProjectID: entries[1]}
	assert.Equal(t, 2.0, byProject[projA].Hours)
	assert.Equal(t, 1.0, byProject[projB].Hours)
}

func TestCompute_Rounding(t *testing.T) {
	proj := uuid.New()
	// 50 minutes rounds down to 45 with a 15m increment.
	entries, err := Compute(day, []Event{
		ev(proj, "call", at(9, 0), at(9, 50)),
	}, DefaultPolicy())
	require.NoError(t, err)

	e := entries[0]
	assert.Equal(t, 50, e.Details.UnionMinutes)
	assert.Equal(t, 45, e.Details.FinalMinutes)
	assert.Equal(t, 0.75, e.Hours)
	assert.Equal(t, "nearest 15m (-5m)", e.Details.RoundingApplied)
}

func TestRoundMinutes(t *testing.T) {
	tests := []struct {
		minutes int
		inc     int
		want    int
	}{
		{50, 15, 45},
		{53, 15, 60},
		{90, 15, 90},
		{0, 15, 0},
		{7, 15, 0},
		{8, 15, 15},
		{25, 10, 30},
		{44, 0, 44},
	}
	for _, tt := range tests {
		got, _ := RoundMinutes(tt.minutes, Policy{IncrementMinutes: tt.inc})
		assert.Equal(t, tt.want, got, "%d min at %dm increment", tt.minutes, tt.inc)
	}
}

func TestRoundMinutes_TieRoundsUp(t *testing.T) {
	got, applied := RoundMinutes(22, Policy{IncrementMinutes: 15})
	assert.Equal(t, 30, got, "22.5 is the midpoint of 15 and 30")
	assert.Equal(t, "nearest 15m (+8m)", applied)

	got, _ = RoundMinutes(30, Policy{IncrementMinutes: 60})
	assert.Equal(t, 60, got)
}

func TestCompute_AllDayContributesZero(t *testing.T) {
	proj := uuid.New()
	allDay := ev(proj, "conference", at(0, 0), at(24, 0))
	entries, err := Compute(day, []Event{
		allDay,
		ev(proj, "prep call", at(9, 0), at(10, 0)),
	}, DefaultPolicy())
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, 60, e.Details.UnionMinutes, "all-day span excluded from the union")
	assert.Equal(t, 1.0, e.Hours)

	require.Len(t, e.Details.Events, 2, "all-day event stays in the audit trail")
	var found bool
	for _, d := range e.Details.Events {
		if d.ID == allDay.ID.String() {
			found = true
			assert.True(t, d.AllDay)
			assert.Zero(t, d.RawMinutes)
		}
	}
	assert.True(t, found)
}

func TestCompute_OnlyAllDayYieldsZeroHours(t *testing.T) {
	proj := uuid.New()
	entries, err := Compute(day, []Event{
		ev(proj, "holiday", at(0, 0), at(24, 0)),
	}, DefaultPolicy())
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Zero(t, e.Hours)
	assert.Empty(t, e.Details.TimeRanges)
	assert.Len(t, e.Details.Events, 1)
}

func TestCompute_InvalidInput(t *testing.T) {
	proj := uuid.New()

	_, err := Compute(day, []Event{ev(proj, "x", at(10, 0), at(9, 0))}, DefaultPolicy())
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = Compute(day, []Event{ev(proj, "x", at(23, 0), at(25, 0))}, DefaultPolicy())
	require.ErrorIs(t, err, ErrInvalidInput)

	yesterday := day.AddDate(0, 0, -1)
	_, err = Compute(day, []Event{ev(proj, "x", yesterday.Add(9*time.Hour), yesterday.Add(10*time.Hour))}, DefaultPolicy())
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestCompute_Empty(t *testing.T) {
	entries, err := Compute(day, nil, DefaultPolicy())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEntryTitleAndDescription(t *testing.T) {
	proj := uuid.New()
	entries, err := Compute(day, []Event{
		ev(proj, "standup", at(9, 0), at(9, 15)),
		ev(proj, "review", at(10, 0), at(11, 0)),
		ev(proj, "standup", at(17, 0), at(17, 15)),
	}, DefaultPolicy())
	require.NoError(t, err)

	e := entries[0]
	assert.Equal(t, "standup +2 more", e.Title)
	assert.Equal(t, "standup, review", e.Description, "duplicate titles collapse")
	assert.Len(t, e.EventIDs, 3)
}

func TestIsAllDay(t *testing.T) {
	assert.True(t, IsAllDay(at(0, 0), at(24, 0)))
	assert.False(t, IsAllDay(at(0, 0), at(23, 0)), "24h span required")
	assert.False(t, IsAllDay(at(9, 0), day.AddDate(0, 0, 1).Add(9*time.Hour)), "must start at midnight")
}
