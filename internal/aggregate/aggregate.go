// Package aggregate turns a day's classified events into one computed time
// entry per project. Overlapping spans are merged before summing so two
// simultaneous meetings never double the hour count, and every entry carries
// a full calculation audit trail.
package aggregate

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidInput reports a caller precondition violation, e.g. an event
// outside the bounds of the day being aggregated.
var ErrInvalidInput = errors.New("invalid aggregation input")

// Event is the slice of a classified calendar event the aggregator needs.
// Start and End must lie within the day passed to Compute.
type Event struct {
	ID        uuid.UUID
	ProjectID uuid.UUID
	Title     string
	Start     time.Time
	End       time.Time
}

// Policy controls rounding of the union duration. Minutes round to the
// nearest multiple of IncrementMinutes; an exact tie between two multiples
// rounds up.
type Policy struct {
	IncrementMinutes int
}

func DefaultPolicy() Policy {
	return Policy{IncrementMinutes: 15}
}

// Range is one merged, disjoint time span.
type Range struct {
	Start   string `json:"start"`
	End     string `json:"end"`
	Minutes int    `json:"minutes"`
}

// EventDetail records one contributing event's raw span for the audit trail.
type EventDetail struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Start      string `json:"start"`
	End        string `json:"end"`
	RawMinutes int    `json:"raw_minutes"`
	AllDay     bool   `json:"all_day,omitempty"`
}

// Details is the explainability contract: enough to recompute the entry by
// hand. RoundingApplied records the policy verbatim.
type Details struct {
	Events          []EventDetail `json:"events"`
	TimeRanges      []Range       `json:"time_ranges"`
	UnionMinutes    int           `json:"union_minutes"`
	RoundingApplied string        `json:"rounding_applied"`
	FinalMinutes    int           `json:"final_minutes"`
}

// Entry is a computed time entry for one project on one day.
type Entry struct {
	ProjectID   uuid.UUID
	Date        time.Time
	Hours       float64
	Title       string
	Description string
	EventIDs    []uuid.UUID
	Details     Details
}

// IsAllDay reports whether an event looks like an all-day marker: starts at
// midnight and spans exactly 24 hours. All-day events are kept in the audit
// trail but contribute zero minutes to the union; a 24-hour calendar span is
// not 24 worked hours.
func IsAllDay(start, end time.Time) bool {
	return start.Hour() == 0 && start.Minute() == 0 && start.Second() == 0 &&
		end.Sub(start) == 24*time.Hour
}

// Compute aggregates classified events for one day into computed entries,
// one per distinct project, ordered by project ID. day must be midnight; an
// event outside [day, day+24h) or with end before start is ErrInvalidInput.
func Compute(day time.Time, events []Event, pol Policy) ([]Entry, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	byProject := make(map[uuid.UUID][]Event)
	for _, e := range events {
		if e.End.Before(e.Start) {
			return nil, fmt.Errorf("%w: event %s ends before it starts", ErrInvalidInput, e.ID)
		}
		if e.Start.Before(dayStart) || e.End.After(dayEnd) {
			return nil, fmt.Errorf("%w: event %s outside day %s", ErrInvalidInput, e.ID, dayStart.Format("2006-01-02"))
		}
		byProject[e.ProjectID] = append(byProject[e.ProjectID], e)
	}

	entries := make([]Entry, 0, len(byProject))
	for projectID, group := range byProject {
		entries = append(entries, computeProject(dayStart, projectID, group, pol))
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ProjectID.String() < entries[j].ProjectID.String()
	})
	return entries, nil
}

func computeProject(day time.Time, projectID uuid.UUID, events []Event, pol Policy) Entry {
	details := Details{Events: make([]EventDetail, 0, len(events))}
	eventIDs := make([]uuid.UUID, 0, len(events))

	var timed []Event
	for _, e := range events {
		allDay := IsAllDay(e.Start, e.End)
		raw := 0
		if !allDay {
			raw = int(e.End.Sub(e.Start).Minutes())
			timed = append(timed, e)
		}
		details.Events = append(details.Events, EventDetail{
			ID:         e.ID.String(),
			Title:      e.Title,
			Start:      e.Start.Format(time.RFC3339),
			End:        e.End.Format(time.RFC3339),
			RawMinutes: raw,
			AllDay:     allDay,
		})
		eventIDs = append(eventIDs, e.ID)
	}

	details.TimeRanges = mergeRanges(timed)
	for _, r := range details.TimeRanges {
		details.UnionMinutes += r.Minutes
	}

	final, applied := RoundMinutes(details.UnionMinutes, pol)
	details.FinalMinutes = final
	details.RoundingApplied = applied

	return Entry{
		ProjectID:   projectID,
		Date:        day,
		Hours:       float64(final) / 60,
		Title:       entryTitle(events),
		Description: entryDescription(events),
		EventIDs:    eventIDs,
		Details:     details,
	}
}

// mergeRanges sorts events by start and sweeps them into a minimal set of
// disjoint spans, merging overlapping and adjacent intervals.
func mergeRanges(events []Event) []Range {
	if len(events) == 0 {
		return nil
	}
	sorted := make([]Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	var ranges []Range
	curStart, curEnd := sorted[0].Start, sorted[0].End
	for _, e := range sorted[1:] {
		if !e.Start.After(curEnd) {
			if e.End.After(curEnd) {
				curEnd = e.End
			}
			continue
		}
		ranges = append(ranges, newRange(curStart, curEnd))
		curStart, curEnd = e.Start, e.End
	}
	ranges = append(ranges, newRange(curStart, curEnd))
	return ranges
}

func newRange(start, end time.Time) Range {
	return Range{
		Start:   start.Format("15:04"),
		End:     end.Format("15:04"),
		Minutes: int(end.Sub(start).Minutes()),
	}
}

// RoundMinutes rounds to the nearest multiple of the policy increment; an
// exact tie rounds up. The returned string records the applied policy for
// the audit trail.
func RoundMinutes(minutes int, pol Policy) (int, string) {
	inc := pol.IncrementMinutes
	if inc <= 0 {
		return minutes, "none"
	}
	remainder := minutes % inc
	rounded := minutes - remainder
	if remainder*2 >= inc {
		rounded += inc
	}
	return rounded, fmt.Sprintf("nearest %dm (%+dm)", inc, rounded-minutes)
}

func entryTitle(events []Event) string {
	if len(events) == 0 {
		return ""
	}
	title := events[0].Title
	if len(events) > 1 {
		title = fmt.Sprintf("%s +%d more", title, len(events)-1)
	}
	if len(title) > 50 {
		title = title[:47] + "..."
	}
	return title
}

func entryDescription(events []Event) string {
	seen := make(map[string]bool)
	var parts []string
	for _, e := range events {
		if e.Title == "" || seen[e.Title] {
			continue
		}
		seen[e.Title] = true
		parts = append(parts, e.Title)
	}
	desc := ""
	for i, p := range parts {
		if i > 0 {
			desc += ", "
		}
		desc += p
	}
	return desc
}
