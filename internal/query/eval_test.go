package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent() *EventView {
	return &EventView{
		Title:       "Acme design review",
		Description: "Quarterly review of the website redesign",
		Attendees:   []string{"pm@acme.com", "dev@mail.acme.com", "me@example.com"},
		Response:    "accepted",
		Recurring:   false,
		Calendar:    "primary",
	}
}

func mustMatch(t *testing.T, q string, ev *EventView) bool {
	t.Helper()
	ok, err := Match(q, ev)
	require.NoError(t, err)
	return ok
}

func TestMatch_Text(t *testing.T) {
	ev := sampleEvent()
	assert.True(t, mustMatch(t, "acme", ev), "bare token searches title")
	assert.True(t, mustMatch(t, "redesign", ev), "bare token searches description")
	assert.False(t, mustMatch(t, "invoice", ev))
}

func TestMatch_TitleAndDescription(t *testing.T) {
	ev := sampleEvent()
	assert.True(t, mustMatch(t, "title:design", ev))
	assert.False(t, mustMatch(t, "title:redesign", ev), "title: must not search description")
	assert.True(t, mustMatch(t, "description:redesign", ev))
}

func TestMatch_CaseInsensitive(t *testing.T) {
	ev := sampleEvent()
	assert.True(t, mustMatch(t, "ACME", ev))
	assert.True(t, mustMatch(t, "title:DESIGN", ev))
	assert.True(t, mustMatch(t, "response:Accepted", ev))
}

func TestMatch_Domain(t *testing.T) {
	ev := sampleEvent()
	assert.True(t, mustMatch(t, "domain:acme.com", ev))
	assert.True(t, mustMatch(t, "domain:@acme.com", ev), "leading @ is tolerated")
	assert.False(t, mustMatch(t, "domain:cme.com", ev), "suffix only at a label boundary")
	assert.False(t, mustMatch(t, "domain:acme.io", ev))
}

func TestMatch_DomainSubdomain(t *testing.T) {
	ev := &EventView{Attendees: []string{"dev@mail.acme.com"}}
	assert.True(t, mustMatch(t, "domain:acme.com", ev))
	assert.False(t, mustMatch(t, "domain:mail.acme.com example", ev))
}

func TestMatch_Email(t *testing.T) {
	ev := sampleEvent()
	assert.True(t, mustMatch(t, "email:pm@acme.com", ev))
	assert.False(t, mustMatch(t, "email:pm", ev), "email is exact, not substring")
	assert.True(t, mustMatch(t, "attendees:pm", ev), "attendees is substring")
}

func TestMatch_Recurring(t *testing.T) {
	ev := sampleEvent()
	assert.False(t, mustMatch(t, "recurring:yes", ev))
	assert.True(t, mustMatch(t, "recurring:no", ev))

	ev.Recurring = true
	assert.True(t, mustMatch(t, "recurring:yes", ev))
	assert.True(t, mustMatch(t, "recurring:true", ev))
}

func TestMatch_Negation(t *testing.T) {
	ev := sampleEvent()
	assert.False(t, mustMatch(t, "-acme", ev))
	assert.True(t, mustMatch(t, "-title:standup", ev))
	assert.False(t, mustMatch(t, "acme -response:accepted", ev))
}

func TestMatch_OrGrouping(t *testing.T) {
	ev := sampleEvent()
	assert.True(t, mustMatch(t, "invoice OR acme", ev))
	assert.False(t, mustMatch(t, "invoice OR billing", ev))
	assert.True(t, mustMatch(t, "(invoice OR acme) response:accepted", ev))
	assert.False(t, mustMatch(t, "(invoice OR acme) response:declined", ev))
}

func TestMatch_Calendar(t *testing.T) {
	ev := sampleEvent()
	assert.True(t, mustMatch(t, "calendar:primary", ev))
	assert.False(t, mustMatch(t, "calendar:work", ev))
}

func TestMatch_ParseErrorPropagates(t *testing.T) {
	_, err := Match("bogusfield:x", sampleEvent())
	require.Error(t, err)
}
