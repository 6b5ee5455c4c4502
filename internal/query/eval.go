package query

import (
	"strings"
)

// EventView is the read-only projection of a calendar event that the matcher
// evaluates against.
type EventView struct {
	Title        string
	Description  string
	Attendees    []string
	Response     string
	Transparency string
	Recurring    bool
	Calendar     string
}

// Match parses q and evaluates it against the event in one step.
func Match(q string, ev *EventView) (bool, error) {
	node, err := Parse(q)
	if err != nil {
		return false, err
	}
	return Evaluate(node, ev), nil
}

// Evaluate runs a parsed query against an event view.
func Evaluate(node Node, ev *EventView) bool {
	switch n := node.(type) {
	case *Condition:
		matched := evalCondition(n, ev)
		if n.Negated {
			return !matched
		}
		return matched
	case *And:
		for _, child := range n.Children {
			if !Evaluate(child, ev) {
				return false
			}
		}
		return true
	case *Or:
		for _, child := range n.Children {
			if Evaluate(child, ev) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func evalCondition(c *Condition, ev *EventView) bool {
	switch c.Field {
	case "text":
		return containsFold(ev.Title, c.Value) || containsFold(ev.Description, c.Value)
	case "title":
		return containsFold(ev.Title, c.Value)
	case "description":
		return containsFold(ev.Description, c.Value)
	case "attendees":
		for _, a := range ev.Attendees {
			if containsFold(a, c.Value) {
				return true
			}
		}
		return false
	case "domain":
		want := strings.ToLower(strings.TrimPrefix(c.Value, "@"))
		for _, a := range ev.Attendees {
			if domainMatches(attendeeDomain(a), want) {
				return true
			}
		}
		return false
	case "email":
		for _, a := range ev.Attendees {
			if strings.EqualFold(a, c.Value) {
				return true
			}
		}
		return false
	case "response":
		return strings.EqualFold(ev.Response, c.Value)
	case "transparency":
		return strings.EqualFold(ev.Transparency, c.Value)
	case "recurring":
		want := strings.EqualFold(c.Value, "yes") || strings.EqualFold(c.Value, "true")
		return ev.Recurring == want
	case "calendar":
		return strings.EqualFold(ev.Calendar, c.Value)
	default:
		// Unknown fields are rejected at parse time.
		return false
	}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// domainMatches reports whether dom equals want or is a subdomain of it, so
// domain:acme.com matches bob@mail.acme.com but not bob@notacme.com.
func domainMatches(dom, want string) bool {
	if dom == "" || want == "" {
		return false
	}
	return dom == want || strings.HasSuffix(dom, "."+want)
}

func attendeeDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}
