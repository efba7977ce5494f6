package commands

import (
	"testing"
	"time"

	"github.com/delaney/hookline/internal/event"
)

func TestBuildEventsQueryFilters(t *testing.T) {
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

	q, err := buildEventsQuery("task.created", "task", "task-1", "tr-1", "agent-1", "", 20, now)
	if err != nil {
		t.Fatalf("buildEventsQuery error: %v", err)
	}
	if q.EventType != "task.created" || q.Namespace != "task" || q.ContextKey != "task-1" {
		t.Errorf("query = %+v", q)
	}
	if q.TraceID != "tr-1" || q.AgentID != "agent-1" || q.Limit != 20 {
		t.Errorf("query = %+v", q)
	}
	if !q.Since.IsZero() {
		t.Errorf("Since = %v, want zero", q.Since)
	}
}

func TestBuildEventsQuerySince(t *testing.T) {
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

	q, err := buildEventsQuery("", "", "", "", "", "24h", 0, now)
	if err != nil {
		t.Fatalf("duration since rejected: %v", err)
	}
	if want := now.Add(-24 * time.Hour); !q.Since.Equal(want) {
		t.Errorf("Since = %v, want %v", q.Since, want)
	}

	q, err = buildEventsQuery("", "", "", "", "", "2026-08-20T09:00:00Z", 0, now)
	if err != nil {
		t.Fatalf("timestamp since rejected: %v", err)
	}
	if want := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC); !q.Since.Equal(want) {
		t.Errorf("Since = %v, want %v", q.Since, want)
	}

	if _, err := buildEventsQuery("", "", "", "", "", "yesterday", 0, now); err == nil {
		t.Error("malformed since accepted")
	}
}

func TestDecisionSummary(t *testing.T) {
	tests := []struct {
		name string
		e    *event.Event
		want string
	}{
		{"summary key", &event.Event{Decision: map[string]any{"summary": "use sqlite"}}, "use sqlite"},
		{"decision key", &event.Event{Decision: map[string]any{"decision": "approve"}}, "approve"},
		{"summary wins", &event.Event{Decision: map[string]any{"summary": "a", "reason": "b"}}, "a"},
		{"non-string skipped", &event.Event{Decision: map[string]any{"summary": 7, "title": "t"}}, "t"},
		{"no payload", &event.Event{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decisionSummary(tt.e); got != tt.want {
				t.Errorf("decisionSummary = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecisionID(t *testing.T) {
	e := &event.Event{Context: &event.Context{DecisionID: "dec-42"}}
	if got := decisionID(e); got != "dec-42" {
		t.Errorf("decisionID = %q, want dec-42", got)
	}
	if got := decisionID(&event.Event{}); got != "" {
		t.Errorf("decisionID without context = %q, want empty", got)
	}
}
