package state

import (
	"testing"
	"time"

	"github.com/delaney/hookline/internal/event"
	"github.com/delaney/hookline/internal/store"
)

func ev(id, eventType string, ts time.Time) event.Event {
	return event.Event{
		SchemaVersion: event.CurrentSchemaVersion,
		EventType:     eventType,
		EventID:       id,
		Timestamp:     ts,
		AgentID:       "agent-1",
		Context:       &event.Context{TaskID: "task-1"},
	}
}

func lifecycle(types ...string) []event.Event {
	base := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	events := make([]event.Event, len(types))
	for i, t := range types {
		events[i] = ev(string(rune('a'+i)), t, base.Add(time.Duration(i)*time.Minute))
	}
	return events
}

func TestFoldFullLifecycle(t *testing.T) {
	events := lifecycle(
		"task.created",
		"task.started",
		"task.review_requested",
		"task.approved",
		"git.pr_merged",
		"task.completed",
	)
	st, invalid := Fold(events)
	if st != Done {
		t.Errorf("state = %s, want DONE", st)
	}
	if len(invalid) != 0 {
		t.Errorf("invalid transitions = %v, want none", invalid)
	}
}

func TestFoldBlockedDetour(t *testing.T) {
	events := lifecycle(
		"task.created",
		"task.started",
		"task.blocked",
		"task.unblocked",
		"task.review_requested",
		"task.changes_requested",
		"task.review_requested",
		"task.approved",
	)
	st, invalid := Fold(events)
	if st != Approved {
		t.Errorf("state = %s, want APPROVED", st)
	}
	if len(invalid) != 0 {
		t.Errorf("invalid transitions = %v, want none", invalid)
	}
}

func TestFoldInvalidTransitionNotApplied(t *testing.T) {
	events := lifecycle(
		"task.created",
		"task.started",
		"task.completed", // requires MERGED
	)
	st, invalid := Fold(events)
	if st != InProgress {
		t.Errorf("state = %s, want IN_PROGRESS (invalid transition must not apply)", st)
	}
	if len(invalid) != 1 {
		t.Fatalf("invalid transitions = %d, want 1", len(invalid))
	}
	if invalid[0].EventType != "task.completed" || invalid[0].Expected != Merged || invalid[0].Actual != InProgress {
		t.Errorf("invalid transition = %+v", invalid[0])
	}
}

func TestFoldIgnoresUnmappedEvents(t *testing.T) {
	events := lifecycle(
		"task.created",
		"activity.tool_used",
		"hook.execution_finished",
		"task.started",
	)
	st, invalid := Fold(events)
	if st != InProgress {
		t.Errorf("state = %s, want IN_PROGRESS", st)
	}
	if len(invalid) != 0 {
		t.Errorf("invalid transitions = %v, want none", invalid)
	}
}

func TestFoldEmptyIsUnknown(t *testing.T) {
	st, invalid := Fold(nil)
	if st != Unknown || invalid != nil {
		t.Errorf("Fold(nil) = %s %v, want UNKNOWN and no anomalies", st, invalid)
	}
}

func TestFoldIsIdempotent(t *testing.T) {
	events := lifecycle("task.created", "task.started", "task.completed")
	first, firstInvalid := Fold(events)
	second, secondInvalid := Fold(events)
	if first != second || len(firstInvalid) != len(secondInvalid) {
		t.Errorf("refold diverged: %s/%d vs %s/%d", first, len(firstInvalid), second, len(secondInvalid))
	}
}

func TestSortTieBreaksOnEventID(t *testing.T) {
	ts := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	events := []event.Event{
		ev("b-second", "task.started", ts),
		ev("a-first", "task.created", ts),
	}
	Sort(events)
	if events[0].EventID != "a-first" {
		t.Errorf("order = [%s %s], want event_id ascending on equal timestamps",
			events[0].EventID, events[1].EventID)
	}
	if st, invalid := Fold(events); st != InProgress || len(invalid) != 0 {
		t.Errorf("fold after tie-break = %s %v, want IN_PROGRESS clean", st, invalid)
	}
}

func TestMachineReplaysFromStore(t *testing.T) {
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	defer s.Close()

	// Appended out of order; replay must order by timestamp.
	base := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	for _, e := range []event.Event{
		ev("e2", "task.started", base.Add(time.Minute)),
		ev("e1", "task.created", base),
		ev("e3", "task.review_requested", base.Add(2*time.Minute)),
	} {
		if _, err := s.Append(&e); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if err := s.Route(&e); err != nil {
			t.Fatalf("Route failed: %v", err)
		}
	}

	m := NewMachine(s)
	st, invalid, err := m.CurrentState("task-1")
	if err != nil {
		t.Fatalf("CurrentState failed: %v", err)
	}
	if st != InReview {
		t.Errorf("state = %s, want IN_REVIEW", st)
	}
	if len(invalid) != 0 {
		t.Errorf("invalid transitions = %v, want none", invalid)
	}

	replay, err := m.Replay("task-1")
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if len(replay) != 3 || replay[0].EventID != "e1" || replay[2].EventID != "e3" {
		t.Errorf("replay order wrong: %+v", replay)
	}

	st2, _, err := m.CurrentState("task-1")
	if err != nil {
		t.Fatalf("CurrentState failed: %v", err)
	}
	if st2 != st {
		t.Errorf("second reconstruction = %s, want %s", st2, st)
	}
}

func TestMachineUnknownKey(t *testing.T) {
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	defer s.Close()

	st, invalid, err := NewMachine(s).CurrentState("task-missing")
	if err != nil {
		t.Fatalf("CurrentState failed: %v", err)
	}
	if st != Unknown || len(invalid) != 0 {
		t.Errorf("state = %s %v, want UNKNOWN with no anomalies", st, invalid)
	}
}
