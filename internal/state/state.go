// Package state reconstructs workflow state by folding the ordered
// event history of a context key through a transition table. No state
// is stored anywhere: the event log is the single source of truth, so
// replaying the same prefix always yields the same state.
package state

import (
	"fmt"
	"sort"
	"time"

	"github.com/delaney/hookline/internal/event"
	"github.com/delaney/hookline/internal/store"
)

// State is a workflow position for one context key.
type State string

const (
	Unknown    State = "UNKNOWN"
	Created    State = "CREATED"
	InProgress State = "IN_PROGRESS"
	Blocked    State = "BLOCKED"
	InReview   State = "IN_REVIEW"
	Approved   State = "APPROVED"
	Merged     State = "MERGED"
	Done       State = "DONE"
)

// transition is one table row: the event advances from to to. An event
// arriving while the fold is not at from is invalid and is not applied.
type transition struct {
	from State
	to   State
}

var transitions = map[string]transition{
	"task.created":           {Unknown, Created},
	"task.started":           {Created, InProgress},
	"task.blocked":           {InProgress, Blocked},
	"task.unblocked":         {Blocked, InProgress},
	"task.review_requested":  {InProgress, InReview},
	"task.changes_requested": {InReview, InProgress},
	"task.approved":          {InReview, Approved},
	"git.pr_merged":          {Approved, Merged},
	"task.completed":         {Merged, Done},
}

// InvalidTransition reports an event whose expected source state did
// not match the folded state at the time it was applied. The fold
// keeps the last valid state; advancing past the anomaly requires a
// compensating event, never a silent correction.
type InvalidTransition struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Expected  State     `json:"expected"`
	Actual    State     `json:"actual"`
}

func (t InvalidTransition) String() string {
	return fmt.Sprintf("%s (%s): expected state %s, was %s", t.EventType, t.EventID, t.Expected, t.Actual)
}

// Machine answers state queries over an event store.
type Machine struct {
	store *store.Store
}

// NewMachine creates a Machine reading from s.
func NewMachine(s *store.Store) *Machine {
	return &Machine{store: s}
}

// CurrentState folds the context key's ordered history and returns the
// resulting state together with any invalid transitions encountered. A
// key with no history is Unknown.
func (m *Machine) CurrentState(key string) (State, []InvalidTransition, error) {
	events, err := m.Replay(key)
	if err != nil {
		return Unknown, nil, err
	}
	st, invalid := Fold(events)
	return st, invalid, nil
}

// Replay returns the context key's events ordered by timestamp, ties
// broken by event_id.
func (m *Machine) Replay(key string) ([]event.Event, error) {
	events, err := m.store.ReadContext(key)
	if err != nil {
		return nil, err
	}
	Sort(events)
	return events, nil
}

// Sort orders events by timestamp, then event_id. The secondary key
// keeps the fold deterministic when producers share a clock tick.
func Sort(events []event.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.Before(events[j].Timestamp)
		}
		return events[i].EventID < events[j].EventID
	})
}

// Fold applies the transition table over an ordered event slice.
// Events without a table entry are ignored. Invalid transitions are
// reported and skipped, leaving the state at the last valid position.
func Fold(events []event.Event) (State, []InvalidTransition) {
	st := Unknown
	var invalid []InvalidTransition
	for i := range events {
		e := &events[i]
		tr, ok := transitions[e.EventType]
		if !ok {
			continue
		}
		if st != tr.from {
			invalid = append(invalid, InvalidTransition{
				EventID:   e.EventID,
				EventType: e.EventType,
				Timestamp: e.Timestamp,
				Expected:  tr.from,
				Actual:    st,
			})
			continue
		}
		st = tr.to
	}
	return st, invalid
}
