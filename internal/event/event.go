// Package event defines the canonical event schema shared by every
// hookline component: producers emit events, the store persists them,
// the matcher selects hooks against them, and the state machine folds
// them into workflow state.
package event

import (
	"encoding/json"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
)

// CurrentSchemaVersion is stamped onto events that omit schema_version.
// Consumers reject events whose major version differs.
const CurrentSchemaVersion = "1.0.0"

var currentVersion = semver.MustParse(CurrentSchemaVersion)

// Namespaces recognized in event_type. The first segment of every
// event_type must be one of these.
const (
	NSLifecycle    = "lifecycle"
	NSActivity     = "activity"
	NSCoordination = "coordination"
	NSHook         = "hook"
	NSGit          = "git"
	NSTask         = "task"
	NSContainer    = "container"
	NSDecision     = "decision"
	NSSystem       = "system"
)

// Context cross-references an event to the entity it concerns. At most
// one field is authoritative for state correlation; TaskID wins over
// TraceID (see Event.ContextKey).
type Context struct {
	TaskID       string `json:"task_id,omitempty"`
	BranchName   string `json:"branch_name,omitempty"`
	WorktreePath string `json:"worktree_path,omitempty"`
	ContainerID  string `json:"container_id,omitempty"`
	PRNumber     int    `json:"pr_number,omitempty"`
	DecisionID   string `json:"decision_id,omitempty"`
}

// Correlation links causally related events into a trace tree.
type Correlation struct {
	TraceID      string `json:"trace_id,omitempty"`
	SpanID       string `json:"span_id,omitempty"`
	ParentSpanID string `json:"parent_span_id,omitempty"`
}

// Event is the atomic unit of observability. Once appended to the
// store an event is immutable; corrections are new events.
type Event struct {
	SchemaVersion string       `json:"schema_version"`
	EventType     string       `json:"event_type"`
	EventID       string       `json:"event_id"`
	Timestamp     time.Time    `json:"timestamp"`
	AgentID       string       `json:"agent_id"`
	Context       *Context     `json:"context,omitempty"`
	Correlation   *Correlation `json:"correlation,omitempty"`

	// Domain payloads. Each namespace owns exactly one of these; an
	// event carrying a payload foreign to its namespace is rejected.
	Tool      map[string]any `json:"tool,omitempty"`
	Hook      map[string]any `json:"hook,omitempty"`
	Git       map[string]any `json:"git,omitempty"`
	Task      map[string]any `json:"task,omitempty"`
	Container map[string]any `json:"container,omitempty"`
	Decision  map[string]any `json:"decision,omitempty"`

	// Metadata is never interpreted by the core.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Namespace returns the first segment of the event type.
func (e *Event) Namespace() string {
	for i := 0; i < len(e.EventType); i++ {
		if e.EventType[i] == '.' {
			return e.EventType[:i]
		}
	}
	return e.EventType
}

// ContextKey returns the key used to correlate this event for state
// reconstruction: task_id when present, otherwise trace_id, otherwise
// empty (the event is not correlated to any workflow instance).
func (e *Event) ContextKey() string {
	if e.Context != nil && e.Context.TaskID != "" {
		return e.Context.TaskID
	}
	if e.Correlation != nil && e.Correlation.TraceID != "" {
		return e.Correlation.TraceID
	}
	return ""
}

// Enrich fills defaults on an event before validation: a fresh UUID v4
// event_id, a wall-clock UTC timestamp, and the current schema version.
// Producer-supplied values are kept and only normalized to UTC.
func Enrich(e *Event) {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	} else {
		e.Timestamp = e.Timestamp.UTC()
	}
	if e.SchemaVersion == "" {
		e.SchemaVersion = CurrentSchemaVersion
	}
}

// Parse decodes a raw JSON document into an Event. Malformed JSON
// (including unparsable timestamps) is a SchemaError.
func Parse(raw []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return Event{}, &SchemaError{Field: "event", Reason: err.Error()}
	}
	return e, nil
}

// Marshal encodes the event as a single UTF-8 JSON document, the wire
// format delivered to hook scripts on stdin.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
