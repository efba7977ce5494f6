package event

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// SchemaError reports an event that failed validation. Schema errors
// are resolved at the boundary: the event is rejected before it ever
// reaches the store or the dispatcher.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error: %s: %s", e.Field, e.Reason)
}

var namespaces = map[string]bool{
	NSLifecycle:    true,
	NSActivity:     true,
	NSCoordination: true,
	NSHook:         true,
	NSGit:          true,
	NSTask:         true,
	NSContainer:    true,
	NSDecision:     true,
	NSSystem:       true,
}

// payloadOwner maps each payload field to the namespace that owns it.
var payloadOwner = map[string]string{
	"tool":      NSActivity,
	"hook":      NSHook,
	"git":       NSGit,
	"task":      NSTask,
	"container": NSContainer,
	"decision":  NSDecision,
}

// Validate checks an event against the schema. Call Enrich first;
// Validate treats a missing event_id or timestamp as an error.
func Validate(e *Event) error {
	if err := validateType(e.EventType); err != nil {
		return err
	}
	if e.EventID == "" {
		return &SchemaError{Field: "event_id", Reason: "required"}
	}
	if e.Timestamp.IsZero() {
		return &SchemaError{Field: "timestamp", Reason: "required"}
	}
	if e.AgentID == "" {
		return &SchemaError{Field: "agent_id", Reason: "required"}
	}
	if err := validateVersion(e.SchemaVersion); err != nil {
		return err
	}
	if err := validatePayloads(e); err != nil {
		return err
	}
	if e.Correlation != nil && e.Correlation.SpanID != "" && e.Correlation.TraceID == "" {
		return &SchemaError{Field: "correlation.trace_id", Reason: "required when span_id is set"}
	}
	return nil
}

// ValidateBatch validates a slice of events, returning the valid ones
// and one error per rejected event. High-volume trusted producers (the
// system namespace) use this to defer validation off the emission path.
func ValidateBatch(events []Event) ([]Event, []error) {
	valid := make([]Event, 0, len(events))
	var errs []error
	for i := range events {
		Enrich(&events[i])
		if err := Validate(&events[i]); err != nil {
			errs = append(errs, fmt.Errorf("event %d: %w", i, err))
			continue
		}
		valid = append(valid, events[i])
	}
	return valid, errs
}

func validateType(eventType string) error {
	if eventType == "" {
		return &SchemaError{Field: "event_type", Reason: "required"}
	}
	segments := strings.Split(eventType, ".")
	if len(segments) < 2 {
		return &SchemaError{Field: "event_type", Reason: "must have the form namespace.verb"}
	}
	for _, seg := range segments {
		if !validSegment(seg) {
			return &SchemaError{Field: "event_type", Reason: fmt.Sprintf("invalid segment %q", seg)}
		}
	}
	if !namespaces[segments[0]] {
		return &SchemaError{Field: "event_type", Reason: fmt.Sprintf("unknown namespace %q", segments[0])}
	}
	return nil
}

func validSegment(seg string) bool {
	if seg == "" {
		return false
	}
	for i := 0; i < len(seg); i++ {
		c := seg[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '_' {
			return false
		}
	}
	return true
}

func validateVersion(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return &SchemaError{Field: "schema_version", Reason: fmt.Sprintf("not a semver: %q", version)}
	}
	if v.Major() != currentVersion.Major() {
		return &SchemaError{
			Field:  "schema_version",
			Reason: fmt.Sprintf("major version %d not supported (current %s)", v.Major(), CurrentSchemaVersion),
		}
	}
	return nil
}

func validatePayloads(e *Event) error {
	ns := e.Namespace()
	present := map[string]bool{
		"tool":      e.Tool != nil,
		"hook":      e.Hook != nil,
		"git":       e.Git != nil,
		"task":      e.Task != nil,
		"container": e.Container != nil,
		"decision":  e.Decision != nil,
	}
	for field, set := range present {
		if set && payloadOwner[field] != ns {
			return &SchemaError{
				Field:  field,
				Reason: fmt.Sprintf("payload not allowed for namespace %q", ns),
			}
		}
	}
	return nil
}
