package hooks

import (
	"fmt"
	"strings"

	"github.com/delaney/hookline/internal/event"
)

// Match returns the hooks that apply to the event: a hook matches when
// at least one of its event specs matches the event type and that
// spec's filter (if any) holds. Pure function, no side effects.
func Match(cfg *Config, e *event.Event) []Hook {
	var matched []Hook
	for _, h := range cfg.Hooks {
		for _, spec := range h.Events {
			if !MatchPattern(spec.Type, e.EventType) {
				continue
			}
			if spec.Filter != nil && !filterHolds(spec.Filter, e) {
				continue
			}
			matched = append(matched, h)
			break
		}
	}
	return matched
}

// MatchPattern tests an event type against a pattern segment-wise.
// A "*" segment matches exactly one segment: "task.*" matches
// "task.completed" but not "task.sub.completed".
func MatchPattern(pattern, eventType string) bool {
	ps := strings.Split(pattern, ".")
	es := strings.Split(eventType, ".")
	if len(ps) != len(es) {
		return false
	}
	for i := range ps {
		if ps[i] != "*" && ps[i] != es[i] {
			return false
		}
	}
	return true
}

// ValidatePattern checks pattern syntax: at least two dot-separated
// segments, each either "*" or lowercase [a-z0-9_].
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("pattern required")
	}
	segments := strings.Split(pattern, ".")
	if len(segments) < 2 {
		return fmt.Errorf("pattern %q must have the form namespace.verb", pattern)
	}
	for _, seg := range segments {
		if seg == "*" {
			continue
		}
		if seg == "" {
			return fmt.Errorf("pattern %q has an empty segment", pattern)
		}
		for i := 0; i < len(seg); i++ {
			c := seg[i]
			if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '_' {
				return fmt.Errorf("pattern %q has an invalid segment %q", pattern, seg)
			}
		}
	}
	return nil
}

// filterHolds evaluates every filter key against the event. Keys use a
// suffix convention to pick the comparison: "<field>_any" holds when at
// least one filter element appears in the field, "<field>_all" when
// every element does (the field must be list-valued), and a bare key is
// an exact scalar match (a list value behaves as any-of). A field that
// is absent from the event never matches.
func filterHolds(filter map[string]any, e *event.Event) bool {
	for key, want := range filter {
		field := key
		mode := "exact"
		switch {
		case strings.HasSuffix(key, "_any"):
			field, mode = strings.TrimSuffix(key, "_any"), "any"
		case strings.HasSuffix(key, "_all"):
			field, mode = strings.TrimSuffix(key, "_all"), "all"
		}
		if _, isList := asList(want); isList && mode == "exact" {
			mode = "any"
		}

		got, ok := fieldValue(e, field)
		if !ok {
			return false
		}
		switch mode {
		case "exact":
			if !scalarEqual(got, want) {
				return false
			}
		case "any":
			if !anyOf(got, want) {
				return false
			}
		case "all":
			if !allOf(got, want) {
				return false
			}
		}
	}
	return true
}

// fieldValue looks a filter field up in the event: context fields
// first, then the namespace payload, then metadata.
func fieldValue(e *event.Event, name string) (any, bool) {
	if e.Context != nil {
		switch name {
		case "task_id":
			if e.Context.TaskID != "" {
				return e.Context.TaskID, true
			}
			return nil, false
		case "branch_name":
			if e.Context.BranchName != "" {
				return e.Context.BranchName, true
			}
			return nil, false
		case "worktree_path":
			if e.Context.WorktreePath != "" {
				return e.Context.WorktreePath, true
			}
			return nil, false
		case "container_id":
			if e.Context.ContainerID != "" {
				return e.Context.ContainerID, true
			}
			return nil, false
		case "pr_number":
			if e.Context.PRNumber != 0 {
				return e.Context.PRNumber, true
			}
			return nil, false
		case "decision_id":
			if e.Context.DecisionID != "" {
				return e.Context.DecisionID, true
			}
			return nil, false
		}
	}

	for _, payload := range []map[string]any{e.Tool, e.Hook, e.Git, e.Task, e.Container, e.Decision, e.Metadata} {
		if payload == nil {
			continue
		}
		if v, ok := payload[name]; ok {
			return v, true
		}
	}
	return nil, false
}

func asList(v any) ([]any, bool) {
	switch list := v.(type) {
	case []any:
		return list, true
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func scalarEqual(got, want any) bool {
	return fmt.Sprint(got) == fmt.Sprint(want)
}

// anyOf holds when the field's value (or at least one element of a
// list-valued field) appears in the filter list.
func anyOf(got, want any) bool {
	wantList, ok := asList(want)
	if !ok {
		wantList = []any{want}
	}
	gotList, ok := asList(got)
	if !ok {
		gotList = []any{got}
	}
	for _, g := range gotList {
		for _, w := range wantList {
			if scalarEqual(g, w) {
				return true
			}
		}
	}
	return false
}

// allOf holds when every element of the filter list appears in the
// field, which must itself be list-valued.
func allOf(got, want any) bool {
	wantList, ok := asList(want)
	if !ok {
		wantList = []any{want}
	}
	gotList, ok := asList(got)
	if !ok {
		return false
	}
	for _, w := range wantList {
		found := false
		for _, g := range gotList {
			if scalarEqual(g, w) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
