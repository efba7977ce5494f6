// Package hooks loads the declarative hook manifest and matches
// incoming events against it. Matching is pure; execution lives in the
// engine package.
package hooks

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Timeout bounds for hook scripts, in seconds.
const (
	MinTimeout     = 1
	MaxTimeout     = 600
	DefaultTimeout = 60
)

// FailMode controls whether a hook failure blocks the caller.
type FailMode string

const (
	// FailContinue records the failure and lets the workflow proceed
	// (fail-open, the default).
	FailContinue FailMode = "continue"
	// FailStop propagates a blocking error to the dispatch caller.
	FailStop FailMode = "stop"
)

// ConfigError reports a manifest violation. Any single violation
// disables all hooks: partial activation would leave silent gaps in
// automation coverage.
type ConfigError struct {
	Path   string
	Line   int
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("config error: %s:%d: %s: %s", e.Path, e.Line, e.Field, e.Reason)
	}
	return fmt.Sprintf("config error: %s: %s: %s", e.Path, e.Field, e.Reason)
}

// EventSpec is one match rule of a hook: a type pattern with optional
// wildcard segments plus an optional field filter.
type EventSpec struct {
	Type   string         `yaml:"type"`
	Filter map[string]any `yaml:"filter,omitempty"`
}

// Hook is one declarative automation unit. Immutable for the duration
// of a dispatch cycle; the manifest is re-read only between cycles.
type Hook struct {
	Name     string      `yaml:"name"`
	Events   []EventSpec `yaml:"events"`
	Script   string      `yaml:"script"`
	Timeout  int         `yaml:"timeout"`
	FailMode FailMode    `yaml:"fail_mode"`

	line int // manifest line, for error reporting
}

// Config is a validated hook manifest.
type Config struct {
	Hooks []Hook `yaml:"hooks"`
}

// Load reads and validates the manifest at path. Scripts must resolve
// inside hooksDir. A missing manifest is a valid "no hooks" state; any
// other problem returns a ConfigError and no configuration.
func Load(path, hooksDir string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, &ConfigError{Path: path, Field: "file", Reason: err.Error()}
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &ConfigError{Path: path, Field: "yaml", Reason: err.Error()}
	}

	var cfg Config
	if err := root.Decode(&cfg); err != nil {
		return nil, &ConfigError{Path: path, Field: "yaml", Reason: err.Error()}
	}
	attachLines(&root, cfg.Hooks)

	if err := validate(&cfg, path, hooksDir); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// attachLines records the manifest line of each hook entry so
// validation errors can point at it.
func attachLines(root *yaml.Node, hooks []Hook) {
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if doc.Content[i].Value != "hooks" {
			continue
		}
		seq := doc.Content[i+1]
		if seq.Kind != yaml.SequenceNode {
			return
		}
		for j := range seq.Content {
			if j < len(hooks) {
				hooks[j].line = seq.Content[j].Line
			}
		}
	}
}

func validate(cfg *Config, path, hooksDir string) error {
	seen := make(map[string]bool, len(cfg.Hooks))
	for i := range cfg.Hooks {
		h := &cfg.Hooks[i]
		fail := func(field, reason string) error {
			return &ConfigError{Path: path, Line: h.line, Field: field, Reason: reason}
		}

		if h.Name == "" {
			return fail("name", "required")
		}
		if seen[h.Name] {
			return fail("name", fmt.Sprintf("duplicate hook name %q", h.Name))
		}
		seen[h.Name] = true

		if len(h.Events) == 0 {
			return fail("events", "at least one event spec required")
		}
		for _, spec := range h.Events {
			if err := ValidatePattern(spec.Type); err != nil {
				return fail("events.type", err.Error())
			}
		}

		if h.Timeout == 0 {
			h.Timeout = DefaultTimeout
		}
		if h.Timeout < MinTimeout || h.Timeout > MaxTimeout {
			return fail("timeout", fmt.Sprintf("%d out of bounds [%d,%d]", h.Timeout, MinTimeout, MaxTimeout))
		}

		switch h.FailMode {
		case "":
			h.FailMode = FailContinue
		case FailContinue, FailStop:
		default:
			return fail("fail_mode", fmt.Sprintf("unknown mode %q", h.FailMode))
		}

		if _, err := ResolveScript(hooksDir, h.Script); err != nil {
			return fail("script", err.Error())
		}
	}
	return nil
}

// ResolveScript resolves a hook script path and enforces that it is a
// real file inside hooksDir. Symlinks are resolved before the
// containment check so a link cannot escape the allow-listed tree.
// The engine calls this again immediately before execution.
func ResolveScript(hooksDir, script string) (string, error) {
	if script == "" {
		return "", fmt.Errorf("script path required")
	}
	for _, seg := range strings.Split(filepath.ToSlash(script), "/") {
		if seg == ".." {
			return "", fmt.Errorf("script path %q contains a parent segment", script)
		}
	}

	base, err := filepath.EvalSymlinks(hooksDir)
	if err != nil {
		return "", fmt.Errorf("resolving hooks dir %q: %w", hooksDir, err)
	}

	candidate := script
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(base, candidate)
	}
	resolved, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		return "", fmt.Errorf("resolving script %q: %w", script, err)
	}

	rel, err := filepath.Rel(base, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("script %q resolves outside hooks directory", script)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("script %q: %w", script, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("script %q is a directory", script)
	}
	return resolved, nil
}
