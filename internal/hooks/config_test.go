package hooks

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "hooks.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func writeScript(t *testing.T, hooksDir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(hooksDir, name), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func TestLoadValidManifest(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "archive.sh")
	path := writeManifest(t, dir, `
hooks:
  - name: archive
    events:
      - type: task.completed
    script: archive.sh
    timeout: 30
    fail_mode: continue
  - name: notify
    events:
      - type: "task.*"
        filter:
          task_id: task-1
    script: archive.sh
`)

	cfg, err := Load(path, dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Hooks) != 2 {
		t.Fatalf("loaded %d hooks, want 2", len(cfg.Hooks))
	}
	if cfg.Hooks[0].Timeout != 30 {
		t.Errorf("Timeout = %d, want 30", cfg.Hooks[0].Timeout)
	}
	if cfg.Hooks[1].Timeout != DefaultTimeout {
		t.Errorf("default Timeout = %d, want %d", cfg.Hooks[1].Timeout, DefaultTimeout)
	}
	if cfg.Hooks[1].FailMode != FailContinue {
		t.Errorf("default FailMode = %q, want continue", cfg.Hooks[1].FailMode)
	}
}

func TestLoadMissingFileIsNoHooks(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "absent.yaml"), dir)
	if err != nil {
		t.Fatalf("Load of missing manifest = %v, want nil error", err)
	}
	if len(cfg.Hooks) != 0 {
		t.Errorf("missing manifest produced %d hooks, want 0", len(cfg.Hooks))
	}
}

func TestLoadRejections(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		field    string
	}{
		{"duplicate names", `
hooks:
  - name: dup
    events: [{type: task.completed}]
    script: ok.sh
  - name: dup
    events: [{type: task.created}]
    script: ok.sh
`, "name"},
		{"missing name", `
hooks:
  - events: [{type: task.completed}]
    script: ok.sh
`, "name"},
		{"no events", `
hooks:
  - name: h
    script: ok.sh
`, "events"},
		{"bad pattern", `
hooks:
  - name: h
    events: [{type: task}]
    script: ok.sh
`, "events.type"},
		{"timeout too large", `
hooks:
  - name: h
    events: [{type: task.completed}]
    script: ok.sh
    timeout: 601
`, "timeout"},
		{"timeout negative", `
hooks:
  - name: h
    events: [{type: task.completed}]
    script: ok.sh
    timeout: -1
`, "timeout"},
		{"unknown fail_mode", `
hooks:
  - name: h
    events: [{type: task.completed}]
    script: ok.sh
    fail_mode: shrug
`, "fail_mode"},
		{"parent segment in script", `
hooks:
  - name: h
    events: [{type: task.completed}]
    script: ../../etc/passwd
`, "script"},
		{"missing script", `
hooks:
  - name: h
    events: [{type: task.completed}]
    script: ghost.sh
`, "script"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeScript(t, dir, "ok.sh")
			path := writeManifest(t, dir, tt.manifest)

			_, err := Load(path, dir)
			if err == nil {
				t.Fatal("Load accepted an invalid manifest")
			}
			ce, ok := err.(*ConfigError)
			if !ok {
				t.Fatalf("error type %T, want *ConfigError", err)
			}
			if ce.Field != tt.field {
				t.Errorf("ConfigError.Field = %q, want %q", ce.Field, tt.field)
			}
			if ce.Line == 0 && tt.field != "yaml" {
				t.Errorf("ConfigError.Line = 0, want manifest line")
			}
		})
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "hooks: [whoops")
	_, err := Load(path, dir)
	if err == nil {
		t.Fatal("Load accepted malformed YAML")
	}
	if _, ok := err.(*ConfigError); !ok {
		t.Fatalf("error type %T, want *ConfigError", err)
	}
}

func TestResolveScriptSymlinkEscape(t *testing.T) {
	hooksDir := t.TempDir()
	outside := t.TempDir()

	target := filepath.Join(outside, "evil.sh")
	if err := os.WriteFile(target, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	link := filepath.Join(hooksDir, "innocent.sh")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, err := ResolveScript(hooksDir, "innocent.sh")
	if err == nil {
		t.Fatal("ResolveScript followed a symlink outside the hooks directory")
	}
	if !strings.Contains(err.Error(), "outside hooks directory") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestResolveScriptAbsoluteOutside(t *testing.T) {
	hooksDir := t.TempDir()
	if _, err := ResolveScript(hooksDir, "/etc/hostname"); err == nil {
		t.Fatal("ResolveScript accepted an absolute path outside the hooks directory")
	}
}

func TestResolveScriptDirectory(t *testing.T) {
	hooksDir := t.TempDir()
	if err := os.Mkdir(filepath.Join(hooksDir, "sub"), 0o755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	if _, err := ResolveScript(hooksDir, "sub"); err == nil {
		t.Fatal("ResolveScript accepted a directory")
	}
}
