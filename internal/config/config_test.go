package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/delaney/hookline/internal/store"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hookline.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Store.MaxFileSize != DefaultMaxEventFileSize {
		t.Errorf("Store.MaxFileSize = %d, want %d", cfg.Store.MaxFileSize, DefaultMaxEventFileSize)
	}
	// The config default must agree with the store's own rotation
	// default, or the CLI silently overrides the documented behavior.
	if DefaultMaxEventFileSize != store.DefaultMaxFileSize {
		t.Errorf("DefaultMaxEventFileSize = %d, store default = %d", DefaultMaxEventFileSize, store.DefaultMaxFileSize)
	}
	if cfg.Store.MaxFileSize != 10*1024*1024 {
		t.Errorf("Store.MaxFileSize = %d, want 10 MB", cfg.Store.MaxFileSize)
	}
	if cfg.Store.RetentionDays != DefaultRetentionDays {
		t.Errorf("Store.RetentionDays = %d, want %d", cfg.Store.RetentionDays, DefaultRetentionDays)
	}
	if cfg.Audit.Backups != DefaultAuditBackups {
		t.Errorf("Audit.Backups = %d, want %d", cfg.Audit.Backups, DefaultAuditBackups)
	}
	if cfg.Logging.Level != DefaultLogLevel {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, DefaultLogLevel)
	}
	if cfg.HooksDir != filepath.Join(cfg.DataDir, "hooks") {
		t.Errorf("HooksDir = %q, want under data dir", cfg.HooksDir)
	}
	if cfg.Manifest != filepath.Join(cfg.DataDir, "hooks.yaml") {
		t.Errorf("Manifest = %q, want under data dir", cfg.Manifest)
	}
	if cfg.AgentID == "" {
		t.Error("AgentID empty, want hostname fallback")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
data_dir: /var/lib/hookline
agent_id: builder-1
store:
  retention_days: 30
logging:
  level: debug
  format: text
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.DataDir != "/var/lib/hookline" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.AgentID != "builder-1" {
		t.Errorf("AgentID = %q, want builder-1", cfg.AgentID)
	}
	if cfg.Store.RetentionDays != 30 {
		t.Errorf("Store.RetentionDays = %d, want 30", cfg.Store.RetentionDays)
	}
	// Unset fields keep defaults.
	if cfg.Store.MaxFileSize != DefaultMaxEventFileSize {
		t.Errorf("Store.MaxFileSize = %d, want default", cfg.Store.MaxFileSize)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.EventsDir() != "/var/lib/hookline/events" {
		t.Errorf("EventsDir = %q", cfg.EventsDir())
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: info
`)
	t.Setenv("HOOKLINE_LOGGING_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn (env override)", cfg.Logging.Level)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad log level", "logging:\n  level: loud\n"},
		{"bad log format", "logging:\n  format: xml\n"},
		{"zero retention", "store:\n  retention_days: 0\n"},
		{"negative audit size", "audit:\n  max_size: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Error("Load accepted invalid config")
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandPath("~/data"); got != filepath.Join(home, "data") {
		t.Errorf("expandPath(~/data) = %q", got)
	}
	if got := expandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("expandPath(/abs/path) = %q", got)
	}
}
