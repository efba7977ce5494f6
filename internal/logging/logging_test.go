package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewWritesDatedFile(t *testing.T) {
	dir := t.TempDir()
	l, err := New(Config{Level: "info", Dir: dir})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer l.Close()

	l.Info("hello")

	want := "hookline-" + time.Now().UTC().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, want))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(data[:len(data)-1], &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["message"] != "hello" {
		t.Errorf("message = %v, want hello", entry["message"])
	}
}

func TestComponentField(t *testing.T) {
	dir := t.TempDir()
	l, err := New(Config{Dir: dir})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer l.Close()

	l.WithComponent("dispatcher").InfoCtx("dispatched", map[string]any{"hooks": 2})

	files, _ := os.ReadDir(dir)
	if len(files) != 1 {
		t.Fatalf("expected one log file, got %d", len(files))
	}
	data, err := os.ReadFile(filepath.Join(dir, files[0].Name()))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), `"component":"dispatcher"`) {
		t.Errorf("component field missing: %s", data)
	}
	if !strings.Contains(string(data), `"hooks":2`) {
		t.Errorf("structured field missing: %s", data)
	}
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()
	l, err := New(Config{Level: "warn", Dir: dir})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer l.Close()

	l.Info("dropped")
	l.Warn("kept")

	files, _ := os.ReadDir(dir)
	data, err := os.ReadFile(filepath.Join(dir, files[0].Name()))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if strings.Contains(string(data), "dropped") {
		t.Error("info message written at warn level")
	}
	if !strings.Contains(string(data), "kept") {
		t.Error("warn message missing")
	}
}

func TestInvalidLevel(t *testing.T) {
	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Fatal("New accepted an invalid level")
	}
}

func TestGetWithoutInit(t *testing.T) {
	if Get() == nil {
		t.Fatal("Get returned nil before Init")
	}
}
