package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/delaney/hookline/internal/audit"
	"github.com/delaney/hookline/internal/event"
	"github.com/delaney/hookline/internal/hooks"
)

func writeHookScript(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func newTestExecutor(t *testing.T, hooksDir string, opts ...ExecutorOption) (*Executor, *audit.Logger) {
	t.Helper()
	log, err := audit.New(filepath.Join(t.TempDir(), "audit.jsonl"))
	if err != nil {
		t.Fatalf("audit.New failed: %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })

	opts = append([]ExecutorOption{WithWorkDir(t.TempDir())}, opts...)
	return NewExecutor(hooksDir, log, opts...), log
}

func sampleEvent(id string) *event.Event {
	return &event.Event{
		SchemaVersion: event.CurrentSchemaVersion,
		EventType:     "task.completed",
		EventID:       id,
		Timestamp:     time.Now().UTC(),
		AgentID:       "agent-1",
		Context:       &event.Context{TaskID: "task-1"},
	}
}

func hook(name, script string, timeout int) hooks.Hook {
	return hooks.Hook{
		Name:     name,
		Events:   []hooks.EventSpec{{Type: "task.*"}},
		Script:   script,
		Timeout:  timeout,
		FailMode: hooks.FailContinue,
	}
}

func TestExecuteSuccess(t *testing.T) {
	hooksDir := t.TempDir()
	writeHookScript(t, hooksDir, "ok.sh", "cat > /dev/null\necho one\necho two\necho three\n")
	x, log := newTestExecutor(t, hooksDir)

	res, err := x.Execute(context.Background(), hook("ok", "ok.sh", 10), sampleEvent("ev-1"))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Status != audit.StatusSuccess {
		t.Errorf("Status = %s, want success", res.Status)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if res.StdoutLines != 3 {
		t.Errorf("StdoutLines = %d, want 3", res.StdoutLines)
	}
	if res.PID == 0 {
		t.Error("PID not captured")
	}

	entries, err := log.Tail(audit.Filter{EventID: "ev-1"})
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("audit entries = %d, want started + terminal", len(entries))
	}
	if entries[0].Status != audit.StatusStarted || entries[1].Status != audit.StatusSuccess {
		t.Errorf("audit sequence = [%s %s], want [started success]", entries[0].Status, entries[1].Status)
	}
}

func TestExecuteDeliversEventOnStdin(t *testing.T) {
	hooksDir := t.TempDir()
	out := filepath.Join(t.TempDir(), "received.json")
	writeHookScript(t, hooksDir, "capture.sh", "cat > "+out+"\n")
	x, _ := newTestExecutor(t, hooksDir)

	e := sampleEvent("ev-stdin")
	if _, err := x.Execute(context.Background(), hook("capture", "capture.sh", 10), e); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("hook did not receive stdin: %v", err)
	}
	got, err := event.Parse(data)
	if err != nil {
		t.Fatalf("stdin was not a single JSON event: %v", err)
	}
	if got.EventID != "ev-stdin" {
		t.Errorf("delivered event_id = %q, want ev-stdin", got.EventID)
	}
}

func TestExecuteNonZeroExit(t *testing.T) {
	hooksDir := t.TempDir()
	writeHookScript(t, hooksDir, "fail.sh", "echo nope >&2\nexit 3\n")
	x, log := newTestExecutor(t, hooksDir)

	res, err := x.Execute(context.Background(), hook("fail", "fail.sh", 10), sampleEvent("ev-2"))
	if err != nil {
		t.Fatalf("Execute returned error for script failure: %v", err)
	}
	if res.Status != audit.StatusFailed {
		t.Errorf("Status = %s, want failed", res.Status)
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if res.StderrLines != 1 {
		t.Errorf("StderrLines = %d, want 1", res.StderrLines)
	}

	entries, _ := log.Tail(audit.Filter{EventID: "ev-2", Status: audit.StatusFailed})
	if len(entries) != 1 {
		t.Errorf("failed audit entries = %d, want 1", len(entries))
	}
}

func TestExecuteTimeout(t *testing.T) {
	hooksDir := t.TempDir()
	writeHookScript(t, hooksDir, "slow.sh", "sleep 30\n")
	x, log := newTestExecutor(t, hooksDir)

	start := time.Now()
	res, err := x.Execute(context.Background(), hook("slow", "slow.sh", 1), sampleEvent("ev-3"))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	elapsed := time.Since(start)

	if res.Status != audit.StatusTimeout {
		t.Fatalf("Status = %s, want timeout", res.Status)
	}
	if elapsed > 1*time.Second+DefaultGracePeriod+2*time.Second {
		t.Errorf("hook terminated after %s, want within timeout + grace", elapsed)
	}

	if entries, _ := log.Tail(audit.Filter{EventID: "ev-3", Status: audit.StatusSuccess}); len(entries) != 0 {
		t.Error("timed-out hook recorded success")
	}
	if entries, _ := log.Tail(audit.Filter{EventID: "ev-3", Status: audit.StatusTimeout}); len(entries) != 1 {
		t.Error("timed-out hook missing timeout audit entry")
	}
}

func TestExecuteForcefulKill(t *testing.T) {
	hooksDir := t.TempDir()
	// Ignores SIGTERM; only the follow-up SIGKILL can stop it.
	writeHookScript(t, hooksDir, "stubborn.sh", "trap '' TERM\nsleep 30\n")
	x, _ := newTestExecutor(t, hooksDir, WithGracePeriod(1*time.Second))

	start := time.Now()
	res, err := x.Execute(context.Background(), hook("stubborn", "stubborn.sh", 1), sampleEvent("ev-4"))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	elapsed := time.Since(start)

	if res.Status != audit.StatusTimeout {
		t.Errorf("Status = %s, want timeout", res.Status)
	}
	if elapsed > 5*time.Second {
		t.Errorf("stubborn hook survived %s, want SIGKILL after grace period", elapsed)
	}
}

func TestExecuteRefusesEscapedPath(t *testing.T) {
	hooksDir := t.TempDir()
	x, log := newTestExecutor(t, hooksDir)

	tests := []string{
		"../../etc/passwd",
		"/bin/sh",
		"missing.sh",
	}
	for _, script := range tests {
		t.Run(script, func(t *testing.T) {
			_, err := x.Execute(context.Background(), hook("evil", script, 10), sampleEvent("ev-sec"))
			if err == nil {
				t.Fatal("Execute ran a script outside the hooks directory")
			}
			if _, ok := err.(*SecurityError); !ok {
				t.Fatalf("error type %T, want *SecurityError", err)
			}
		})
	}

	entries, _ := log.Tail(audit.Filter{Status: audit.StatusError})
	if len(entries) != len(tests) {
		t.Errorf("security refusals audited = %d, want %d", len(entries), len(tests))
	}
}

func TestExecuteRefusesSymlinkEscape(t *testing.T) {
	hooksDir := t.TempDir()
	outside := filepath.Join(t.TempDir(), "evil.sh")
	if err := os.WriteFile(outside, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := os.Symlink(outside, filepath.Join(hooksDir, "legit.sh")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	x, _ := newTestExecutor(t, hooksDir)

	_, err := x.Execute(context.Background(), hook("legit", "legit.sh", 10), sampleEvent("ev-sym"))
	if err == nil {
		t.Fatal("Execute followed a symlink out of the hooks directory")
	}
	if _, ok := err.(*SecurityError); !ok {
		t.Fatalf("error type %T, want *SecurityError", err)
	}
}

func TestExecuteSanitizedEnvironment(t *testing.T) {
	hooksDir := t.TempDir()
	out := filepath.Join(t.TempDir(), "env.txt")
	writeHookScript(t, hooksDir, "env.sh",
		"echo \"safe=$SAFE_VAR\" > "+out+"\n"+
			"echo \"evil=$EVIL_VAR\" >> "+out+"\n"+
			"echo \"secret=$HOOKLINE_TEST_SECRET\" >> "+out+"\n")

	t.Setenv("HOOKLINE_TEST_SECRET", "leaked")

	x, _ := newTestExecutor(t, hooksDir, WithEnv(DefaultEnvAllowlist, map[string]string{
		"SAFE_VAR": "ok",
		"EVIL_VAR": "rm -rf; echo pwned",
	}))

	res, err := x.Execute(context.Background(), hook("env", "env.sh", 10), sampleEvent("ev-env"))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Status != audit.StatusSuccess {
		t.Fatalf("Status = %s, want success", res.Status)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	got := string(data)
	if !strings.Contains(got, "safe=ok") {
		t.Errorf("custom variable not passed: %s", got)
	}
	if !strings.Contains(got, "evil=\n") {
		t.Errorf("metacharacter variable not dropped: %s", got)
	}
	if !strings.Contains(got, "secret=\n") {
		t.Errorf("non-allow-listed variable leaked: %s", got)
	}
}

func TestLineCounter(t *testing.T) {
	var w lineCounter
	_, _ = w.Write([]byte("a\nb\nc"))
	if got := w.count(); got != 3 {
		t.Errorf("count() = %d, want 3 (trailing partial line counts)", got)
	}
	_, _ = w.Write([]byte("\n"))
	if got := w.count(); got != 3 {
		t.Errorf("count() = %d after closing newline, want 3", got)
	}
}
