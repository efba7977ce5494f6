// Package engine executes matched hooks as isolated subprocesses under
// security and timeout controls, recording every lifecycle transition
// to the audit log.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/delaney/hookline/internal/audit"
	"github.com/delaney/hookline/internal/event"
	"github.com/delaney/hookline/internal/hooks"
	"github.com/delaney/hookline/internal/logging"
)

// SecurityError reports a security-boundary violation: a script path
// outside the hooks directory or a traversal attempt. Always
// fail-closed, regardless of the hook's configured fail_mode.
type SecurityError struct {
	Hook   string
	Script string
	Reason string
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("security error: hook %q script %q: %s", e.Hook, e.Script, e.Reason)
}

// ExecutionError reports a hook run that must block the caller: a
// fail_mode=stop hook that failed, timed out, or could not be spawned.
type ExecutionError struct {
	Hook     string
	EventID  string
	Status   audit.Status
	ExitCode int
	Reason   string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("hook %q failed for event %s: %s (%s, exit %d)",
		e.Hook, e.EventID, e.Reason, e.Status, e.ExitCode)
}

// ExecutionResult is the recorded outcome of one hook run.
type ExecutionResult struct {
	Hook        string
	EventID     string
	Status      audit.Status
	ExitCode    int
	Duration    time.Duration
	PID         int
	StdoutLines int
	StderrLines int
	Reason      string // failure detail, empty on success
}

// Executor runs single hooks. It owns path re-validation, environment
// sanitization, and audit recording; sequencing across hooks belongs
// to the Dispatcher.
type Executor struct {
	hooksDir  string
	audit     *audit.Logger
	logger    *logging.Logger
	runner    Runner
	envAllow  []string
	envCustom map[string]string
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithRunner substitutes the subprocess runner (for tests).
func WithRunner(r Runner) ExecutorOption {
	return func(x *Executor) { x.runner = r }
}

// WithWorkDir sets the working directory hook scripts run in.
func WithWorkDir(dir string) ExecutorOption {
	return func(x *Executor) { x.runner = &execRunner{workDir: dir, grace: DefaultGracePeriod} }
}

// WithGracePeriod overrides the SIGTERM-to-SIGKILL delay.
func WithGracePeriod(d time.Duration) ExecutorOption {
	return func(x *Executor) {
		if r, ok := x.runner.(*execRunner); ok {
			r.grace = d
		}
	}
}

// WithEnv sets the allow-list and custom variables for hook
// environments.
func WithEnv(allow []string, custom map[string]string) ExecutorOption {
	return func(x *Executor) {
		x.envAllow = allow
		x.envCustom = custom
	}
}

// NewExecutor creates an Executor for scripts under hooksDir.
func NewExecutor(hooksDir string, auditLog *audit.Logger, opts ...ExecutorOption) *Executor {
	x := &Executor{
		hooksDir: hooksDir,
		audit:    auditLog,
		logger:   logging.Component("engine"),
		runner:   &execRunner{grace: DefaultGracePeriod},
		envAllow: DefaultEnvAllowlist,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Execute runs one hook against one event. The script path is
// re-validated against the hooks directory immediately before the
// spawn: the manifest may have been tampered with between load and
// dispatch. The event is delivered as a single JSON document on stdin,
// never as an argument.
//
// The returned error is non-nil only for security violations and audit
// I/O failures; script failures and timeouts are reported through the
// result's Status and left to the caller's fail_mode policy.
func (x *Executor) Execute(ctx context.Context, h hooks.Hook, e *event.Event) (*ExecutionResult, error) {
	result := &ExecutionResult{Hook: h.Name, EventID: e.EventID}

	script, err := hooks.ResolveScript(x.hooksDir, h.Script)
	if err != nil {
		secErr := &SecurityError{Hook: h.Name, Script: h.Script, Reason: err.Error()}
		result.Status = audit.StatusError
		result.ExitCode = -1
		result.Reason = secErr.Error()
		if recErr := x.record(result); recErr != nil {
			return result, recErr
		}
		x.logger.ErrorCtx("refusing to execute hook", map[string]any{
			"hook": h.Name, "script": h.Script, "reason": err.Error(),
		})
		return result, secErr
	}

	payload, err := e.Marshal()
	if err != nil {
		result.Status = audit.StatusError
		result.ExitCode = -1
		result.Reason = fmt.Sprintf("encoding event: %v", err)
		if recErr := x.record(result); recErr != nil {
			return result, recErr
		}
		return result, nil
	}

	env := sanitizeEnv(x.envAllow, x.envCustom, x.logger)
	timeout := time.Duration(h.Timeout) * time.Second

	var startErr error
	start := time.Now()
	run := x.runner.Run(ctx, script, env, payload, timeout, func(pid int) {
		result.PID = pid
		startErr = x.audit.Record(audit.Entry{
			EventID: e.EventID,
			Hook:    h.Name,
			Status:  audit.StatusStarted,
			PID:     pid,
		})
	})
	result.Duration = time.Since(start)
	result.ExitCode = run.ExitCode
	result.StdoutLines = run.StdoutLines
	result.StderrLines = run.StderrLines
	if run.PID != 0 {
		result.PID = run.PID
	}
	if startErr != nil {
		return result, startErr
	}

	switch {
	case run.TimedOut:
		result.Status = audit.StatusTimeout
		result.Reason = fmt.Sprintf("timed out after %s", timeout)
	case run.Err != nil:
		result.Status = audit.StatusError
		result.Reason = run.Err.Error()
		// A spawn failure never produced a started entry.
		if run.PID == 0 {
			if recErr := x.audit.Record(audit.Entry{
				EventID: e.EventID, Hook: h.Name, Status: audit.StatusStarted,
			}); recErr != nil {
				return result, recErr
			}
		}
	case run.ExitCode != 0:
		result.Status = audit.StatusFailed
		result.Reason = fmt.Sprintf("exit code %d", run.ExitCode)
	default:
		result.Status = audit.StatusSuccess
	}

	if err := x.record(result); err != nil {
		return result, err
	}

	x.logger.InfoCtx("hook executed", map[string]any{
		"hook":     h.Name,
		"event_id": e.EventID,
		"status":   string(result.Status),
		"exit":     result.ExitCode,
		"duration": result.Duration.String(),
	})
	return result, nil
}

func (x *Executor) record(r *ExecutionResult) error {
	return x.audit.Record(audit.Entry{
		EventID:     r.EventID,
		Hook:        r.Hook,
		Status:      r.Status,
		ExitCode:    r.ExitCode,
		DurationMS:  r.Duration.Milliseconds(),
		PID:         r.PID,
		StdoutLines: r.StdoutLines,
		StderrLines: r.StderrLines,
		Error:       r.Reason,
	})
}
