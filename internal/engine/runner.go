package engine

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"syscall"
	"time"
)

// DefaultGracePeriod is how long a script gets between the graceful
// termination signal and the forceful kill.
const DefaultGracePeriod = 5 * time.Second

// RunResult is the raw outcome of one subprocess run.
type RunResult struct {
	PID         int
	ExitCode    int
	StdoutLines int
	StderrLines int
	TimedOut    bool
	Err         error // spawn or wait failure, nil for a clean non-zero exit
}

// Runner spawns a hook script with the event JSON on stdin. The seam
// exists so dispatch tests can substitute a fake subprocess.
type Runner interface {
	Run(ctx context.Context, script string, env []string, stdin []byte, timeout time.Duration, started func(pid int)) RunResult
}

// execRunner is the default Runner backed by os/exec.
type execRunner struct {
	workDir string
	grace   time.Duration
}

// Run executes the script, delivering stdin and enforcing the timeout
// with SIGTERM followed by SIGKILL after the grace period. Only line
// counts of stdout/stderr are retained.
func (r *execRunner) Run(ctx context.Context, script string, env []string, stdin []byte, timeout time.Duration, started func(pid int)) RunResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, script)
	cmd.Dir = r.workDir
	cmd.Env = env
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = r.grace

	var stdout, stderr lineCounter
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return RunResult{ExitCode: -1, Err: err}
	}
	if started != nil {
		started(cmd.Process.Pid)
	}

	err := cmd.Wait()

	res := RunResult{
		PID:         cmd.Process.Pid,
		StdoutLines: stdout.count(),
		StderrLines: stderr.count(),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		return res
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			res.Err = err
		}
	}
	return res
}

// lineCounter counts newline-terminated lines, plus a trailing partial
// line, without retaining any content.
type lineCounter struct {
	lines   int
	pending bool
}

func (w *lineCounter) Write(p []byte) (int, error) {
	for _, b := range p {
		if b == '\n' {
			w.lines++
			w.pending = false
		} else {
			w.pending = true
		}
	}
	return len(p), nil
}

func (w *lineCounter) count() int {
	if w.pending {
		return w.lines + 1
	}
	return w.lines
}
