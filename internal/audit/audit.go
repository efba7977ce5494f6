// Package audit records the execution lifecycle of every hook run to
// an append-only JSONL log. Every execution produces a started entry
// and exactly one terminal entry.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Status is one hook execution state transition.
type Status string

const (
	StatusStarted Status = "started"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusTimeout Status = "timeout"
	StatusError   Status = "error"
)

const (
	// DefaultMaxSize triggers size-based rotation (10 MB).
	DefaultMaxSize = 10 * 1024 * 1024
	// DefaultBackups is how many rotated logs are kept (.1 through .5).
	DefaultBackups = 5
)

// Entry is one audit record. Stdout/stderr are recorded as line counts
// only, to bound log size.
type Entry struct {
	Timestamp   time.Time `json:"timestamp"`
	EventID     string    `json:"event_id"`
	Hook        string    `json:"hook"`
	Status      Status    `json:"status"`
	ExitCode    int       `json:"exit_code"`
	DurationMS  int64     `json:"duration_ms"`
	PID         int       `json:"pid"`
	StdoutLines int       `json:"stdout_lines"`
	StderrLines int       `json:"stderr_lines"`
	Error       string    `json:"error,omitempty"`
}

// Logger is an append-only audit log with size-based rotation.
type Logger struct {
	path    string
	maxSize int64
	backups int

	mu   sync.Mutex
	file *os.File
	size int64
}

// Option configures a Logger.
type Option func(*Logger)

// WithMaxSize sets the rotation threshold in bytes.
func WithMaxSize(n int64) Option {
	return func(l *Logger) { l.maxSize = n }
}

// WithBackups sets how many rotated files to keep.
func WithBackups(n int) Option {
	return func(l *Logger) { l.backups = n }
}

// New opens or creates the audit log at path.
func New(path string, opts ...Option) (*Logger, error) {
	l := &Logger{
		path:    path,
		maxSize: DefaultMaxSize,
		backups: DefaultBackups,
	}
	for _, opt := range opts {
		opt(l)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating audit log dir: %w", err)
	}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

// Path returns the active audit log path.
func (l *Logger) Path() string { return l.path }

func (l *Logger) open() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat audit log: %w", err)
	}
	l.file = f
	l.size = info.Size()
	return nil
}

// Record appends one entry, rotating first when the active file is
// over the size threshold. The write is synced so a crash cannot lose
// a recorded transition.
func (l *Logger) Record(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling audit entry: %w", err)
	}
	data = append(data, '\n')

	if l.maxSize > 0 && l.size+int64(len(data)) > l.maxSize && l.size > 0 {
		if err := l.rotate(); err != nil {
			return err
		}
	}

	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("writing audit entry: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("syncing audit log: %w", err)
	}
	l.size += int64(len(data))
	return nil
}

// rotate shifts backups up (.1 -> .2, ...) dropping the oldest, moves
// the active log to .1, and reopens a fresh file. Must be called with
// the lock held.
func (l *Logger) rotate() error {
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("closing audit log: %w", err)
	}
	l.file = nil

	oldest := fmt.Sprintf("%s.%d", l.path, l.backups)
	_ = os.Remove(oldest)
	for n := l.backups - 1; n >= 1; n-- {
		from := fmt.Sprintf("%s.%d", l.path, n)
		to := fmt.Sprintf("%s.%d", l.path, n+1)
		if _, err := os.Stat(from); err == nil {
			if err := os.Rename(from, to); err != nil {
				return fmt.Errorf("rotating audit log: %w", err)
			}
		}
	}
	if err := os.Rename(l.path, l.path+".1"); err != nil {
		return fmt.Errorf("rotating audit log: %w", err)
	}
	return l.open()
}

// Close closes the audit log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// Filter narrows a Tail query. Zero values match everything.
type Filter struct {
	Hook    string
	Status  Status
	EventID string
	Last    int // keep only the most recent N entries; 0 keeps all
}

func (f Filter) matches(e Entry) bool {
	if f.Hook != "" && e.Hook != f.Hook {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.EventID != "" && e.EventID != f.EventID {
		return false
	}
	return true
}

// Tail reads entries matching the filter, oldest first, spanning
// rotated backups and the active log.
func (l *Logger) Tail(f Filter) ([]Entry, error) {
	var paths []string
	for n := l.backups; n >= 1; n-- {
		paths = append(paths, fmt.Sprintf("%s.%d", l.path, n))
	}
	paths = append(paths, l.path)

	var entries []Entry
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading audit log: %w", err)
		}
		for _, line := range splitLines(data) {
			var e Entry
			if err := json.Unmarshal(line, &e); err != nil {
				continue
			}
			if f.matches(e) {
				entries = append(entries, e)
			}
		}
	}

	if f.Last > 0 && len(entries) > f.Last {
		entries = entries[len(entries)-f.Last:]
	}
	return entries, nil
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lines = append(lines, data[start:i])
			}
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
