// Package store implements the append-only event log. The daily JSONL
// file is the single source of truth; derived views (decision log,
// per-task log, per-trace log) are copies that can always be rebuilt
// by filtering it.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/delaney/hookline/internal/event"
)

const (
	// DefaultMaxFileSize triggers size-based rotation of the active
	// daily file (10 MB).
	DefaultMaxFileSize = 10 * 1024 * 1024
	// DefaultRetentionDays is how long segments stay uncompressed.
	// Older segments are gzipped in place, never deleted.
	DefaultRetentionDays = 90

	dateFormat = "2006-01-02"
)

// StoreError reports an I/O failure in the event log. Store errors are
// always surfaced; silently dropping an event would break the audit
// guarantee.
type StoreError struct {
	Op   string
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Offset identifies where an event landed in the log.
type Offset struct {
	File string `json:"file"`
	Line int64  `json:"line"`
}

// Store is a single-writer append-only event log with daily rotation.
// All writes are serialized through an in-process mutex; the store is
// the sole ingestion point for every producer in the process.
type Store struct {
	dir           string
	maxFileSize   int64
	retentionDays int
	now           func() time.Time

	mu       sync.Mutex
	file     *os.File
	fileDate string
	size     int64
	line     int64
}

// Option configures a Store.
type Option func(*Store)

// WithMaxFileSize sets the size-based rotation threshold in bytes.
func WithMaxFileSize(n int64) Option {
	return func(s *Store) { s.maxFileSize = n }
}

// WithRetentionDays sets the compression window in days.
func WithRetentionDays(days int) Option {
	return func(s *Store) { s.retentionDays = days }
}

// WithClock overrides the time source (for tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open creates or reopens the event log rooted at dir.
func Open(dir string, opts ...Option) (*Store, error) {
	s := &Store{
		dir:           dir,
		maxFileSize:   DefaultMaxFileSize,
		retentionDays: DefaultRetentionDays,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &StoreError{Op: "mkdir", Path: dir, Err: err}
	}
	if err := os.MkdirAll(s.viewsDir(), 0o755); err != nil {
		return nil, &StoreError{Op: "mkdir", Path: s.viewsDir(), Err: err}
	}
	return s, nil
}

// Dir returns the log root directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) viewsDir() string { return filepath.Join(s.dir, "views") }

// Append validates nothing: callers must run the event through
// event.Enrich and event.Validate first. The write is atomic at line
// granularity (single O_APPEND write of one line, then fsync).
func (s *Store) Append(e *event.Event) (Offset, error) {
	data, err := e.Marshal()
	if err != nil {
		return Offset{}, &StoreError{Op: "marshal", Path: e.EventID, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureActive(); err != nil {
		return Offset{}, err
	}
	if s.maxFileSize > 0 && s.size+int64(len(data))+1 > s.maxFileSize && s.size > 0 {
		if err := s.rotateForSize(); err != nil {
			return Offset{}, err
		}
	}

	line := append(data, '\n')
	if _, err := s.file.Write(line); err != nil {
		return Offset{}, &StoreError{Op: "write", Path: s.file.Name(), Err: err}
	}
	if err := s.file.Sync(); err != nil {
		return Offset{}, &StoreError{Op: "sync", Path: s.file.Name(), Err: err}
	}
	s.size += int64(len(line))
	s.line++

	return Offset{File: filepath.Base(s.file.Name()), Line: s.line}, nil
}

// Route fans an already-appended event into the derived views that
// apply: decision.* events into the decision log, events with a
// task_id into the per-task log, events with a trace_id into the
// per-trace log. Views are copies; a routing failure is surfaced but
// the daily log remains authoritative.
func (s *Store) Route(e *event.Event) error {
	data, err := e.Marshal()
	if err != nil {
		return &StoreError{Op: "marshal", Path: e.EventID, Err: err}
	}

	var paths []string
	if e.Namespace() == event.NSDecision {
		paths = append(paths, filepath.Join(s.viewsDir(), "decisions.jsonl"))
	}
	if e.Context != nil && e.Context.TaskID != "" {
		paths = append(paths, filepath.Join(s.viewsDir(), "tasks", viewName(e.Context.TaskID)))
	}
	if e.Correlation != nil && e.Correlation.TraceID != "" {
		paths = append(paths, filepath.Join(s.viewsDir(), "traces", viewName(e.Correlation.TraceID)))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, path := range paths {
		if err := appendLine(path, data); err != nil {
			return err
		}
	}
	return nil
}

// RebuildViews regenerates every derived view from the daily log.
func (s *Store) RebuildViews() error {
	events, err := s.ReadAll()
	if err != nil {
		return err
	}
	if err := os.RemoveAll(s.viewsDir()); err != nil {
		return &StoreError{Op: "remove", Path: s.viewsDir(), Err: err}
	}
	if err := os.MkdirAll(s.viewsDir(), 0o755); err != nil {
		return &StoreError{Op: "mkdir", Path: s.viewsDir(), Err: err}
	}
	for i := range events {
		if err := s.Route(&events[i]); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the active segment.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}

// ensureActive opens the current day's segment, rolling over at UTC
// midnight. Must be called with the lock held.
func (s *Store) ensureActive() error {
	today := s.now().UTC().Format(dateFormat)
	if s.file != nil && s.fileDate == today {
		return nil
	}
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	path := filepath.Join(s.dir, "events-"+today+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return &StoreError{Op: "open", Path: path, Err: err}
	}

	size, lines, err := tallyFile(path)
	if err != nil {
		_ = f.Close()
		return &StoreError{Op: "stat", Path: path, Err: err}
	}

	s.file = f
	s.fileDate = today
	s.size = size
	s.line = lines
	return nil
}

// rotateForSize renames the active segment to the next free numeric
// suffix and starts a fresh one for the same day. Must be called with
// the lock held.
func (s *Store) rotateForSize() error {
	path := s.file.Name()
	if err := s.file.Close(); err != nil {
		return &StoreError{Op: "close", Path: path, Err: err}
	}
	s.file = nil

	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s.%d", path, n)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			if _, gzErr := os.Stat(candidate + ".gz"); os.IsNotExist(gzErr) {
				if err := os.Rename(path, candidate); err != nil {
					return &StoreError{Op: "rename", Path: path, Err: err}
				}
				break
			}
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return &StoreError{Op: "open", Path: path, Err: err}
	}
	s.file = f
	s.size = 0
	s.line = 0
	return nil
}

func appendLine(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &StoreError{Op: "mkdir", Path: filepath.Dir(path), Err: err}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return &StoreError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return &StoreError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// viewName maps a context key to a safe filename.
func viewName(key string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	return replacer.Replace(key) + ".jsonl"
}

// tallyFile returns the size and line count of an existing segment so
// reopening after a restart continues offsets correctly.
func tallyFile(path string) (int64, int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, err
	}
	var lines int64
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	return info.Size(), lines, nil
}
