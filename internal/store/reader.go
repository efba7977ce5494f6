package store

import (
	"bufio"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/delaney/hookline/internal/event"
)

// segment describes one log file on disk.
type segment struct {
	path   string
	date   time.Time
	suffix int // 0 for the unsuffixed (newest) file of a day
	gz     bool
}

var segmentPattern = regexp.MustCompile(`^events-(\d{4}-\d{2}-\d{2})\.jsonl(?:\.(\d+))?(\.gz)?$`)

// segments lists all log files in chronological order: oldest day
// first; within a day, numeric suffixes ascending, unsuffixed last.
func (s *Store) segments() ([]segment, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &StoreError{Op: "readdir", Path: s.dir, Err: err}
	}

	var segs []segment
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := segmentPattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		date, err := time.Parse(dateFormat, m[1])
		if err != nil {
			continue
		}
		suffix := 0
		if m[2] != "" {
			suffix, _ = strconv.Atoi(m[2])
		}
		segs = append(segs, segment{
			path:   filepath.Join(s.dir, entry.Name()),
			date:   date,
			suffix: suffix,
			gz:     m[3] != "",
		})
	}

	sort.Slice(segs, func(i, j int) bool {
		if !segs[i].date.Equal(segs[j].date) {
			return segs[i].date.Before(segs[j].date)
		}
		// Suffix 0 is the active (newest) file of the day.
		si, sj := segs[i].suffix, segs[j].suffix
		if si == 0 {
			si = int(^uint(0) >> 1)
		}
		if sj == 0 {
			sj = int(^uint(0) >> 1)
		}
		return si < sj
	})
	return segs, nil
}

// ReadAll replays every event in the log in append order, reading
// gzipped segments transparently. Malformed lines are skipped: the
// store never rewrites history, so a torn trailing line from a crash
// must not block replay.
func (s *Store) ReadAll() ([]event.Event, error) {
	segs, err := s.segments()
	if err != nil {
		return nil, err
	}
	var events []event.Event
	for _, seg := range segs {
		evs, err := readSegment(seg)
		if err != nil {
			return nil, err
		}
		events = append(events, evs...)
	}
	return events, nil
}

// ReadContext returns every event correlated to the given context key,
// in append order. The per-task and per-trace views are consulted
// first; a missing view falls back to filtering the daily log.
func (s *Store) ReadContext(key string) ([]event.Event, error) {
	for _, dir := range []string{"tasks", "traces"} {
		path := filepath.Join(s.viewsDir(), dir, viewName(key))
		if _, err := os.Stat(path); err == nil {
			return readLines(path, false)
		}
	}

	all, err := s.ReadAll()
	if err != nil {
		return nil, err
	}
	var out []event.Event
	for i := range all {
		if all[i].ContextKey() == key {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// ReadDecisions returns the decision view.
func (s *Store) ReadDecisions() ([]event.Event, error) {
	path := filepath.Join(s.viewsDir(), "decisions.jsonl")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return readLines(path, false)
}

// CompressExpired gzips segments older than the retention window in
// place. Compressed segments are never deleted.
func (s *Store) CompressExpired() error {
	segs, err := s.segments()
	if err != nil {
		return err
	}
	cutoff := s.now().UTC().AddDate(0, 0, -s.retentionDays)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seg := range segs {
		if seg.gz || !seg.date.Before(cutoff) {
			continue
		}
		if s.file != nil && seg.path == s.file.Name() {
			continue
		}
		if err := gzipInPlace(seg.path); err != nil {
			return err
		}
	}
	return nil
}

func readSegment(seg segment) ([]event.Event, error) {
	return readLines(seg.path, seg.gz)
}

func readLines(path string, gz bool) ([]event.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &StoreError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	var r io.Reader = f
	if gz {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, &StoreError{Op: "gunzip", Path: path, Err: err}
		}
		defer zr.Close()
		r = zr
	}

	var events []event.Event
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		e, err := event.Parse(line)
		if err != nil {
			continue
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, &StoreError{Op: "scan", Path: path, Err: err}
	}
	return events, nil
}

func gzipInPlace(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return &StoreError{Op: "open", Path: path, Err: err}
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return &StoreError{Op: "create", Path: path + ".gz", Err: err}
	}
	zw := gzip.NewWriter(dst)
	if _, err := io.Copy(zw, src); err != nil {
		_ = dst.Close()
		return &StoreError{Op: "compress", Path: path, Err: err}
	}
	if err := zw.Close(); err != nil {
		_ = dst.Close()
		return &StoreError{Op: "compress", Path: path, Err: err}
	}
	if err := dst.Close(); err != nil {
		return &StoreError{Op: "close", Path: path + ".gz", Err: err}
	}
	return os.Remove(path)
}
