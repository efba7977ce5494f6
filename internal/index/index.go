// Package index maintains a SQLite index over the event log for fast
// queries. The index is a derived view: it can be dropped and rebuilt
// from the log at any time, and it is never the source of truth.
package index

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/delaney/hookline/internal/event"
	"github.com/delaney/hookline/internal/store"
)

// tsFormat is fixed-width so ORDER BY timestamp compares correctly:
// RFC3339Nano drops trailing fractional zeros, which breaks lexical
// ordering between whole-second and sub-second values.
const tsFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Index wraps the SQLite connection and path.
type Index struct {
	sql  *sql.DB
	path string
}

// Row is one indexed event with its position in the log.
type Row struct {
	EventID    string
	EventType  string
	Namespace  string
	Timestamp  time.Time
	AgentID    string
	ContextKey string
	TraceID    string
	File       string
	Line       int64
}

// Open opens or creates the index database, applies pragmas, and runs
// migrations.
func Open(dbPath string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating index dir: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping index: %w", err)
	}
	if err := applyPragmas(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if err := migrate(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return &Index{sql: sqlDB, path: dbPath}, nil
}

// Close closes the underlying database connection.
func (ix *Index) Close() error {
	if ix == nil || ix.sql == nil {
		return nil
	}
	return ix.sql.Close()
}

// Path returns the database file path.
func (ix *Index) Path() string { return ix.path }

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}
	return nil
}

// Insert records one event and its log position. Re-indexing the same
// event is a no-op, which keeps rebuilds and crash-replays idempotent.
func (ix *Index) Insert(e *event.Event, off store.Offset) error {
	_, err := ix.sql.Exec(`
		INSERT INTO events (event_id, event_type, namespace, timestamp, agent_id, context_key, trace_id, file, line)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING`,
		e.EventID, e.EventType, e.Namespace(), e.Timestamp.UTC().Format(tsFormat),
		e.AgentID, e.ContextKey(), traceID(e), off.File, off.Line)
	if err != nil {
		return fmt.Errorf("indexing event %s: %w", e.EventID, err)
	}
	return nil
}

func traceID(e *event.Event) string {
	if e.Correlation != nil {
		return e.Correlation.TraceID
	}
	return ""
}

// Rebuild drops the index contents and repopulates from the full event
// log. Offsets are not recoverable from a bulk read, so rebuilt rows
// carry empty positions until the next live append.
func (ix *Index) Rebuild(s *store.Store) (int, error) {
	events, err := s.ReadAll()
	if err != nil {
		return 0, err
	}

	tx, err := ix.sql.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin rebuild: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM events`); err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("clearing index: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO events (event_id, event_type, namespace, timestamp, agent_id, context_key, trace_id, file, line)
		VALUES (?, ?, ?, ?, ?, ?, ?, '', 0)
		ON CONFLICT(event_id) DO NOTHING`)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("prepare rebuild: %w", err)
	}
	defer stmt.Close()

	n := 0
	for i := range events {
		e := &events[i]
		if _, err := stmt.Exec(e.EventID, e.EventType, e.Namespace(),
			e.Timestamp.UTC().Format(tsFormat), e.AgentID, e.ContextKey(), traceID(e)); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("rebuild event %s: %w", e.EventID, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit rebuild: %w", err)
	}
	return n, nil
}

// Query selects indexed events, newest first.
type Query struct {
	EventType  string // exact match
	Namespace  string
	ContextKey string
	TraceID    string
	AgentID    string
	Since      time.Time
	Limit      int
}

// Search returns rows matching the query ordered by timestamp
// descending, then event_id.
func (ix *Index) Search(q Query) ([]Row, error) {
	where := "1=1"
	var args []any
	add := func(clause string, v any) {
		where += " AND " + clause
		args = append(args, v)
	}
	if q.EventType != "" {
		add("event_type = ?", q.EventType)
	}
	if q.Namespace != "" {
		add("namespace = ?", q.Namespace)
	}
	if q.ContextKey != "" {
		add("context_key = ?", q.ContextKey)
	}
	if q.TraceID != "" {
		add("trace_id = ?", q.TraceID)
	}
	if q.AgentID != "" {
		add("agent_id = ?", q.AgentID)
	}
	if !q.Since.IsZero() {
		add("timestamp >= ?", q.Since.UTC().Format(tsFormat))
	}

	query := `SELECT event_id, event_type, namespace, timestamp, agent_id, context_key, trace_id, file, line
		FROM events WHERE ` + where + ` ORDER BY timestamp DESC, event_id DESC`
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := ix.sql.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("index query: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var ts string
		if err := rows.Scan(&r.EventID, &r.EventType, &r.Namespace, &ts,
			&r.AgentID, &r.ContextKey, &r.TraceID, &r.File, &r.Line); err != nil {
			return nil, fmt.Errorf("scanning index row: %w", err)
		}
		r.Timestamp, _ = time.Parse(tsFormat, ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the number of indexed events.
func (ix *Index) Count() (int, error) {
	var n int
	if err := ix.sql.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting index: %w", err)
	}
	return n, nil
}
