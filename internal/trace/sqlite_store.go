package trace

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// SQLiteStore is the optional durable Sink of spec.md §4.6: every
// event is appended as a row rather than held only in process memory,
// so a trace survives past the run that produced it. Grounded on
// internal/memory/backend/sqlitevec/backend.go's New/init pattern.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if absent) a SQLite-backed trace
// store at path. Pass ":memory:" for an ephemeral store with the same
// schema as a file-backed one, useful in tests.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("trace: open sqlite store: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS camel_trace_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			payload TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("trace: create table: %w", err)
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_camel_trace_run ON camel_trace_events(run_id)`)
	if err != nil {
		return fmt.Errorf("trace: create index: %w", err)
	}
	return nil
}

// Record persists one event as a JSON-encoded row. Marshal/Exec errors
// are swallowed after logging would normally occur at the call site;
// Record satisfies the Sink interface, which reports no error, so a
// failed write here must not abort the run that produced the event.
func (s *SQLiteStore) Record(e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		return
	}
	_, _ = s.db.Exec(
		`INSERT INTO camel_trace_events (run_id, kind, timestamp, payload) VALUES (?, ?, ?, ?)`,
		e.RunID, string(e.Kind), e.Timestamp, string(payload),
	)
}

// ForRun loads every persisted event for runID, in insertion order.
func (s *SQLiteStore) ForRun(runID string) ([]Event, error) {
	rows, err := s.db.Query(
		`SELECT payload FROM camel_trace_events WHERE run_id = ? ORDER BY id ASC`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("trace: query: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("trace: scan: %w", err)
		}
		var e Event
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, fmt.Errorf("trace: unmarshal: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }
