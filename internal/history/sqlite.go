// Package history records load test runs in a local SQLite database so
// results outlive the process that waited for them.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by [SQLite.Get] for an unknown run ID.
var ErrNotFound = errors.New("run not found")

const defaultListLimit = 25

// Run is one recorded load test.
type Run struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	TargetURL  string     `json:"target_url"`
	State      string     `json:"state"`
	StartedAt  time.Time  `json:"started_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	// ResultJSON is the raw results payload, empty until the run finishes.
	ResultJSON string `json:"result_json,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Outcome is what [SQLite.RecordOutcome] stores when a wait ends.
type Outcome struct {
	State      string
	FinishedAt time.Time
	ResultJSON string
	Error      string
}

type SQLite struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema exists.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	// one writer at a time; sqlite serialises anyway and this avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS runs (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  target_url TEXT NOT NULL,
  state TEXT NOT NULL,
  started_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  finished_at INTEGER,
  result_json TEXT,
  error_message TEXT
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs (started_at);
`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating history schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

// RecordStart inserts a run. Recording the same ID again replaces it.
func (s *SQLite) RecordStart(ctx context.Context, run Run) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	updated := run.UpdatedAt
	if updated.IsZero() {
		updated = run.StartedAt
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, name, target_url, state, started_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Name,
		run.TargetURL,
		run.State,
		run.StartedAt.UnixMilli(),
		updated.UnixMilli(),
	)
	return err
}

// RecordOutcome stores the final state of a run.
func (s *SQLite) RecordOutcome(ctx context.Context, id string, outcome Outcome) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, updated_at = ?, finished_at = ?, result_json = ?, error_message = ?
         WHERE id = ?`,
		outcome.State,
		outcome.FinishedAt.UnixMilli(),
		outcome.FinishedAt.UnixMilli(),
		nullString(outcome.ResultJSON),
		nullString(outcome.Error),
		id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, target_url, state, started_at, updated_at, finished_at, result_json, error_message
       FROM runs WHERE id = ?`, id,
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return run, err
}

// List returns the most recently started runs first. A non-positive limit
// means 25.
func (s *SQLite) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, target_url, state, started_at, updated_at, finished_at, result_json, error_message
       FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run                  Run
		startedMs, updatedMs int64
		finishedMs           sql.NullInt64
		resultJSON, errorMsg sql.NullString
	)
	if err := sc.Scan(&run.ID, &run.Name, &run.TargetURL, &run.State, &startedMs, &updatedMs, &finishedMs, &resultJSON, &errorMsg); err != nil {
		return Run{}, err
	}
	run.StartedAt = time.UnixMilli(startedMs)
	run.UpdatedAt = time.UnixMilli(updatedMs)
	if finishedMs.Valid {
		t := time.UnixMilli(finishedMs.Int64)
		run.FinishedAt = &t
	}
	if resultJSON.Valid {
		run.ResultJSON = resultJSON.String
	}
	if errorMsg.Valid {
		run.Error = errorMsg.String
	}
	return run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
