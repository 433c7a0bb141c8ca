// Package history keeps every comparison run in a sqlite database so the
// latest report can be served and past runs listed.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dealerdiff/dealerdiff/internal/report"
	"github.com/dealerdiff/dealerdiff/internal/types"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	generated_at TEXT    NOT NULL,
	status       TEXT    NOT NULL,
	has_mismatch INTEGER NOT NULL DEFAULT 0,
	mismatches   INTEGER NOT NULL DEFAULT 0,
	report       TEXT,
	error        TEXT,
	error_kind   TEXT
);
CREATE INDEX IF NOT EXISTS runs_generated_at ON runs(generated_at);
`

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// ErrNoRuns is returned by Latest on an empty history.
var ErrNoRuns = errors.New("no runs recorded yet")

// Run is one recorded comparison run. Report is only loaded by Latest.
type Run struct {
	ID          int64          `json:"id"`
	GeneratedAt time.Time      `json:"generated_at"`
	Status      string         `json:"status"`
	HasMismatch bool           `json:"has_mismatch"`
	Mismatches  int            `json:"mismatches"`
	Error       string         `json:"error,omitempty"`
	ErrorKind   string         `json:"error_kind,omitempty"`
	Report      *report.Report `json:"report,omitempty"`
}

// Store is the sqlite backed run history.
type Store struct {
	db *sql.DB
}

// Open opens (and creates if needed) the history database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while creating history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Save records a finished run.
func (s *Store) Save(ctx context.Context, r *report.Report) (int64, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return 0, err
	}
	mismatches := 0
	for _, n := range r.Mismatches() {
		mismatches += n
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (generated_at, status, has_mismatch, mismatches, report) VALUES (?, ?, ?, ?, ?)`,
		r.GeneratedAt.UTC().Format(time.RFC3339Nano), StatusOK, r.HasMismatch(), mismatches, string(body))
	if err != nil {
		return 0, fmt.Errorf("error while saving run: %w", err)
	}
	return res.LastInsertId()
}

// SaveError records a run that was aborted by runErr.
func (s *Store) SaveError(ctx context.Context, at time.Time, runErr error) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (generated_at, status, error, error_kind) VALUES (?, ?, ?, ?)`,
		at.UTC().Format(time.RFC3339Nano), StatusFailed, runErr.Error(), types.ErrorKind(runErr))
	if err != nil {
		return 0, fmt.Errorf("error while saving failed run: %w", err)
	}
	return res.LastInsertId()
}

// Latest returns the most recent successful run including its report.
func (s *Store) Latest(ctx context.Context) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, generated_at, status, has_mismatch, mismatches, COALESCE(error, ''), COALESCE(error_kind, ''), report
		 FROM runs WHERE status = ? ORDER BY id DESC LIMIT 1`, StatusOK)
	var (
		run  Run
		at   string
		body sql.NullString
	)
	err := row.Scan(&run.ID, &at, &run.Status, &run.HasMismatch, &run.Mismatches, &run.Error, &run.ErrorKind, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, err
	}
	if run.GeneratedAt, err = time.Parse(time.RFC3339Nano, at); err != nil {
		return nil, err
	}
	if body.Valid {
		run.Report = &report.Report{}
		if err := json.Unmarshal([]byte(body.String), run.Report); err != nil {
			return nil, fmt.Errorf("error while decoding report of run %d: %w", run.ID, err)
		}
	}
	return &run, nil
}

// List returns the most recent runs, newest first, without their reports.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, generated_at, status, has_mismatch, mismatches, COALESCE(error, ''), COALESCE(error_kind, '')
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	runs := []Run{}
	for rows.Next() {
		var (
			run Run
			at  string
		)
		if err := rows.Scan(&run.ID, &at, &run.Status, &run.HasMismatch, &run.Mismatches, &run.Error, &run.ErrorKind); err != nil {
			return nil, err
		}
		if run.GeneratedAt, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
