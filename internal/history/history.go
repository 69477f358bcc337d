// Package history persists completed conformance reports to a local
// SQLite database, so successive runs against the same service can be
// compared over time.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/arp-standard/arp-conformance/internal/report"
)

//go:embed schema.sql
var schemaSQL string

// Store is a handle to the run-history database.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db *sql.DB
}

// Open creates or opens the history database at the given path.
// Idempotent: pragmas and schema are applied on every open.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to history database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent saves.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveReport stores one completed report and returns its row id.
func (s *Store) SaveReport(ctx context.Context, rep *report.Report) (int64, error) {
	raw, err := json.Marshal(rep)
	if err != nil {
		return 0, fmt.Errorf("encode report: %w", err)
	}
	counts := rep.Counts()
	ok := 0
	if rep.OK() {
		ok = 1
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (
			service, tier, spec_ref, ok,
			pass_count, fail_count, warn_count, skip_count,
			started_at_ms, finished_at_ms, report_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.Service, rep.Tier, rep.SpecRef, ok,
		counts.Pass, counts.Fail, counts.Warn, counts.Skip,
		rep.StartedAtMS, rep.FinishedAtMS, string(raw),
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read inserted run id: %w", err)
	}
	return id, nil
}

// Entry is one summarized history row.
type Entry struct {
	ID           int64
	Service      string
	Tier         string
	SpecRef      string
	OK           bool
	Counts       report.Counts
	StartedAtMS  int64
	FinishedAtMS int64
}

// ListRuns returns the most recent runs, newest first. service filters
// to one service kind when non-empty; limit <= 0 means 20.
func (s *Store) ListRuns(ctx context.Context, service string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, service, tier, spec_ref, ok,
		       pass_count, fail_count, warn_count, skip_count,
		       started_at_ms, finished_at_ms
		FROM runs`
	args := []any{}
	if service != "" {
		query += ` WHERE service = ?`
		args = append(args, service)
	}
	query += ` ORDER BY started_at_ms DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ok int
		if err := rows.Scan(
			&e.ID, &e.Service, &e.Tier, &e.SpecRef, &ok,
			&e.Counts.Pass, &e.Counts.Fail, &e.Counts.Warn, &e.Counts.Skip,
			&e.StartedAtMS, &e.FinishedAtMS,
		); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		e.OK = ok != 0
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return out, nil
}

// GetReport loads the full report stored for one run id.
func (s *Store) GetReport(ctx context.Context, id int64) (*report.Report, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT report_json FROM runs WHERE id = ?`, id,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query run %d: %w", id, err)
	}
	var rep report.Report
	if err := json.Unmarshal([]byte(raw), &rep); err != nil {
		return nil, fmt.Errorf("decode stored report for run %d: %w", id, err)
	}
	return &rep, nil
}
