// ABOUTME: SQLite-backed run history index for completed pipeline runs.
// ABOUTME: A queryable cache of terminal run reports, not the execution source of truth.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/2389-research/conveyor/engine"
)

// RunSummary is a row from the runs table for list queries.
type RunSummary struct {
	RunID      string            `json:"run_id"`
	Pipeline   string            `json:"pipeline"`
	Path       string            `json:"path"`
	Outcome    engine.RunOutcome `json:"outcome"`
	StartedAt  string            `json:"started_at"`
	FinishedAt string            `json:"finished_at"`
}

// StageRow is a row from the stage_results table.
type StageRow struct {
	ID            string             `json:"id"`
	RunID         string             `json:"run_id"`
	Stage         string             `json:"stage"`
	Status        engine.StageStatus `json:"status"`
	ExitCode      int                `json:"exit_code"`
	StartedAt     string             `json:"started_at"`
	FinishedAt    string             `json:"finished_at"`
	FailureReason string             `json:"failure_reason,omitempty"`
	Position      int                `json:"position"`
}

// Store is a SQLite-backed index over completed pipeline runs. Every run is
// recorded once, after it reaches a terminal outcome; the engine never reads
// from the store during execution.
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database at the given path and ensures
// the schema is up to date.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			pipeline TEXT NOT NULL,
			path TEXT NOT NULL,
			outcome TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			report TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS stage_results (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			stage TEXT NOT NULL,
			status TEXT NOT NULL,
			exit_code INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			failure_reason TEXT NOT NULL,
			position INTEGER NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		);`

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun persists a terminal pipeline run along with its finalized report
// and per-stage rows, inside one transaction.
func (s *Store) RecordRun(run *engine.PipelineRun, path string, report *engine.Report) error {
	if !run.Outcome.Terminal() {
		return fmt.Errorf("refusing to record non-terminal run %q (outcome %s)", run.ID, run.Outcome)
	}

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO runs (run_id, pipeline, path, outcome, started_at, finished_at, report)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, report.Pipeline, path, string(run.Outcome),
		formatTime(run.StartedAt), formatTime(run.FinishedAt), string(reportJSON))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for pos, name := range run.Order {
		res := run.Results[name]
		if res == nil {
			continue
		}
		_, err = tx.Exec(`
			INSERT INTO stage_results (id, run_id, stage, status, exit_code, started_at, finished_at, failure_reason, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), run.ID, name, string(res.Status), res.ExitCode,
			formatTime(res.StartedAt), formatTime(res.FinishedAt), res.FailureReason, pos)
		if err != nil {
			return fmt.Errorf("insert stage result for %q: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListRuns returns summaries of all recorded runs, most recent first. ULID
// run IDs sort chronologically, so ordering by run_id is ordering by time.
func (s *Store) ListRuns() ([]RunSummary, error) {
	rows, err := s.db.Query(`
		SELECT run_id, pipeline, path, outcome, started_at, finished_at
		FROM runs ORDER BY run_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var outcome string
		if err := rows.Scan(&r.RunID, &r.Pipeline, &r.Path, &outcome, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Outcome = engine.RunOutcome(outcome)
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRun returns the summary for a single run.
func (s *Store) GetRun(runID string) (*RunSummary, error) {
	row := s.db.QueryRow(`
		SELECT run_id, pipeline, path, outcome, started_at, finished_at
		FROM runs WHERE run_id = ?`, runID)

	var r RunSummary
	var outcome string
	if err := row.Scan(&r.RunID, &r.Pipeline, &r.Path, &outcome, &r.StartedAt, &r.FinishedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run %q not found", runID)
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	r.Outcome = engine.RunOutcome(outcome)
	return &r, nil
}

// GetReport returns the finalized report persisted for a run.
func (s *Store) GetReport(runID string) (*engine.Report, error) {
	row := s.db.QueryRow(`SELECT report FROM runs WHERE run_id = ?`, runID)

	var raw string
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run %q not found", runID)
		}
		return nil, fmt.Errorf("get report: %w", err)
	}

	var report engine.Report
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		return nil, fmt.Errorf("unmarshal report for run %q: %w", runID, err)
	}
	return &report, nil
}

// ListStageResults returns the per-stage rows for a run in execution order.
func (s *Store) ListStageResults(runID string) ([]StageRow, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, stage, status, exit_code, started_at, finished_at, failure_reason, position
		FROM stage_results WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("list stage results: %w", err)
	}
	defer rows.Close()

	var out []StageRow
	for rows.Next() {
		var sr StageRow
		var status string
		if err := rows.Scan(&sr.ID, &sr.RunID, &sr.Stage, &status, &sr.ExitCode,
			&sr.StartedAt, &sr.FinishedAt, &sr.FailureReason, &sr.Position); err != nil {
			return nil, fmt.Errorf("scan stage result: %w", err)
		}
		sr.Status = engine.StageStatus(status)
		out = append(out, sr)
	}
	return out, rows.Err()
}

// formatTime renders a timestamp for storage; zero times store as the empty
// string.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
