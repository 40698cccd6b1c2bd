// Package runstore persists terminal agent runs to SQLite so past runs
// survive restarts and can be inspected later.
package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/idris/kestrel/pkg/agent"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a run id has no stored record.
var ErrNotFound = errors.New("run not found")

// Store persists terminal runs.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Config holds run store configuration
type Config struct {
	DBPath string
	Logger zerolog.Logger
}

// Summary is the listing projection of a stored run.
type Summary struct {
	ID        string        `json:"id"`
	Goal      string        `json:"goal"`
	Status    agent.Status  `json:"status"`
	Steps     int           `json:"steps"`
	Provider  string        `json:"provider"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// New opens the store, creating the database file and schema if needed.
func New(cfg Config) (*Store, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db, logger: cfg.Logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// initSchema creates database tables
func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			goal TEXT NOT NULL,
			status TEXT NOT NULL,
			result TEXT,
			error TEXT,
			provider TEXT,
			model TEXT,
			steps_json TEXT NOT NULL,
			tools_used_json TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			completed_at INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
		CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save stores a terminal run. Non-terminal runs are rejected: the store
// is an audit log, not live state.
func (s *Store) Save(ctx context.Context, run *agent.Run) error {
	if run == nil {
		return errors.New("run is nil")
	}
	if !run.Status.Terminal() {
		return fmt.Errorf("run %s is not terminal (status %s)", run.ID, run.Status)
	}

	stepsJSON, err := json.Marshal(run.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode steps: %w", err)
	}
	toolsJSON, err := json.Marshal(run.ToolsUsed)
	if err != nil {
		return fmt.Errorf("failed to encode tools: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(id, goal, status, result, error, provider, model, steps_json, tools_used_json, started_at, completed_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Goal, string(run.Status), run.Result, run.Error,
		run.Provider, run.Model, string(stepsJSON), string(toolsJSON),
		run.StartedAt.UnixMilli(), run.CompletedAt.UnixMilli(), run.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	s.logger.Debug().Str("run_id", run.ID).Str("status", string(run.Status)).Msg("Run persisted")
	return nil
}

// Get loads a stored run by id.
func (s *Store) Get(ctx context.Context, id string) (*agent.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, goal, status, result, error, provider, model, steps_json, tools_used_json, started_at, completed_at, duration_ms
		FROM runs WHERE id = ?`, id)

	var run agent.Run
	var status, stepsJSON, toolsJSON string
	var startedAt, completedAt, durationMs int64

	err := row.Scan(&run.ID, &run.Goal, &status, &run.Result, &run.Error,
		&run.Provider, &run.Model, &stepsJSON, &toolsJSON,
		&startedAt, &completedAt, &durationMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}

	run.Status = agent.Status(status)
	run.StartedAt = time.UnixMilli(startedAt)
	run.CompletedAt = time.UnixMilli(completedAt)
	run.Duration = time.Duration(durationMs) * time.Millisecond
	if err := json.Unmarshal([]byte(stepsJSON), &run.Steps); err != nil {
		return nil, fmt.Errorf("failed to decode steps: %w", err)
	}
	if err := json.Unmarshal([]byte(toolsJSON), &run.ToolsUsed); err != nil {
		return nil, fmt.Errorf("failed to decode tools: %w", err)
	}

	return &run, nil
}

// List returns summaries of the most recent runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, goal, status, provider, steps_json, started_at, duration_ms
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var status, stepsJSON string
		var startedAt, durationMs int64

		if err := rows.Scan(&sum.ID, &sum.Goal, &status, &sum.Provider, &stepsJSON, &startedAt, &durationMs); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		sum.Status = agent.Status(status)
		sum.StartedAt = time.UnixMilli(startedAt)
		sum.Duration = time.Duration(durationMs) * time.Millisecond

		var steps []agent.Step
		if err := json.Unmarshal([]byte(stepsJSON), &steps); err == nil {
			sum.Steps = len(steps)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
