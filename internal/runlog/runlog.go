// Package runlog keeps a history of counting runs in PostgreSQL so operators
// can see which corpus and patterns a working directory was built with, and
// how each run ended.
package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/postgres"
)

// Outcome of a run.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run is one row of the history.
type Run struct {
	ID          int64
	RunID       string
	WorkDir     string
	Corpus      string
	Fingerprint string
	Patterns    []string
	Status      string
	TasksRun    int
	Waves       int
	Error       string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Recorder is what the pipeline writes run history through.
type Recorder interface {
	Start(ctx context.Context, r Run) (int64, error)
	Finish(ctx context.Context, id int64, r Run) error
}

// Nop records nothing.
type Nop struct{}

func (Nop) Start(context.Context, Run) (int64, error) { return 0, nil }
func (Nop) Finish(context.Context, int64, Run) error  { return nil }

const schema = `
CREATE TABLE IF NOT EXISTS ngram_runs (
    id          BIGSERIAL PRIMARY KEY,
    run_id      TEXT NOT NULL,
    work_dir    TEXT NOT NULL,
    corpus      TEXT NOT NULL,
    fingerprint TEXT NOT NULL,
    patterns    TEXT[] NOT NULL,
    status      TEXT NOT NULL,
    tasks_run   INTEGER NOT NULL DEFAULT 0,
    waves       INTEGER NOT NULL DEFAULT 0,
    error       TEXT NOT NULL DEFAULT '',
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ
)`

// Store writes the history to PostgreSQL.
//
// It uses an `ngram_runs` table, created by EnsureSchema:
//
//	CREATE TABLE ngram_runs (
//	    id          BIGSERIAL PRIMARY KEY,
//	    run_id      TEXT NOT NULL,
//	    work_dir    TEXT NOT NULL,
//	    corpus      TEXT NOT NULL,
//	    fingerprint TEXT NOT NULL,
//	    patterns    TEXT[] NOT NULL,
//	    status      TEXT NOT NULL,
//	    tasks_run   INTEGER NOT NULL DEFAULT 0,
//	    waves       INTEGER NOT NULL DEFAULT 0,
//	    error       TEXT NOT NULL DEFAULT '',
//	    started_at  TIMESTAMPTZ NOT NULL,
//	    finished_at TIMESTAMPTZ
//	);
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewStore creates a Store on db.
func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "runlog"),
	}
}

// EnsureSchema creates the table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating ngram_runs table: %w", err)
	}
	return nil
}

// Start inserts a running row and returns its id.
func (s *Store) Start(ctx context.Context, r Run) (int64, error) {
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	if r.Patterns == nil {
		r.Patterns = []string{}
	}
	var id int64
	err := s.db.DB.QueryRowContext(ctx,
		`INSERT INTO ngram_runs (run_id, work_dir, corpus, fingerprint, patterns, status, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		r.RunID, r.WorkDir, r.Corpus, r.Fingerprint, pq.Array(r.Patterns), StatusRunning, r.StartedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	s.logger.Debug("run recorded", "id", id, "run_id", r.RunID)
	return id, nil
}

// Finish stores the outcome of run id.
func (s *Store) Finish(ctx context.Context, id int64, r Run) error {
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now().UTC()
	}
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE ngram_runs
			    SET status = $2, tasks_run = $3, waves = $4, error = $5, finished_at = $6, fingerprint = $7
			  WHERE id = $1`,
			id, r.Status, r.TasksRun, r.Waves, r.Error, r.FinishedAt, r.Fingerprint,
		)
		if err != nil {
			return fmt.Errorf("updating run %d: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("updating run %d: %w", id, err)
		}
		if n != 1 {
			return fmt.Errorf("updating run %d: %d rows affected", id, n)
		}
		return nil
	})
}

// Recent returns the latest runs of workDir, newest first.
func (s *Store) Recent(ctx context.Context, workDir string, limit int) ([]Run, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, run_id, work_dir, corpus, fingerprint, patterns, status, tasks_run, waves, error, started_at, finished_at
		   FROM ngram_runs
		  WHERE work_dir = $1
		  ORDER BY started_at DESC, id DESC
		  LIMIT $2`,
		workDir, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r        Run
			finished sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.RunID, &r.WorkDir, &r.Corpus, &r.Fingerprint, pq.Array(&r.Patterns),
			&r.Status, &r.TasksRun, &r.Waves, &r.Error, &r.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return out, nil
}

// Latest returns the newest run of workDir, or nil when there is none.
func (s *Store) Latest(ctx context.Context, workDir string) (*Run, error) {
	runs, err := s.Recent(ctx, workDir, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}
