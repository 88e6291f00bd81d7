// Package sqlite is the SQLite implementation of storage.JobStore.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/storyloom/orchestrator/internal/storage"
)

// Store persists job records in a SQLite database.
type Store struct {
	db *sql.DB
}

var _ storage.JobStore = (*Store)(nil)

// New opens (creating if needed) the database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			session_id TEXT,
			status TEXT NOT NULL,
			total INTEGER NOT NULL,
			completed INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS outcomes (
			job_id TEXT NOT NULL,
			item_id TEXT NOT NULL,
			backend_id TEXT,
			ok INTEGER NOT NULL,
			error_kind TEXT,
			message TEXT,
			attempts INTEGER NOT NULL DEFAULT 0,
			cache_hit INTEGER NOT NULL DEFAULT 0,
			response TEXT,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (job_id, item_id),
			FOREIGN KEY (job_id) REFERENCES jobs(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_job ON outcomes(job_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}
	return nil
}

func (s *Store) CreateJob(ctx context.Context, job *storage.JobRecord) error {
	query := `INSERT INTO jobs (id, session_id, status, total, completed, failed, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		job.ID, job.SessionID, job.Status, job.Total, job.Completed, job.Failed,
		job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *Store) UpdateJob(ctx context.Context, id, status string, completed, failed int) error {
	query := `UPDATE jobs SET status = ?, completed = ?, failed = ?, updated_at = ? WHERE id = ?`

	res, err := s.db.ExecContext(ctx, query, status, completed, failed, time.Now(), id)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("job %s not found", id)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*storage.JobRecord, error) {
	query := `SELECT id, session_id, status, total, completed, failed, created_at, updated_at
	          FROM jobs WHERE id = ?`

	var job storage.JobRecord
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&job.ID, &job.SessionID, &job.Status, &job.Total,
		&job.Completed, &job.Failed, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

func (s *Store) RecordOutcome(ctx context.Context, o *storage.OutcomeRecord) error {
	query := `INSERT OR REPLACE INTO outcomes
	          (job_id, item_id, backend_id, ok, error_kind, message, attempts, cache_hit, response, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		o.JobID, o.ItemID, o.BackendID, boolToInt(o.OK), o.ErrorKind, o.Message,
		o.Attempts, boolToInt(o.CacheHit), o.Response, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

func (s *Store) ListOutcomes(ctx context.Context, jobID string) ([]storage.OutcomeRecord, error) {
	query := `SELECT job_id, item_id, backend_id, ok, error_kind, message, attempts, cache_hit, response, created_at
	          FROM outcomes WHERE job_id = ? ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []storage.OutcomeRecord
	for rows.Next() {
		var o storage.OutcomeRecord
		var ok, cacheHit int
		if err := rows.Scan(&o.JobID, &o.ItemID, &o.BackendID, &ok, &o.ErrorKind,
			&o.Message, &o.Attempts, &cacheHit, &o.Response, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.OK = ok != 0
		o.CacheHit = cacheHit != 0
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
