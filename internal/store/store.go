package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/jobdeck/api/internal/model"
)

// Sentinel errors surfaced by store operations.
var (
	// ErrNotFound is returned when no job exists for the given id.
	ErrNotFound = errors.New("job not found")

	// ErrConflict is returned when a conditional status update loses to a
	// concurrent writer: the row no longer holds the expected status.
	ErrConflict = errors.New("job status changed concurrently")
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id           TEXT PRIMARY KEY,
	task_name    TEXT NOT NULL,
	priority     TEXT NOT NULL DEFAULT 'MEDIUM',
	payload      TEXT NOT NULL DEFAULT '{}',
	status       TEXT NOT NULL DEFAULT 'PENDING',
	completed_at TIMESTAMP,
	created_at   TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs (status);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs (created_at);
`

// JobStore persists jobs in a single relational table.
type JobStore struct {
	db *sql.DB
}

// Open connects to the SQLite database at dsn and ensures the schema exists.
//
// Example connection strings:
//
//	"file:jobdeck.db?cache=shared&mode=rwc"
//	":memory:"
func Open(ctx context.Context, dsn string) (*JobStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store: connection source is empty")
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: failed to open connection: %w", err)
	}

	// SQLite works best with a single writer connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(2)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: failed to create schema: %w", err)
	}

	return &JobStore{db: db}, nil
}

// Close releases the underlying database connection.
func (s *JobStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *JobStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Create inserts a new PENDING job. Priority defaults to MEDIUM and payload
// to an empty document when unset.
func (s *JobStore) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	now := time.Now().UTC()

	job := &model.Job{
		ID:        uuid.New().String(),
		TaskName:  req.TaskName,
		Priority:  req.Priority,
		Payload:   req.Payload,
		Status:    model.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if job.Priority == "" {
		job.Priority = model.PriorityMedium
	}
	if job.Payload == nil {
		job.Payload = model.Payload{}
	}

	payloadJSON, err := json.Marshal(job.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, task_name, priority, payload, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.TaskName, string(job.Priority), string(payloadJSON), string(job.Status),
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert job: %w", err)
	}

	return job, nil
}

// GetByID fetches a single job. Returns ErrNotFound if the id is unknown.
func (s *JobStore) GetByID(ctx context.Context, id string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, task_name, priority, payload, status, completed_at, created_at, updated_at
		 FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// List returns jobs matching the filter, newest first.
func (s *JobStore) List(ctx context.Context, filter model.ListJobsFilter) ([]*model.Job, error) {
	query := `SELECT id, task_name, priority, payload, status, completed_at, created_at, updated_at
		 FROM jobs`
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Priority != "" {
		conds = append(conds, "priority = ?")
		args = append(args, string(filter.Priority))
	}
	for i, cond := range conds {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*model.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// CompareAndSwapStatus atomically moves the job from one status to another,
// stamping completed_at when provided. The swap is a single conditional
// UPDATE: if the row no longer holds the expected status, nothing is written
// and ErrConflict is returned. Returns the updated job on success.
func (s *JobStore) CompareAndSwapStatus(ctx context.Context, id string, from, to model.JobStatus, completedAt *time.Time) (*model.Job, error) {
	now := time.Now().UTC()

	var (
		res sql.Result
		err error
	)
	if completedAt != nil {
		res, err = s.db.ExecContext(ctx,
			`UPDATE jobs SET status = ?, completed_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
			string(to), *completedAt, now, id, string(from))
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			string(to), now, id, string(from))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update job status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing row from a lost race.
		if _, err := s.GetByID(ctx, id); errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, ErrConflict
	}

	return s.GetByID(ctx, id)
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (*model.Job, error) {
	var (
		job         model.Job
		priority    string
		status      string
		payloadJSON string
		completedAt sql.NullTime
	)
	err := r.Scan(&job.ID, &job.TaskName, &priority, &payloadJSON, &status,
		&completedAt, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	job.Priority = model.JobPriority(priority)
	job.Status = model.JobStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	if err := json.Unmarshal([]byte(payloadJSON), &job.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return &job, nil
}
