package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"abstraction-billing/internal/pipeline"
)

// JobStore is the Postgres job store. ClaimDue uses SKIP LOCKED so several
// workers can poll the same table without double-claiming.
type JobStore struct {
	db *sql.DB
}

// NewJobStore constructs a job store.
func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db}
}

// Enqueue inserts a job unless an active one holds the singleton key.
func (s *JobStore) Enqueue(ctx context.Context, job pipeline.Job) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("job store: nil db")
	}
	result, err := s.db.ExecContext(ctx, `
INSERT INTO billing_jobs (
	id, stage, batch_id, singleton_key, payload, status,
	attempts, max_attempts, next_run_at, last_error, created_at, updated_at
)
SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, '', $10, $10
WHERE NOT EXISTS (
	SELECT 1 FROM billing_jobs
	WHERE singleton_key = $4 AND status IN ('pending', 'running')
)`,
		job.ID, job.Stage, job.BatchID, job.SingletonKey, []byte(job.Payload), job.Status,
		job.Attempts, job.MaxAttempts, job.NextRunAt, job.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ClaimDue atomically moves due pending jobs to running and returns them.
func (s *JobStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]pipeline.Job, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("job store: nil db")
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
UPDATE billing_jobs
SET status = 'running', updated_at = $1
WHERE id IN (
	SELECT id FROM billing_jobs
	WHERE status = 'pending' AND next_run_at <= $1
	ORDER BY next_run_at ASC
	LIMIT $2
	FOR UPDATE SKIP LOCKED
)
RETURNING id, stage, batch_id, singleton_key, payload, status,
	attempts, max_attempts, next_run_at, last_error, created_at, updated_at`,
		now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []pipeline.Job
	for rows.Next() {
		var job pipeline.Job
		var payload []byte
		err := rows.Scan(
			&job.ID, &job.Stage, &job.BatchID, &job.SingletonKey, &payload, &job.Status,
			&job.Attempts, &job.MaxAttempts, &job.NextRunAt, &job.LastError, &job.CreatedAt, &job.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		job.Payload = payload
		result = append(result, job)
	}
	return result, rows.Err()
}

// MarkCompleted completes a job.
func (s *JobStore) MarkCompleted(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, pipeline.JobCompleted, "")
}

// Reschedule returns a job to pending with a later run time.
func (s *JobStore) Reschedule(ctx context.Context, id string, attempts int, nextRunAt time.Time, lastError string) error {
	if s == nil || s.db == nil {
		return errors.New("job store: nil db")
	}
	result, err := s.db.ExecContext(ctx, `
UPDATE billing_jobs
SET status = 'pending', attempts = $1, next_run_at = $2, last_error = $3, updated_at = $4
WHERE id = $5`, attempts, nextRunAt, lastError, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireJob(result)
}

// MarkDead moves a job to dead.
func (s *JobStore) MarkDead(ctx context.Context, id string, lastError string) error {
	return s.setStatus(ctx, id, pipeline.JobDead, lastError)
}

// DeleteByBatch removes a batch's jobs.
func (s *JobStore) DeleteByBatch(ctx context.Context, batchID string) error {
	if s == nil || s.db == nil {
		return errors.New("job store: nil db")
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM billing_jobs WHERE batch_id = $1`, batchID)
	return err
}

func (s *JobStore) setStatus(ctx context.Context, id, status, lastError string) error {
	if s == nil || s.db == nil {
		return errors.New("job store: nil db")
	}
	result, err := s.db.ExecContext(ctx, `
UPDATE billing_jobs
SET status = $1, last_error = CASE WHEN $2 = '' THEN last_error ELSE $2 END, updated_at = $3
WHERE id = $4`, status, lastError, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireJob(result)
}

func requireJob(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return pipeline.ErrJobNotFound
	}
	return nil
}
