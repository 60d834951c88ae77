package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"abstraction-billing/internal/pipeline"
)

// DLQStore records permanently failed jobs for operator inspection.
type DLQStore struct {
	db *sql.DB
}

// NewDLQStore constructs a DLQ store.
func NewDLQStore(db *sql.DB) *DLQStore {
	return &DLQStore{db: db}
}

// RecordFailure writes the dead job and its cause.
func (s *DLQStore) RecordFailure(ctx context.Context, job pipeline.Job, cause error) error {
	if s == nil || s.db == nil {
		return errors.New("dlq store: nil db")
	}
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO billing_job_failures (id, job_id, stage, batch_id, payload, attempts, error, failed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		uuid.NewString(), job.ID, job.Stage, job.BatchID, []byte(job.Payload), job.Attempts, message, time.Now().UTC(),
	)
	return err
}
