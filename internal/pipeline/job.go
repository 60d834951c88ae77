package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Job statuses. A job moves pending -> running -> completed, back to
// pending on a retryable failure, or to dead once its attempts are spent.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobDead      = "dead"
)

// ErrJobNotFound is returned when no job matches.
var ErrJobNotFound = errors.New("pipeline: job not found")

// Job is one unit of pipeline work for a batch. The singleton key
// deduplicates enqueues: at most one active job per (stage, batch) exists,
// so re-delivered triggers collapse instead of running a stage twice.
type Job struct {
	ID           string
	Stage        string
	BatchID      string
	SingletonKey string
	Payload      json.RawMessage
	Status       string
	Attempts     int
	MaxAttempts  int
	NextRunAt    time.Time
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SingletonKey derives the dedup key for a stage of a batch. Fan-out jobs
// append a discriminator so parallel units do not collapse into one.
func SingletonKey(stage, batchID, discriminator string) string {
	key := stage + ":" + batchID
	if discriminator != "" {
		key += ":" + discriminator
	}
	return key
}

// JobStore persists pipeline jobs.
type JobStore interface {
	// Enqueue inserts a job unless an active job with the same singleton
	// key exists; it reports whether the job was inserted.
	Enqueue(ctx context.Context, job Job) (bool, error)
	// ClaimDue atomically moves due pending jobs to running and returns
	// them, oldest first.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]Job, error)
	MarkCompleted(ctx context.Context, id string) error
	// Reschedule returns a failed job to pending with a later run time.
	Reschedule(ctx context.Context, id string, attempts int, nextRunAt time.Time, lastError string) error
	MarkDead(ctx context.Context, id string, lastError string) error
	DeleteByBatch(ctx context.Context, batchID string) error
}

// DLQStore records jobs whose attempts are exhausted.
type DLQStore interface {
	RecordFailure(ctx context.Context, job Job, cause error) error
}
