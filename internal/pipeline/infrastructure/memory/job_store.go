package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"abstraction-billing/internal/pipeline"
)

// JobStore is an in-memory job store for tests.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]pipeline.Job
}

// NewJobStore constructs an empty store.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]pipeline.Job)}
}

// Enqueue inserts a job unless an active one holds the singleton key.
func (s *JobStore) Enqueue(_ context.Context, job pipeline.Job) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.jobs {
		if existing.SingletonKey != job.SingletonKey {
			continue
		}
		if existing.Status == pipeline.JobPending || existing.Status == pipeline.JobRunning {
			return false, nil
		}
	}
	s.jobs[job.ID] = job
	return true, nil
}

// ClaimDue moves due pending jobs to running, oldest first.
func (s *JobStore) ClaimDue(_ context.Context, now time.Time, limit int) ([]pipeline.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []pipeline.Job
	for _, job := range s.jobs {
		if job.Status == pipeline.JobPending && !job.NextRunAt.After(now) {
			due = append(due, job)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRunAt.Before(due[j].NextRunAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	for i := range due {
		due[i].Status = pipeline.JobRunning
		s.jobs[due[i].ID] = due[i]
	}
	return due, nil
}

// MarkCompleted completes a job.
func (s *JobStore) MarkCompleted(_ context.Context, id string) error {
	return s.setStatus(id, pipeline.JobCompleted, "")
}

// Reschedule returns a job to pending with a later run time.
func (s *JobStore) Reschedule(_ context.Context, id string, attempts int, nextRunAt time.Time, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return pipeline.ErrJobNotFound
	}
	job.Status = pipeline.JobPending
	job.Attempts = attempts
	job.NextRunAt = nextRunAt
	job.LastError = lastError
	s.jobs[id] = job
	return nil
}

// MarkDead moves a job to dead.
func (s *JobStore) MarkDead(_ context.Context, id string, lastError string) error {
	return s.setStatus(id, pipeline.JobDead, lastError)
}

// DeleteByBatch removes a batch's jobs.
func (s *JobStore) DeleteByBatch(_ context.Context, batchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, job := range s.jobs {
		if job.BatchID == batchID {
			delete(s.jobs, id)
		}
	}
	return nil
}

// Snapshot returns all jobs, for test assertions.
func (s *JobStore) Snapshot() []pipeline.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]pipeline.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		result = append(result, job)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result
}

func (s *JobStore) setStatus(id, status, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return pipeline.ErrJobNotFound
	}
	job.Status = status
	if lastError != "" {
		job.LastError = lastError
	}
	s.jobs[id] = job
	return nil
}

// DLQStore is an in-memory dead letter store for tests.
type DLQStore struct {
	mu       sync.Mutex
	Failures []pipeline.Job
}

// NewDLQStore constructs an empty store.
func NewDLQStore() *DLQStore {
	return &DLQStore{}
}

// RecordFailure appends the dead job.
func (s *DLQStore) RecordFailure(_ context.Context, job pipeline.Job, _ error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Failures = append(s.Failures, job)
	return nil
}
