package memory

import (
	"context"
	"sync"

	batch "abstraction-billing/internal/batch/domain"
)

// ChargeVersionYearRepository is an in-memory working set store for tests.
type ChargeVersionYearRepository struct {
	mu   sync.RWMutex
	rows map[string]batch.ChargeVersionYear
}

// NewChargeVersionYearRepository constructs an empty store.
func NewChargeVersionYearRepository() *ChargeVersionYearRepository {
	return &ChargeVersionYearRepository{rows: make(map[string]batch.ChargeVersionYear)}
}

// SaveAll upserts working set rows.
func (r *ChargeVersionYearRepository) SaveAll(_ context.Context, rows []batch.ChargeVersionYear) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range rows {
		r.rows[row.ID] = row
	}
	return nil
}

// Get returns a working set row by id.
func (r *ChargeVersionYearRepository) Get(_ context.Context, id string) (*batch.ChargeVersionYear, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, batch.ErrChargeVersionYearNotFound
	}
	copied := row
	return &copied, nil
}

// ListByBatch returns the working set of a batch.
func (r *ChargeVersionYearRepository) ListByBatch(_ context.Context, batchID string) ([]batch.ChargeVersionYear, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []batch.ChargeVersionYear
	for _, row := range r.rows {
		if row.BatchID == batchID {
			result = append(result, row)
		}
	}
	return result, nil
}

// SetStatus updates one row's status.
func (r *ChargeVersionYearRepository) SetStatus(_ context.Context, id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return batch.ErrChargeVersionYearNotFound
	}
	row.Status = status
	r.rows[id] = row
	return nil
}

// CountRemaining counts rows still in processing.
func (r *ChargeVersionYearRepository) CountRemaining(_ context.Context, batchID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, row := range r.rows {
		if row.BatchID == batchID && row.Status == batch.ChargeVersionYearProcessing {
			count++
		}
	}
	return count, nil
}

// DeleteByBatch removes the working set of a batch.
func (r *ChargeVersionYearRepository) DeleteByBatch(_ context.Context, batchID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, row := range r.rows {
		if row.BatchID == batchID {
			delete(r.rows, id)
		}
	}
	return nil
}
