package memory

import (
	"context"
	"sync"

	batch "abstraction-billing/internal/batch/domain"
)

// BatchRepository is an in-memory batch store for tests.
type BatchRepository struct {
	mu      sync.RWMutex
	batches map[string]batch.Batch
}

// NewBatchRepository constructs an empty store.
func NewBatchRepository() *BatchRepository {
	return &BatchRepository{batches: make(map[string]batch.Batch)}
}

// Get returns a copy of the stored batch.
func (r *BatchRepository) Get(_ context.Context, id string) (*batch.Batch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored, ok := r.batches[id]
	if !ok {
		return nil, batch.ErrBatchNotFound
	}
	copied := stored
	return &copied, nil
}

// Save stores the batch.
func (r *BatchRepository) Save(_ context.Context, b *batch.Batch) error {
	if b == nil {
		return batch.ErrInvalidBatch
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches[b.ID] = *b
	return nil
}

// UpdateStatus overwrites status and error code.
func (r *BatchRepository) UpdateStatus(_ context.Context, id string, status batch.Status, errorCode batch.ErrorCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.batches[id]
	if !ok {
		return batch.ErrBatchNotFound
	}
	stored.Status = status
	stored.ErrorCode = errorCode
	r.batches[id] = stored
	return nil
}

// SetExternalID records the external bill run id.
func (r *BatchRepository) SetExternalID(_ context.Context, id, externalID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.batches[id]
	if !ok {
		return batch.ErrBatchNotFound
	}
	stored.ExternalID = externalID
	r.batches[id] = stored
	return nil
}

// ListLiveByRegion returns live batches for a region.
func (r *BatchRepository) ListLiveByRegion(_ context.Context, region string) ([]*batch.Batch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*batch.Batch
	for _, stored := range r.batches {
		if stored.Region != region || !stored.IsLive() {
			continue
		}
		copied := stored
		result = append(result, &copied)
	}
	return result, nil
}

// Delete removes the batch.
func (r *BatchRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.batches, id)
	return nil
}
