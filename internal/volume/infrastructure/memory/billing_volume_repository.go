package memory

import (
	"context"
	"sync"

	volume "abstraction-billing/internal/volume/domain"
)

type key struct {
	chargeElementID     string
	financialYearEnding int
	isSummer            bool
}

// BillingVolumeRepository is an in-memory billing volume store for tests.
type BillingVolumeRepository struct {
	mu      sync.RWMutex
	volumes map[key]volume.BillingVolume
}

// NewBillingVolumeRepository constructs an empty store.
func NewBillingVolumeRepository() *BillingVolumeRepository {
	return &BillingVolumeRepository{volumes: make(map[key]volume.BillingVolume)}
}

// FindByKey returns the volume for a charge element, year and season.
func (r *BillingVolumeRepository) FindByKey(_ context.Context, chargeElementID string, financialYearEnding int, isSummer bool) (*volume.BillingVolume, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.volumes[key{chargeElementID, financialYearEnding, isSummer}]
	if !ok {
		return nil, volume.ErrVolumeNotFound
	}
	copied := v
	return &copied, nil
}

// ListByBatch returns volumes of a batch.
func (r *BillingVolumeRepository) ListByBatch(_ context.Context, batchID string) ([]volume.BillingVolume, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []volume.BillingVolume
	for _, v := range r.volumes {
		if v.BatchID == batchID {
			result = append(result, v)
		}
	}
	return result, nil
}

// Save upserts a volume on its (element, year, season) key.
func (r *BillingVolumeRepository) Save(_ context.Context, v *volume.BillingVolume) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.volumes[key{v.ChargeElementID, v.FinancialYearEnding, v.IsSummer}] = *v
	return nil
}

// ApproveByBatch marks every volume of a batch approved.
func (r *BillingVolumeRepository) ApproveByBatch(_ context.Context, batchID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range r.volumes {
		if v.BatchID == batchID {
			v.IsApproved = true
			r.volumes[k] = v
		}
	}
	return nil
}

// DeleteByBatch removes unapproved volumes of a batch.
func (r *BillingVolumeRepository) DeleteByBatch(_ context.Context, batchID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range r.volumes {
		if v.BatchID == batchID && !v.IsApproved {
			delete(r.volumes, k)
		}
	}
	return nil
}
