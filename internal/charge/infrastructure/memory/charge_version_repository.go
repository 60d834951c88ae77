package memory

import (
	"context"
	"sync"

	charge "abstraction-billing/internal/charge/domain"
)

// ChargeVersionRepository is an in-memory charge version store for tests.
type ChargeVersionRepository struct {
	mu       sync.RWMutex
	versions map[string]charge.ChargeVersion
}

// NewChargeVersionRepository constructs an empty store.
func NewChargeVersionRepository() *ChargeVersionRepository {
	return &ChargeVersionRepository{versions: make(map[string]charge.ChargeVersion)}
}

// Add seeds a charge version.
func (r *ChargeVersionRepository) Add(version charge.ChargeVersion) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.versions[version.ID] = version
}

// Get returns a charge version by id.
func (r *ChargeVersionRepository) Get(_ context.Context, id string) (*charge.ChargeVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	version, ok := r.versions[id]
	if !ok {
		return nil, charge.ErrChargeVersionNotFound
	}
	copied := version
	return &copied, nil
}

// ListByRegion returns current charge versions touching any of the years.
func (r *ChargeVersionRepository) ListByRegion(_ context.Context, region string, years []charge.FinancialYear) ([]charge.ChargeVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []charge.ChargeVersion
	for _, version := range r.versions {
		if version.Licence.Region != region {
			continue
		}
		for _, year := range years {
			if _, ok := year.Range().Intersect(version.Range); ok {
				result = append(result, version)
				break
			}
		}
	}
	return result, nil
}
