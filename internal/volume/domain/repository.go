package volume

import (
	"context"
	"errors"
)

// ErrVolumeNotFound is returned when no billing volume matches the key.
var ErrVolumeNotFound = errors.New("volume: not found")

// Repository persists billing volumes. Reviewers mutate volumes while the
// batch is paused in review, so the pipeline must re-read rather than cache.
type Repository interface {
	FindByKey(ctx context.Context, chargeElementID string, financialYearEnding int, isSummer bool) (*BillingVolume, error)
	ListByBatch(ctx context.Context, batchID string) ([]BillingVolume, error)
	Save(ctx context.Context, v *BillingVolume) error
	ApproveByBatch(ctx context.Context, batchID string) error
	DeleteByBatch(ctx context.Context, batchID string) error
}
