package batch

import "context"

// Repository persists batches. Status updates are last-writer-wins at the
// row level; mutual exclusion comes from the status gate, not locking.
type Repository interface {
	Get(ctx context.Context, id string) (*Batch, error)
	Save(ctx context.Context, b *Batch) error
	UpdateStatus(ctx context.Context, id string, status Status, errorCode ErrorCode) error
	SetExternalID(ctx context.Context, id, externalID string) error
	ListLiveByRegion(ctx context.Context, region string) ([]*Batch, error)
	Delete(ctx context.Context, id string) error
}
