package transaction

import (
	"context"
	"errors"
)

// ErrTransactionNotFound is returned when a transaction id is unknown.
var ErrTransactionNotFound = errors.New("transaction: not found")

// Repository persists transactions.
type Repository interface {
	SaveBatch(ctx context.Context, transactions []Transaction) error
	ListByBatch(ctx context.Context, batchID string) ([]Transaction, error)
	// ListHistoricalByLicence returns charge_created transactions previously
	// billed for the licence within the given financial years, excluding the
	// current batch. Used by supplementary reconciliation.
	ListHistoricalByLicence(ctx context.Context, licenceNumber string, startYear, endYear int, excludeBatchID string) ([]Transaction, error)
	UpdateStatus(ctx context.Context, id string, status Status, externalID string) error
	DeleteByBatch(ctx context.Context, batchID string) error
}
