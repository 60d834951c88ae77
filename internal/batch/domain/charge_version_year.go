package batch

import (
	"context"
	"errors"

	charge "abstraction-billing/internal/charge/domain"
)

// ChargeVersionYear statuses. Each row is one unit of charge processing
// work; the batch advances once none remain in processing.
const (
	ChargeVersionYearProcessing = "processing"
	ChargeVersionYearReady      = "ready"
	ChargeVersionYearError      = "error"
)

// ErrChargeVersionYearNotFound is returned when no working set row matches.
var ErrChargeVersionYearNotFound = errors.New("batch: charge version year not found")

// ChargeVersionYear is one (charge version, financial year) pair in a
// batch's working set, materialised by the populate stage.
type ChargeVersionYear struct {
	ID              string
	BatchID         string
	ChargeVersionID string
	FinancialYear   charge.FinancialYear
	Status          string
}

// ChargeVersionYearRepository persists the working set of a batch.
type ChargeVersionYearRepository interface {
	SaveAll(ctx context.Context, rows []ChargeVersionYear) error
	Get(ctx context.Context, id string) (*ChargeVersionYear, error)
	ListByBatch(ctx context.Context, batchID string) ([]ChargeVersionYear, error)
	SetStatus(ctx context.Context, id, status string) error
	// CountRemaining counts rows still in processing for a batch.
	CountRemaining(ctx context.Context, batchID string) (int, error)
	DeleteByBatch(ctx context.Context, batchID string) error
}
