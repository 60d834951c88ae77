package charge

import (
	"context"
	"errors"
)

// ErrChargeVersionNotFound is returned when no charge version matches.
var ErrChargeVersionNotFound = errors.New("charge: charge version not found")

// Repository reads licence charge data. Charge versions are reference data
// owned by the licensing service; this side only ever reads them.
type Repository interface {
	Get(ctx context.Context, id string) (*ChargeVersion, error)
	// ListByRegion returns the current charge versions of a region whose
	// range touches any of the financial years.
	ListByRegion(ctx context.Context, region string, years []FinancialYear) ([]ChargeVersion, error)
}
