package application

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	volume "abstraction-billing/internal/volume/domain"
)

// Reviewer applies manual review decisions to billing volumes while the
// batch is paused in review.
type Reviewer struct {
	volumes volume.Repository
	logger  *zap.Logger
}

// NewReviewer constructs a reviewer.
func NewReviewer(volumes volume.Repository, logger *zap.Logger) (*Reviewer, error) {
	if volumes == nil {
		return nil, errors.New("volume reviewer: nil volume repository")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reviewer{volumes: volumes, logger: logger}, nil
}

// ApproveVolume approves a single volume, optionally overriding its value.
// An override clears the matching error so the element becomes billable.
func (r *Reviewer) ApproveVolume(ctx context.Context, chargeElementID string, financialYearEnding int, isSummer bool, override *decimal.Decimal) (*volume.BillingVolume, error) {
	v, err := r.volumes.FindByKey(ctx, chargeElementID, financialYearEnding, isSummer)
	if err != nil {
		return nil, err
	}
	v.Approve(override)
	if err := r.volumes.Save(ctx, v); err != nil {
		return nil, err
	}
	r.logger.Info("billing volume approved",
		zap.String("charge_element_id", chargeElementID),
		zap.Int("financial_year_ending", financialYearEnding),
		zap.Bool("is_summer", isSummer),
		zap.Bool("overridden", override != nil),
	)
	return v, nil
}

// ApproveBatch approves every volume of a batch. Volumes still carrying a
// matching error block approval; they must be overridden individually first.
func (r *Reviewer) ApproveBatch(ctx context.Context, batchID string) error {
	volumes, err := r.volumes.ListByBatch(ctx, batchID)
	if err != nil {
		return err
	}
	for _, v := range volumes {
		if v.TwoPartTariffError {
			return &UnresolvedVolumeError{ChargeElementID: v.ChargeElementID, Reason: v.ErrorReason}
		}
	}
	return r.volumes.ApproveByBatch(ctx, batchID)
}

// UnresolvedVolumeError reports a volume that still carries a matching
// error when batch approval is attempted.
type UnresolvedVolumeError struct {
	ChargeElementID string
	Reason          volume.MatchError
}

func (e *UnresolvedVolumeError) Error() string {
	return "volume: unresolved matching error " + string(e.Reason) + " on element " + e.ChargeElementID
}
