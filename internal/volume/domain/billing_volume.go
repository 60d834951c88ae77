package volume

import (
	"github.com/shopspring/decimal"
)

// Source identifies where a billing volume came from.
type Source string

const (
	// SourceNALD marks volumes migrated from the legacy system.
	SourceNALD Source = "nald"
	// SourceWRLS marks volumes computed by this service.
	SourceWRLS Source = "wrls"
)

// MatchError classifies why matching could not produce a billable volume.
type MatchError string

const (
	ErrorNoReturnsForMatching MatchError = "ERROR_NO_RETURNS_FOR_MATCHING"
	ErrorSomeReturnsDue       MatchError = "ERROR_SOME_RETURNS_DUE"
	ErrorOverAbstraction      MatchError = "ERROR_OVER_ABSTRACTION"
)

// BillingVolume is the two-part tariff volume computed (or approved) for a
// charge element, financial year and season. It is keyed by that tuple and
// shared by reference with the review workflow.
type BillingVolume struct {
	ID                  string
	BatchID             string
	ChargeElementID     string
	FinancialYearEnding int
	IsSummer            bool
	// CalculatedVolume is always retained for audit, even on error.
	CalculatedVolume decimal.Decimal
	// Volume is nil when matching errored; the reviewer fills it in.
	Volume             *decimal.Decimal
	TwoPartTariffError bool
	ErrorReason        MatchError
	Source             Source
	IsApproved         bool
}

// NeedsReview reports whether the volume blocks the batch from ready.
func (v BillingVolume) NeedsReview() bool {
	return v.TwoPartTariffError || !v.IsApproved
}

// Approve marks the volume approved, optionally overriding the volume.
func (v *BillingVolume) Approve(override *decimal.Decimal) {
	if override != nil {
		value := *override
		v.Volume = &value
		v.TwoPartTariffError = false
		v.ErrorReason = ""
	}
	v.IsApproved = true
}
