package batch

import (
	"time"

	charge "abstraction-billing/internal/charge/domain"
)

// Type classifies a billing batch.
type Type string

const (
	TypeAnnual        Type = "annual"
	TypeSupplementary Type = "supplementary"
	TypeTwoPartTariff Type = "two_part_tariff"
)

// IsValid reports whether the type is a known batch type.
func (t Type) IsValid() bool {
	switch t {
	case TypeAnnual, TypeSupplementary, TypeTwoPartTariff:
		return true
	}
	return false
}

// Status is the lifecycle state of a batch.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusReview     Status = "review"
	StatusReady      Status = "ready"
	StatusSending    Status = "sending"
	StatusSent       Status = "sent"
	StatusEmpty      Status = "empty"
	StatusError      Status = "error"
)

// LiveStatuses are the non-terminal states that block a new batch for the
// same region and year range.
var LiveStatuses = []Status{StatusQueued, StatusProcessing, StatusReview}

// transitions is the directed edge set of the batch lifecycle. Error is
// reachable from every state except sent and is handled separately.
var transitions = map[Status][]Status{
	StatusQueued:     {StatusProcessing},
	StatusProcessing: {StatusReview, StatusReady, StatusEmpty},
	StatusReview:     {StatusProcessing, StatusReady},
	StatusReady:      {StatusSending},
	StatusSending:    {StatusSent},
}

// CanTransition reports whether from -> to follows a lifecycle edge.
func CanTransition(from, to Status) bool {
	if to == StatusError {
		return from != StatusSent
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ErrorCode identifies the pipeline stage a batch failed in.
type ErrorCode string

const (
	ErrorFailedToCreateBillRun          ErrorCode = "failedToCreateBillRun"
	ErrorFailedToPopulateChargeVersions ErrorCode = "failedToPopulateChargeVersions"
	ErrorFailedToProcessChargeVersions  ErrorCode = "failedToProcessChargeVersions"
	ErrorFailedToProcessTwoPartTariff   ErrorCode = "failedToProcessTwoPartTariff"
	ErrorFailedToProcessRebilling       ErrorCode = "failedToProcessRebilling"
	ErrorFailedToGetBillRunSummary      ErrorCode = "failedToGetChargeModuleBillRunSummary"
)

// Batch is one execution of the billing pipeline for a region, a financial
// year range and a type.
type Batch struct {
	ID         string
	Region     string
	Type       Type
	Status     Status
	ErrorCode  ErrorCode
	IsSummer   bool
	StartYear  charge.FinancialYear
	EndYear    charge.FinancialYear
	ExternalID string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// New builds a queued batch. Supplementary batches span several financial
// years; annual and two-part tariff batches cover a single year.
func New(id, region string, batchType Type, endYear charge.FinancialYear, isSummer bool, yearSpan int, now time.Time) (*Batch, error) {
	if id == "" || region == "" {
		return nil, ErrInvalidBatch
	}
	if !batchType.IsValid() {
		return nil, ErrInvalidBatch
	}
	if endYear <= 0 {
		return nil, charge.ErrInvalidFinancialYear
	}
	startYear := endYear
	if batchType == TypeSupplementary && yearSpan > 1 {
		startYear = endYear - charge.FinancialYear(yearSpan-1)
	}
	return &Batch{
		ID:        id,
		Region:    region,
		Type:      batchType,
		Status:    StatusQueued,
		IsSummer:  isSummer,
		StartYear: startYear,
		EndYear:   endYear,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}, nil
}

// Years enumerates the financial years the batch covers.
func (b *Batch) Years() []charge.FinancialYear {
	var years []charge.FinancialYear
	for year := b.StartYear; year <= b.EndYear; year++ {
		years = append(years, year)
	}
	return years
}

// OverlapsYears reports whether the batch's year range overlaps [start, end].
func (b *Batch) OverlapsYears(start, end charge.FinancialYear) bool {
	return b.StartYear <= end && start <= b.EndYear
}

// IsLive reports whether the batch blocks new batches for its region.
func (b *Batch) IsLive() bool {
	for _, status := range LiveStatuses {
		if b.Status == status {
			return true
		}
	}
	return false
}

// AssertStatus fails with a StatusError unless the batch is in one of the
// expected statuses. Every pipeline stage gates on this before acting.
func (b *Batch) AssertStatus(expected ...Status) error {
	for _, status := range expected {
		if b.Status == status {
			return nil
		}
	}
	return &WrongStatusError{BatchID: b.ID, Actual: b.Status, Expected: expected}
}

// SetStatus advances the batch along a lifecycle edge.
func (b *Batch) SetStatus(to Status, now time.Time) error {
	if !CanTransition(b.Status, to) {
		return &WrongStatusError{BatchID: b.ID, Actual: b.Status, Expected: []Status{to}}
	}
	b.Status = to
	b.UpdatedAt = now.UTC()
	return nil
}

// SetErrorStatus marks the batch failed with a stage-specific code.
func (b *Batch) SetErrorStatus(code ErrorCode, now time.Time) error {
	if !CanTransition(b.Status, StatusError) {
		return &WrongStatusError{BatchID: b.ID, Actual: b.Status, Expected: []Status{StatusError}}
	}
	b.Status = StatusError
	b.ErrorCode = code
	b.UpdatedAt = now.UTC()
	return nil
}
