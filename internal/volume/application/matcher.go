package application

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	charge "abstraction-billing/internal/charge/domain"
	returns "abstraction-billing/internal/returns/domain"
	volume "abstraction-billing/internal/volume/domain"
)

// SeasonPrecedence decides which source wins for crossover years where a
// legacy (nald) volume and a freshly computed (wrls) volume both exist.
type SeasonPrecedence string

const (
	PrecedenceWRLS SeasonPrecedence = "wrls"
	PrecedenceNALD SeasonPrecedence = "nald"
)

// Matcher computes two-part tariff billing volumes for the eligible
// elements of a charge version by apportioning return volumes.
type Matcher struct {
	volumes    volume.Repository
	returns    returns.Reader
	precedence SeasonPrecedence
	logger     *zap.Logger
}

// NewMatcher constructs a matcher.
func NewMatcher(volumes volume.Repository, reader returns.Reader, precedence SeasonPrecedence, logger *zap.Logger) (*Matcher, error) {
	if volumes == nil {
		return nil, errors.New("volume matcher: nil volume repository")
	}
	if reader == nil {
		return nil, errors.New("volume matcher: nil returns reader")
	}
	if precedence == "" {
		precedence = PrecedenceWRLS
	}
	if precedence != PrecedenceWRLS && precedence != PrecedenceNALD {
		return nil, errors.New("volume matcher: invalid season precedence")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{volumes: volumes, returns: reader, precedence: precedence, logger: logger}, nil
}

// matchItem is the per-element working state of one matching run.
type matchItem struct {
	element        charge.ChargeElement
	period         charge.DateRange
	authorisedDays int
	billableDays   int
	maxAllocatable decimal.Decimal
	allocated      decimal.Decimal
	errored        volume.MatchError
}

// MatchChargeVersion computes billing volumes for the two-part tariff
// elements of a charge version in one financial year and season. Persisted
// volumes for the same key are honoured: approved volumes are never
// recomputed, and legacy-sourced volumes survive under nald precedence.
func (m *Matcher) MatchChargeVersion(ctx context.Context, batchID string, version charge.ChargeVersion, year charge.FinancialYear, isSummer bool) ([]volume.BillingVolume, error) {
	chargePeriod, ok := charge.ChargePeriod(year, version)
	if !ok {
		return nil, nil
	}

	var items []*matchItem
	var kept []volume.BillingVolume
	for _, element := range version.TwoPartTariffElements() {
		if element.IsSummer() != isSummer {
			continue
		}
		period, ok := charge.ElementPeriod(chargePeriod, element)
		if !ok {
			continue
		}

		existing, err := m.volumes.FindByKey(ctx, element.ID, year.Ending(), isSummer)
		if err != nil && !errors.Is(err, volume.ErrVolumeNotFound) {
			return nil, err
		}
		if existing != nil && m.keepExisting(existing) {
			kept = append(kept, *existing)
			continue
		}

		item, err := newMatchItem(element, period, year)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return kept, nil
	}

	lines, err := m.returns.ListLines(ctx, version.Licence.LicenceNumber, chargePeriod, isSummer)
	if err != nil {
		return nil, err
	}

	batchError := classifyReturns(lines)
	allocate(items, lines)

	result := kept
	for _, item := range items {
		bv := volume.BillingVolume{
			ID:                  uuid.NewString(),
			BatchID:             batchID,
			ChargeElementID:     item.element.ID,
			FinancialYearEnding: year.Ending(),
			IsSummer:            isSummer,
			CalculatedVolume:    item.allocated,
			Source:              volume.SourceWRLS,
		}
		switch {
		case batchError != "":
			bv.TwoPartTariffError = true
			bv.ErrorReason = batchError
		case item.errored != "":
			bv.TwoPartTariffError = true
			bv.ErrorReason = item.errored
		default:
			allocated := item.allocated
			bv.Volume = &allocated
		}
		if err := m.volumes.Save(ctx, &bv); err != nil {
			return nil, err
		}
		result = append(result, bv)
	}

	if batchError != "" {
		m.logger.Warn("two-part tariff matching flagged for review",
			zap.String("batch_id", batchID),
			zap.String("licence", version.Licence.LicenceNumber),
			zap.String("reason", string(batchError)),
		)
	}
	return result, nil
}

// NeedsReview reports whether any volume in the set blocks the batch.
func NeedsReview(volumes []volume.BillingVolume) bool {
	for _, v := range volumes {
		if v.NeedsReview() {
			return true
		}
	}
	return false
}

func (m *Matcher) keepExisting(existing *volume.BillingVolume) bool {
	if existing.IsApproved {
		return true
	}
	return existing.Source == volume.SourceNALD && m.precedence == PrecedenceNALD
}

func newMatchItem(element charge.ChargeElement, period charge.DateRange, year charge.FinancialYear) (*matchItem, error) {
	authorised, err := charge.AuthorisedDays(year, element)
	if err != nil {
		return nil, err
	}
	billable, err := charge.BillableDays(period, element)
	if err != nil {
		return nil, err
	}
	maxAllocatable := decimal.Zero
	if authorised > 0 {
		proRata := decimal.NewFromInt(int64(billable)).Div(decimal.NewFromInt(int64(authorised)))
		maxAllocatable = element.MaxAnnualQuantity().Mul(proRata)
	}
	return &matchItem{
		element:        element,
		period:         period,
		authorisedDays: authorised,
		billableDays:   billable,
		maxAllocatable: maxAllocatable,
	}, nil
}

// classifyReturns detects the batch-level error classes: no usable returns
// at all, or returns still outstanding.
func classifyReturns(lines []returns.Line) volume.MatchError {
	if len(lines) == 0 {
		return volume.ErrorNoReturnsForMatching
	}
	for _, line := range lines {
		if line.IsDue() || line.UnderQuery {
			return volume.ErrorSomeReturnsDue
		}
	}
	return ""
}

// allocate apportions return-line quantities across elements in order,
// never exceeding an element's maximum allocatable volume. Leftover volume
// marks the last matching element as over-abstracted; its attempted total
// is retained as the calculated volume for audit.
func allocate(items []*matchItem, lines []returns.Line) {
	remaining := make([]decimal.Decimal, len(lines))
	for i, line := range lines {
		remaining[i] = line.Quantity
	}

	for _, item := range items {
		capacity := item.maxAllocatable
		for i, line := range lines {
			if remaining[i].LessThanOrEqual(decimal.Zero) {
				continue
			}
			if !lineMatches(line, item) {
				continue
			}
			take := decimal.Min(capacity, remaining[i])
			item.allocated = item.allocated.Add(take)
			capacity = capacity.Sub(take)
			remaining[i] = remaining[i].Sub(take)
			if capacity.LessThanOrEqual(decimal.Zero) {
				break
			}
		}
	}

	leftover := decimal.Zero
	for i := range lines {
		if remaining[i].GreaterThan(decimal.Zero) {
			leftover = leftover.Add(remaining[i])
		}
	}
	if leftover.GreaterThan(decimal.Zero) && len(items) > 0 {
		last := items[len(items)-1]
		last.errored = volume.ErrorOverAbstraction
		last.allocated = last.allocated.Add(leftover)
	}
}

func lineMatches(line returns.Line, item *matchItem) bool {
	if !line.Range.Overlaps(item.period) {
		return false
	}
	if line.PurposeCode == "" {
		return true
	}
	return line.PurposeCode == item.element.Purpose.Code
}
