package transaction

import (
	"sort"
	"time"

	charge "abstraction-billing/internal/charge/domain"
)

// AgreementPeriod is a sub-period of a charge period over which the set of
// applicable agreements does not change.
type AgreementPeriod struct {
	Range      charge.DateRange
	Agreements []charge.Agreement
}

// Codes returns the agreement codes of the sub-period, sorted.
func (p AgreementPeriod) Codes() []string {
	codes := make([]string, 0, len(p.Agreements))
	for _, agreement := range p.Agreements {
		codes = append(codes, agreement.Code)
	}
	sort.Strings(codes)
	return codes
}

// HasTwoPartTariff reports whether the sub-period carries an S127 agreement.
func (p AgreementPeriod) HasTwoPartTariff() bool {
	for _, agreement := range p.Agreements {
		if agreement.IsTwoPartTariff() {
			return true
		}
	}
	return false
}

// AgreementHistory splits a closed charge period at every agreement start
// and end boundary, so each sub-period has a stable, unambiguous agreement
// set. With no overlapping agreements the result is the period itself.
func AgreementHistory(period charge.DateRange, agreements []charge.Agreement) []AgreementPeriod {
	if period.IsZero() || period.OpenEnded() {
		return nil
	}
	applicable := charge.AgreementsInRange(agreements, period)

	boundaries := map[time.Time]struct{}{period.Start(): {}}
	for _, agreement := range applicable {
		boundaries[agreement.Range.Start()] = struct{}{}
		if !agreement.Range.OpenEnded() && agreement.Range.End().Before(period.End()) {
			// The day after an agreement ends starts a new sub-period.
			boundaries[agreement.Range.End().AddDate(0, 0, 1)] = struct{}{}
		}
	}

	starts := make([]time.Time, 0, len(boundaries))
	for boundary := range boundaries {
		starts = append(starts, boundary)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	var history []AgreementPeriod
	for i, start := range starts {
		end := period.End()
		if i+1 < len(starts) {
			end = starts[i+1].AddDate(0, 0, -1)
		}
		sub, err := charge.NewDateRange(start, end)
		if err != nil {
			continue
		}
		history = append(history, AgreementPeriod{
			Range:      sub,
			Agreements: charge.AgreementsInRange(applicable, sub),
		})
	}
	return history
}
