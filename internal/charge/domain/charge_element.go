package charge

import "github.com/shopspring/decimal"

// Loss categories for a charge element.
const (
	LossHigh     = "high"
	LossMedium   = "medium"
	LossLow      = "low"
	LossVeryLow  = "very low"
	LossNonChrge = "non-chargeable"
)

// Season values for a charge element.
const (
	SeasonSummer  = "summer"
	SeasonWinter  = "winter"
	SeasonAllYear = "all year"
)

// PurposeUse is the tertiary purpose of a charge element. Two-part tariff
// only applies to abstraction-type purposes flagged for it.
type PurposeUse struct {
	Code            string
	Description     string
	IsTwoPartTariff bool
}

// ChargeElement is a single chargeable component of a charge version.
type ChargeElement struct {
	ID                       string
	ChargeVersionID          string
	Description              string
	AbstractionPeriod        AbstractionPeriod
	Purpose                  PurposeUse
	Source                   string
	Season                   string
	Loss                     string
	AuthorisedAnnualQuantity decimal.Decimal
	BillableAnnualQuantity   *decimal.Decimal
	TimeLimited              *DateRange
}

// MaxAnnualQuantity is the billable quantity when set, otherwise the
// authorised quantity.
func (e ChargeElement) MaxAnnualQuantity() decimal.Decimal {
	if e.BillableAnnualQuantity != nil {
		return *e.BillableAnnualQuantity
	}
	return e.AuthorisedAnnualQuantity
}

// IsSummer reports whether the element belongs to the summer season for
// two-part tariff purposes.
func (e ChargeElement) IsSummer() bool { return e.Season == SeasonSummer }
