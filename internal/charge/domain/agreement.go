package charge

// Agreement codes used by the charging engine. S127 is the two-part tariff
// agreement; S130 codes are canal-and-river-trust discounts.
const (
	AgreementTwoPartTariff = "S127"
	AgreementCanalS130U    = "S130U"
	AgreementCanalS130S    = "S130S"
	AgreementCanalS130T    = "S130T"
	AgreementCanalS130W    = "S130W"
)

// Agreement is a licence-level financial agreement valid over a date range.
// Discount factors are applied by the charging authority from the agreement
// code; the engine only forwards the codes.
type Agreement struct {
	Code  string
	Range DateRange
}

// IsTwoPartTariff reports whether the agreement enables two-part tariff.
func (a Agreement) IsTwoPartTariff() bool { return a.Code == AgreementTwoPartTariff }

// AgreementsInRange filters agreements whose validity window overlaps the
// given period, with each result clipped to that period.
func AgreementsInRange(agreements []Agreement, period DateRange) []Agreement {
	var result []Agreement
	for _, agreement := range agreements {
		clipped, ok := agreement.Range.Intersect(period)
		if !ok {
			continue
		}
		agreement.Range = clipped
		result = append(result, agreement)
	}
	return result
}

// HasTwoPartTariffAgreement reports whether any agreement overlapping the
// period is a two-part tariff agreement.
func HasTwoPartTariffAgreement(agreements []Agreement, period DateRange) bool {
	for _, agreement := range AgreementsInRange(agreements, period) {
		if agreement.IsTwoPartTariff() {
			return true
		}
	}
	return false
}
