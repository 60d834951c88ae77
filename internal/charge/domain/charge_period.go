package charge

// ChargePeriod computes the date range within a financial year for which a
// charge version's terms apply: the intersection of the financial year, the
// charge version range and the licence effective range. The second return is
// false when the intersection is empty.
func ChargePeriod(year FinancialYear, version ChargeVersion) (DateRange, bool) {
	period, ok := year.Range().Intersect(version.Range)
	if !ok {
		return DateRange{}, false
	}
	effective, err := version.Licence.EffectiveRange()
	if err != nil {
		return DateRange{}, false
	}
	return period.Intersect(effective)
}

// ElementPeriod narrows a charge period to a single element, honouring its
// time-limited sub-range. An element whose time limit misses the charge
// period contributes nothing for the year.
func ElementPeriod(chargePeriod DateRange, element ChargeElement) (DateRange, bool) {
	if element.TimeLimited == nil {
		return chargePeriod, true
	}
	return chargePeriod.Intersect(*element.TimeLimited)
}

// AuthorisedDays counts the element's abstraction-period days across the
// full financial year.
func AuthorisedDays(year FinancialYear, element ChargeElement) (int, error) {
	return element.AbstractionPeriod.DaysWithin(year.Range())
}

// BillableDays counts the element's abstraction-period days across the
// computed charge/element period.
func BillableDays(period DateRange, element ChargeElement) (int, error) {
	return element.AbstractionPeriod.DaysWithin(period)
}
