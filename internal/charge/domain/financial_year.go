package charge

import (
	"fmt"
	"time"
)

// FinancialYear identifies an April-to-March charging year by the calendar
// year it ends in: FY 2020 runs 2019-04-01 to 2020-03-31.
type FinancialYear int

// NewFinancialYear validates the ending year.
func NewFinancialYear(ending int) (FinancialYear, error) {
	if ending <= 0 {
		return 0, ErrInvalidFinancialYear
	}
	return FinancialYear(ending), nil
}

// FinancialYearOf returns the financial year a date falls in.
func FinancialYearOf(t time.Time) FinancialYear {
	d := DateOf(t)
	if d.Month() >= time.April {
		return FinancialYear(d.Year() + 1)
	}
	return FinancialYear(d.Year())
}

// Ending returns the calendar year the financial year ends in.
func (y FinancialYear) Ending() int { return int(y) }

// Start returns 1 April of the preceding calendar year.
func (y FinancialYear) Start() time.Time { return Date(int(y)-1, time.April, 1) }

// End returns 31 March of the ending calendar year.
func (y FinancialYear) End() time.Time { return Date(int(y), time.March, 31) }

// Range returns the full year as a closed date range.
func (y FinancialYear) Range() DateRange {
	return DateRange{start: y.Start(), end: y.End()}
}

func (y FinancialYear) String() string {
	return fmt.Sprintf("FY%d", int(y))
}
