package charge

import "errors"

var (
	// ErrInvalidDateRange is returned when a range ends before it starts.
	ErrInvalidDateRange = errors.New("charge: invalid date range")
	// ErrInvalidFinancialYear is returned for a non-positive ending year.
	ErrInvalidFinancialYear = errors.New("charge: invalid financial year")
	// ErrInvalidAbstractionPeriod is returned for out-of-range day/month values.
	ErrInvalidAbstractionPeriod = errors.New("charge: invalid abstraction period")
	// ErrOpenEndedRange is returned when a day count is requested for an open range.
	ErrOpenEndedRange = errors.New("charge: open-ended range has no day count")
)
