package charge

import "time"

// AbstractionPeriod is the recurring window of each calendar year during
// which a charge element permits abstraction, e.g. 1 Nov to 31 Mar. The
// window may wrap the calendar year boundary.
type AbstractionPeriod struct {
	startDay   int
	startMonth time.Month
	endDay     int
	endMonth   time.Month
}

// NewAbstractionPeriod validates the day/month bounds.
func NewAbstractionPeriod(startDay int, startMonth time.Month, endDay int, endMonth time.Month) (AbstractionPeriod, error) {
	if !validDayMonth(startDay, startMonth) || !validDayMonth(endDay, endMonth) {
		return AbstractionPeriod{}, ErrInvalidAbstractionPeriod
	}
	return AbstractionPeriod{
		startDay:   startDay,
		startMonth: startMonth,
		endDay:     endDay,
		endMonth:   endMonth,
	}, nil
}

// AllYear is the 1 Jan to 31 Dec abstraction period.
func AllYear() AbstractionPeriod {
	return AbstractionPeriod{startDay: 1, startMonth: time.January, endDay: 31, endMonth: time.December}
}

func validDayMonth(day int, month time.Month) bool {
	if month < time.January || month > time.December {
		return false
	}
	if day < 1 {
		return false
	}
	// 29 Feb is allowed; it simply never lands in non-leap years.
	last := Date(2000, month, 1).AddDate(0, 1, -1).Day()
	return day <= last
}

// Wraps reports whether the window crosses the calendar year boundary.
func (p AbstractionPeriod) Wraps() bool {
	if p.startMonth == p.endMonth {
		return p.startDay > p.endDay
	}
	return p.startMonth > p.endMonth
}

// windowsWithin enumerates the concrete yearly windows that could overlap
// the given closed range.
func (p AbstractionPeriod) windowsWithin(r DateRange) []DateRange {
	var windows []DateRange
	for year := r.Start().Year() - 1; year <= r.End().Year(); year++ {
		start := Date(year, p.startMonth, p.startDay)
		endYear := year
		if p.Wraps() {
			endYear++
		}
		end := Date(endYear, p.endMonth, p.endDay)
		if end.Before(start) {
			// 29 Feb start in a non-leap year normalises past the end.
			continue
		}
		windows = append(windows, DateRange{start: start, end: end})
	}
	return windows
}

// DaysWithin counts the days of the range that fall inside the abstraction
// window, summed across every calendar year the range touches.
func (p AbstractionPeriod) DaysWithin(r DateRange) (int, error) {
	if r.IsZero() {
		return 0, ErrInvalidDateRange
	}
	if r.OpenEnded() {
		return 0, ErrOpenEndedRange
	}
	total := 0
	for _, window := range p.windowsWithin(r) {
		overlap, ok := window.Intersect(r)
		if !ok {
			continue
		}
		days, err := overlap.Days()
		if err != nil {
			return 0, err
		}
		total += days
	}
	return total, nil
}
