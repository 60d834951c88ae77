package charge

import "time"

// DateRange is an inclusive pair of calendar dates. The end may be open
// (unknown), in which case the range extends indefinitely. Instances are
// immutable; all invariants are checked at construction.
type DateRange struct {
	start   time.Time
	end     time.Time
	openEnd bool
}

// NewDateRange builds a closed range. Both endpoints are truncated to UTC
// midnight. Fails when end precedes start.
func NewDateRange(start, end time.Time) (DateRange, error) {
	if start.IsZero() || end.IsZero() {
		return DateRange{}, ErrInvalidDateRange
	}
	s := DateOf(start)
	e := DateOf(end)
	if e.Before(s) {
		return DateRange{}, ErrInvalidDateRange
	}
	return DateRange{start: s, end: e}, nil
}

// NewOpenDateRange builds a range with a known start and no end.
func NewOpenDateRange(start time.Time) (DateRange, error) {
	if start.IsZero() {
		return DateRange{}, ErrInvalidDateRange
	}
	return DateRange{start: DateOf(start), openEnd: true}, nil
}

// DateOf truncates a timestamp to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Date is a shorthand constructor for a UTC calendar date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Start returns the first day of the range.
func (r DateRange) Start() time.Time { return r.start }

// End returns the last day of the range. Only meaningful when OpenEnded is false.
func (r DateRange) End() time.Time { return r.end }

// OpenEnded reports whether the range has no known end date.
func (r DateRange) OpenEnded() bool { return r.openEnd }

// IsZero reports whether the range is the zero value.
func (r DateRange) IsZero() bool { return r.start.IsZero() }

// Contains reports whether the date falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	d := DateOf(t)
	if d.Before(r.start) {
		return false
	}
	return r.openEnd || !d.After(r.end)
}

// Overlaps reports whether two ranges share at least one day.
func (r DateRange) Overlaps(other DateRange) bool {
	_, ok := r.Intersect(other)
	return ok
}

// Intersect returns the common sub-range, if any.
func (r DateRange) Intersect(other DateRange) (DateRange, bool) {
	if r.IsZero() || other.IsZero() {
		return DateRange{}, false
	}
	start := r.start
	if other.start.After(start) {
		start = other.start
	}

	switch {
	case r.openEnd && other.openEnd:
		return DateRange{start: start, openEnd: true}, true
	case r.openEnd:
		if other.end.Before(start) {
			return DateRange{}, false
		}
		return DateRange{start: start, end: other.end}, true
	case other.openEnd:
		if r.end.Before(start) {
			return DateRange{}, false
		}
		return DateRange{start: start, end: r.end}, true
	}

	end := r.end
	if other.end.Before(end) {
		end = other.end
	}
	if end.Before(start) {
		return DateRange{}, false
	}
	return DateRange{start: start, end: end}, true
}

// Days returns the inclusive day count of a closed range.
func (r DateRange) Days() (int, error) {
	if r.IsZero() {
		return 0, ErrInvalidDateRange
	}
	if r.openEnd {
		return 0, ErrOpenEndedRange
	}
	return int(r.end.Sub(r.start).Hours()/24) + 1, nil
}

// ClampEnd returns a copy whose end is capped at the given date. A closed
// range ending earlier is returned unchanged.
func (r DateRange) ClampEnd(end time.Time) (DateRange, bool) {
	e := DateOf(end)
	if e.Before(r.start) {
		return DateRange{}, false
	}
	if !r.openEnd && r.end.Before(e) {
		return r, true
	}
	return DateRange{start: r.start, end: e}, true
}

// String renders the range for logs and descriptions.
func (r DateRange) String() string {
	if r.openEnd {
		return r.start.Format("2006-01-02") + "..open"
	}
	return r.start.Format("2006-01-02") + ".." + r.end.Format("2006-01-02")
}
