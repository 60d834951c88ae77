package charge

import "time"

// Licence carries the lifecycle dates and flags the charging engine needs.
// The full licence record lives with the persistence collaborator.
type Licence struct {
	ID                string
	LicenceNumber     string
	Region            string
	StartDate         time.Time
	ExpiryDate        *time.Time
	RevokedDate       *time.Time
	LapsedDate        *time.Time
	IsWaterUndertaker bool
	Agreements        []Agreement
}

// EndDate returns the earliest of expiry, revoked and lapsed dates, or nil
// when the licence has no known end.
func (l Licence) EndDate() *time.Time {
	var end *time.Time
	for _, candidate := range []*time.Time{l.ExpiryDate, l.RevokedDate, l.LapsedDate} {
		if candidate == nil {
			continue
		}
		d := DateOf(*candidate)
		if end == nil || d.Before(*end) {
			end = &d
		}
	}
	return end
}

// EffectiveRange is the window during which the licence can be charged.
func (l Licence) EffectiveRange() (DateRange, error) {
	if end := l.EndDate(); end != nil {
		return NewDateRange(l.StartDate, *end)
	}
	return NewOpenDateRange(l.StartDate)
}
