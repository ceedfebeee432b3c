package calendar

import "time"

// AlwaysOpen is the calendar-time clock: every instant is open.
type AlwaysOpen struct {
	Loc *time.Location
}

// Location returns the configured location, UTC by default.
func (a AlwaysOpen) Location() *time.Location {
	if a.Loc == nil {
		return time.UTC
	}
	return a.Loc
}

func (AlwaysOpen) IsOpenAt(time.Time) bool { return true }

func (a AlwaysOpen) OpenWindow(t time.Time) (time.Time, time.Time, bool) {
	local := t.In(a.Location())
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, a.Location()), time.Date(y, m, d+1, 0, 0, 0, 0, a.Location()), true
}

func (AlwaysOpen) NextOpen(t time.Time) (time.Time, error) { return t, nil }

func (AlwaysOpen) AddBusinessDuration(start time.Time, d time.Duration) (time.Time, error) {
	if d <= 0 {
		return start, nil
	}
	return start.Add(d), nil
}

func (AlwaysOpen) BusinessDurationBetween(a, b time.Time) time.Duration {
	if !b.After(a) {
		return 0
	}
	return b.Sub(a)
}
