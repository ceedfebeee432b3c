// Package calendar evaluates business-hours schedules: whether an instant is
// open, and how much open time lies between two instants.
package calendar

import (
	"fmt"
	"time"

	"github.com/spec-kit/sla-service/internal/domain"
	apperrors "github.com/spec-kit/sla-service/pkg/util/errorutil"
)

// maxClosedDays bounds how many consecutive closed days a forward walk
// crosses before the schedule counts as never open. Holidays alone cannot
// close a schedule with an open weekday for that long.
const maxClosedDays = 366 * 2

// Calendar answers open-time questions for one schedule.
type Calendar interface {
	Location() *time.Location
	IsOpenAt(t time.Time) bool
	// OpenWindow returns the open interval of the local date containing t.
	OpenWindow(t time.Time) (open, close time.Time, ok bool)
	NextOpen(t time.Time) (time.Time, error)
	AddBusinessDuration(start time.Time, d time.Duration) (time.Time, error)
	BusinessDurationBetween(a, b time.Time) time.Duration
}

// BusinessHours is a weekly schedule with holiday exclusions in one timezone.
type BusinessHours struct {
	name     string
	loc      *time.Location
	weekly   domain.WeeklyHours
	holidays []domain.HolidayRule
	anyOpen  bool
}

// New builds a calendar from a snapshot.
func New(snapshot *domain.CalendarSnapshot) (*BusinessHours, error) {
	if snapshot == nil {
		return nil, apperrors.NewConfigurationError("business hours calendar required", nil)
	}
	loc, err := time.LoadLocation(snapshot.Timezone)
	if err != nil {
		return nil, apperrors.NewConfigurationError("unknown timezone",
			map[string]any{"timezone": snapshot.Timezone, "schedule_id": snapshot.ScheduleID})
	}
	anyOpen := false
	for day, window := range snapshot.Weekly {
		if err := window.Validate(); err != nil {
			return nil, apperrors.NewConfigurationError(fmt.Sprintf("invalid %s window: %v", day, err),
				map[string]any{"schedule_id": snapshot.ScheduleID})
		}
		anyOpen = anyOpen || window.Length() > 0
	}
	return &BusinessHours{
		name:     snapshot.Name,
		loc:      loc,
		weekly:   snapshot.Weekly,
		holidays: snapshot.Holidays,
		anyOpen:  anyOpen,
	}, nil
}

// FromSchedule builds a calendar from a live schedule and its holidays.
func FromSchedule(schedule *domain.BusinessHoursSchedule, holidays []domain.Holiday) (*BusinessHours, error) {
	return New(domain.SnapshotCalendar(schedule, holidays))
}

// Name returns the schedule name.
func (c *BusinessHours) Name() string {
	return c.name
}

// Location returns the schedule timezone.
func (c *BusinessHours) Location() *time.Location {
	return c.loc
}

// IsHoliday reports whether the local date is excluded.
func (c *BusinessHours) IsHoliday(date domain.CivilDate) bool {
	for _, h := range c.holidays {
		if h.Recurring {
			if h.Date.Month == date.Month && h.Date.Day == date.Day {
				return true
			}
			continue
		}
		if h.Date == date {
			return true
		}
	}
	return false
}

// windowOn returns the open interval for a local date.
func (c *BusinessHours) windowOn(date domain.CivilDate) (time.Time, time.Time, bool) {
	if c.IsHoliday(date) {
		return time.Time{}, time.Time{}, false
	}
	midnight := date.In(c.loc)
	window, ok := c.weekly[midnight.Weekday()]
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	open := time.Date(date.Year, date.Month, date.Day, int(window.Start)/60, int(window.Start)%60, 0, 0, c.loc)
	closeAt := time.Date(date.Year, date.Month, date.Day, int(window.End)/60, int(window.End)%60, 0, 0, c.loc)
	if !closeAt.After(open) {
		return time.Time{}, time.Time{}, false
	}
	return open, closeAt, true
}

// OpenWindow returns the open interval of the local date containing t.
func (c *BusinessHours) OpenWindow(t time.Time) (time.Time, time.Time, bool) {
	return c.windowOn(domain.CivilDateOf(t.In(c.loc)))
}

// OpenDurationOn returns the open time of a local date, zero when closed.
func (c *BusinessHours) OpenDurationOn(date domain.CivilDate) time.Duration {
	open, closeAt, ok := c.windowOn(date)
	if !ok {
		return 0
	}
	return closeAt.Sub(open)
}

// IsOpenAt reports whether t falls inside the open window of its local date.
func (c *BusinessHours) IsOpenAt(t time.Time) bool {
	open, closeAt, ok := c.OpenWindow(t)
	if !ok {
		return false
	}
	return !t.Before(open) && t.Before(closeAt)
}

// NextOpen returns the first open instant at or after t.
func (c *BusinessHours) NextOpen(t time.Time) (time.Time, error) {
	if !c.anyOpen {
		return time.Time{}, c.neverOpen()
	}
	cur := t.In(c.loc)
	for i := 0; i < maxClosedDays; i++ {
		date := domain.CivilDateOf(cur)
		if open, closeAt, ok := c.windowOn(date); ok {
			from := later(cur, open)
			if from.Before(closeAt) {
				return from.In(t.Location()), nil
			}
		}
		cur = nextMidnight(date, c.loc)
	}
	return time.Time{}, c.neverOpen()
}

// AddBusinessDuration walks forward from start consuming open time only and
// returns the instant at which d is exhausted. Every open day consumes time,
// so the walk is bounded by d plus the longest closed stretch.
func (c *BusinessHours) AddBusinessDuration(start time.Time, d time.Duration) (time.Time, error) {
	if d <= 0 {
		return start, nil
	}
	if !c.anyOpen {
		return time.Time{}, c.neverOpen()
	}
	remaining := d
	cur := start.In(c.loc)
	for closed := 0; closed < maxClosedDays; {
		date := domain.CivilDateOf(cur)
		open, closeAt, ok := c.windowOn(date)
		if from := later(cur, open); ok && from.Before(closeAt) {
			closed = 0
			available := closeAt.Sub(from)
			if remaining <= available {
				return from.Add(remaining).In(start.Location()), nil
			}
			remaining -= available
		} else {
			closed++
		}
		cur = nextMidnight(date, c.loc)
	}
	return time.Time{}, c.neverOpen()
}

// BusinessDurationBetween returns the open time inside [a, b).
func (c *BusinessHours) BusinessDurationBetween(a, b time.Time) time.Duration {
	if !b.After(a) {
		return 0
	}
	var total time.Duration
	cur := a.In(c.loc)
	for cur.Before(b) {
		date := domain.CivilDateOf(cur)
		if open, closeAt, ok := c.windowOn(date); ok {
			from := later(cur, open)
			to := earlier(b, closeAt)
			if to.After(from) {
				total += to.Sub(from)
			}
		}
		cur = nextMidnight(date, c.loc)
	}
	return total
}

func (c *BusinessHours) neverOpen() error {
	return apperrors.NewConfigurationError("business hours schedule has no open time", map[string]any{"schedule": c.name})
}

func nextMidnight(date domain.CivilDate, loc *time.Location) time.Time {
	return time.Date(date.Year, date.Month, date.Day+1, 0, 0, 0, 0, loc)
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlier(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
