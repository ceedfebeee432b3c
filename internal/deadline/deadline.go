// Package deadline turns an SLA target into a concrete due instant.
package deadline

import (
	"fmt"
	"time"

	"github.com/spec-kit/sla-service/internal/calendar"
	"github.com/spec-kit/sla-service/internal/domain"
	apperrors "github.com/spec-kit/sla-service/pkg/util/errorutil"
)

// maxClosedDays bounds the consecutive closed days the business-day walk
// crosses between two open days.
const maxClosedDays = 366 * 2

// ComputeDueAt returns the due instant for target measured from start.
// Wall-clock units ignore cal; business units require it.
func ComputeDueAt(start time.Time, target domain.Target, cal calendar.Calendar) (time.Time, error) {
	if target.Value <= 0 {
		return time.Time{}, apperrors.NewConfigurationError("target value must be positive",
			map[string]any{"value": target.Value, "unit": target.Unit})
	}
	switch target.Unit {
	case domain.UnitMinutes:
		return start.Add(time.Duration(target.Value) * time.Minute), nil
	case domain.UnitHours:
		return start.Add(time.Duration(target.Value) * time.Hour), nil
	case domain.UnitDays:
		return start.Add(time.Duration(target.Value) * 24 * time.Hour), nil
	case domain.UnitBusinessHours:
		if cal == nil {
			return time.Time{}, missingCalendar(target)
		}
		return cal.AddBusinessDuration(start, time.Duration(target.Value)*time.Hour)
	case domain.UnitBusinessDays:
		if cal == nil {
			return time.Time{}, missingCalendar(target)
		}
		return addBusinessDays(start, target.Value, cal)
	default:
		return time.Time{}, apperrors.NewConfigurationError(fmt.Sprintf("unknown target unit %q", target.Unit), nil)
	}
}

// TargetDuration is the length of the target on the clock it runs on: open
// time for business units, wall time otherwise. due is the value returned by
// ComputeDueAt for the same start.
func TargetDuration(start, due time.Time, target domain.Target, cal calendar.Calendar) time.Duration {
	if target.Unit.IsBusiness() && cal != nil {
		return cal.BusinessDurationBetween(start, due)
	}
	return due.Sub(start)
}

// Remaining is the time left from at until due on the target's clock.
// Negative once the due instant has passed.
func Remaining(at, due time.Time, unit domain.TargetUnit, cal calendar.Calendar) time.Duration {
	if unit.IsBusiness() && cal != nil {
		if at.After(due) {
			return -cal.BusinessDurationBetween(due, at)
		}
		return cal.BusinessDurationBetween(at, due)
	}
	return due.Sub(at)
}

// addBusinessDays lands on the same offset from the day's open N open days
// later, clamped to that day's close.
func addBusinessDays(start time.Time, days int, cal calendar.Calendar) (time.Time, error) {
	first, err := cal.NextOpen(start)
	if err != nil {
		return time.Time{}, err
	}
	open, _, _ := cal.OpenWindow(first)
	offset := first.Sub(open)

	loc := cal.Location()
	day := first.In(loc)
	for counted, closed := 0, 0; counted < days; {
		if closed > maxClosedDays {
			return time.Time{}, apperrors.NewConfigurationError("business hours schedule has no open days", nil)
		}
		y, m, d := day.Date()
		day = time.Date(y, m, d+1, 12, 0, 0, 0, loc)
		if _, _, ok := cal.OpenWindow(day); ok {
			counted++
			closed = 0
		} else {
			closed++
		}
	}

	dayOpen, dayClose, _ := cal.OpenWindow(day)
	due := dayOpen.Add(offset)
	if due.After(dayClose) {
		due = dayClose
	}
	return due.In(start.Location()), nil
}

func missingCalendar(target domain.Target) error {
	return apperrors.NewConfigurationError(
		fmt.Sprintf("%s target requires a business hours schedule", target.Unit),
		map[string]any{"target": target.String()})
}
