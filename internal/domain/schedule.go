package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	apperrors "github.com/spec-kit/sla-service/pkg/util/errorutil"
)

// MinutesPerDay bounds TimeOfDay values; 24:00 is a valid closing time.
const MinutesPerDay = 24 * 60

// TimeOfDay is a wall-clock time expressed as minutes since local midnight.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM". "24:00" is accepted as end of day.
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	var hh, mm int
	if _, err := fmt.Sscanf(strings.TrimSpace(value), "%d:%d", &hh, &mm); err != nil {
		return 0, fmt.Errorf("invalid time of day %q", value)
	}
	if hh < 0 || mm < 0 || mm > 59 || hh > 24 || (hh == 24 && mm != 0) {
		return 0, fmt.Errorf("invalid time of day %q", value)
	}
	return TimeOfDay(hh*60 + mm), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Duration returns the offset from midnight.
func (t TimeOfDay) Duration() time.Duration {
	return time.Duration(t) * time.Minute
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// DayWindow is the open interval [Start, End) of a working day.
type DayWindow struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

// Length returns the open duration of the window.
func (w DayWindow) Length() time.Duration {
	return (w.End - w.Start).Duration()
}

// Validate enforces start < end within a single day.
func (w DayWindow) Validate() error {
	if w.Start < 0 || w.End > MinutesPerDay {
		return fmt.Errorf("window %s-%s outside of day", w.Start, w.End)
	}
	if w.Start >= w.End {
		return fmt.Errorf("window start %s must be before end %s", w.Start, w.End)
	}
	return nil
}

// WeeklyHours maps a weekday to its open window; missing days are closed.
type WeeklyHours map[time.Weekday]DayWindow

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday accepts lowercase English day names.
func ParseWeekday(name string) (time.Weekday, error) {
	day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", name)
	}
	return day, nil
}

func (w WeeklyHours) MarshalJSON() ([]byte, error) {
	out := make(map[string]*DayWindow, 7)
	for name, day := range weekdayNames {
		if window, ok := w[day]; ok {
			win := window
			out[name] = &win
		} else {
			out[name] = nil
		}
	}
	return json.Marshal(out)
}

func (w *WeeklyHours) UnmarshalJSON(data []byte) error {
	var raw map[string]*DayWindow
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed := make(WeeklyHours, len(raw))
	for name, window := range raw {
		day, err := ParseWeekday(name)
		if err != nil {
			return err
		}
		if window != nil {
			parsed[day] = *window
		}
	}
	*w = parsed
	return nil
}

// OpenDays returns the configured weekdays in calendar order.
func (w WeeklyHours) OpenDays() []time.Weekday {
	days := make([]time.Weekday, 0, len(w))
	for day := range w {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days
}

// BusinessHoursSchedule is a named weekly schedule in an IANA timezone.
type BusinessHoursSchedule struct {
	ID        string
	OrgID     string
	Name      string
	Timezone  string
	Weekly    WeeklyHours
	IsDefault bool
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks name, timezone and every window.
func (s *BusinessHoursSchedule) Validate() error {
	details := map[string]any{}
	if strings.TrimSpace(s.Name) == "" {
		details["name"] = "required"
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil || strings.TrimSpace(s.Timezone) == "" {
		details["timezone"] = fmt.Sprintf("unknown timezone %q", s.Timezone)
	}
	for day, window := range s.Weekly {
		if err := window.Validate(); err != nil {
			details[strings.ToLower(day.String())] = err.Error()
		}
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid business hours schedule", details)
	}
	return nil
}

// CivilDate is a calendar date without a time or location.
type CivilDate struct {
	Year  int
	Month time.Month
	Day   int
}

const civilDateLayout = "2006-01-02"

// ParseCivilDate parses YYYY-MM-DD.
func ParseCivilDate(value string) (CivilDate, error) {
	t, err := time.Parse(civilDateLayout, strings.TrimSpace(value))
	if err != nil {
		return CivilDate{}, fmt.Errorf("invalid date %q", value)
	}
	return CivilDateOf(t), nil
}

// CivilDateOf returns the date of t in t's own location.
func CivilDateOf(t time.Time) CivilDate {
	y, m, d := t.Date()
	return CivilDate{Year: y, Month: m, Day: d}
}

func (d CivilDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// In returns local midnight of the date in loc.
func (d CivilDate) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d CivilDate) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *CivilDate) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseCivilDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Holiday closes a whole local date on top of the weekly schedule.
type Holiday struct {
	ID          string
	OrgID       string
	ScheduleID  string
	Name        string
	Date        CivilDate
	IsRecurring bool
	Description *string
	CreatedAt   time.Time
}

// Matches reports whether the holiday falls on date.
func (h Holiday) Matches(date CivilDate) bool {
	if h.IsRecurring {
		return h.Date.Month == date.Month && h.Date.Day == date.Day
	}
	return h.Date == date
}

// HolidayRule is the part of a holiday relevant to calendar evaluation.
type HolidayRule struct {
	Date      CivilDate `json:"date"`
	Recurring bool      `json:"recurring"`
}

// CalendarSnapshot freezes a schedule and its holidays at tracking start.
type CalendarSnapshot struct {
	ScheduleID      string        `json:"schedule_id"`
	ScheduleVersion int           `json:"schedule_version"`
	Name            string        `json:"name"`
	Timezone        string        `json:"timezone"`
	Weekly          WeeklyHours   `json:"weekly"`
	Holidays        []HolidayRule `json:"holidays"`
}

// SnapshotCalendar copies the schedule and holidays into a snapshot.
func SnapshotCalendar(schedule *BusinessHoursSchedule, holidays []Holiday) *CalendarSnapshot {
	weekly := make(WeeklyHours, len(schedule.Weekly))
	for day, window := range schedule.Weekly {
		weekly[day] = window
	}
	rules := make([]HolidayRule, 0, len(holidays))
	for _, h := range holidays {
		rules = append(rules, HolidayRule{Date: h.Date, Recurring: h.IsRecurring})
	}
	return &CalendarSnapshot{
		ScheduleID:      schedule.ID,
		ScheduleVersion: schedule.Version,
		Name:            schedule.Name,
		Timezone:        schedule.Timezone,
		Weekly:          weekly,
		Holidays:        rules,
	}
}
