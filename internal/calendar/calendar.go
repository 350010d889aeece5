package calendar

import (
	"errors"
	"fmt"
	"time"
)

// DayFormat is the canonical wire and storage encoding for naive dates.
const DayFormat = "2006-01-02"

// MonthFormat is the canonical encoding for month anchors.
const MonthFormat = "2006-01"

var (
	// ErrInvalidDay indicates that a date string is not a valid YYYY-MM-DD value.
	ErrInvalidDay = errors.New("calendar: invalid day")
	// ErrInvalidMonth indicates that a month string is not a valid YYYY-MM value.
	ErrInvalidMonth = errors.New("calendar: invalid month")
)

// Day is a naive calendar date with no timezone or time-of-day component.
// The zero value is "no day" and is reported by IsZero.
type Day struct {
	t time.Time
}

// NewDay constructs a Day from calendar components. Out-of-range components
// are normalized the way time.Date normalizes them.
func NewDay(year int, month time.Month, day int) Day {
	return Day{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDay parses the canonical YYYY-MM-DD encoding.
func ParseDay(value string) (Day, error) {
	parsed, err := time.Parse(DayFormat, value)
	if err != nil {
		return Day{}, fmt.Errorf("%w: %q", ErrInvalidDay, value)
	}
	return Day{t: parsed}, nil
}

// String returns the canonical YYYY-MM-DD encoding. ParseDay(d.String())
// round-trips losslessly for any non-zero Day.
func (d Day) String() string {
	return d.t.Format(DayFormat)
}

// IsZero reports whether the day is the "no day" zero value.
func (d Day) IsZero() bool {
	return d.t.IsZero()
}

// Previous returns the preceding calendar day, crossing month and year
// boundaries correctly.
func (d Day) Previous() Day {
	return d.AddDays(-1)
}

// Next returns the following calendar day.
func (d Day) Next() Day {
	return d.AddDays(1)
}

// AddDays returns the day offset by the given number of calendar days.
func (d Day) AddDays(offset int) Day {
	return Day{t: d.t.AddDate(0, 0, offset)}
}

// Before reports whether d falls strictly before other.
func (d Day) Before(other Day) bool {
	return d.t.Before(other.t)
}

// After reports whether d falls strictly after other.
func (d Day) After(other Day) bool {
	return d.t.After(other.t)
}

// Equal reports whether both values name the same calendar day.
func (d Day) Equal(other Day) bool {
	return d.t.Equal(other.t)
}

// Compare returns -1, 0 or 1 ordering d against other.
func (d Day) Compare(other Day) int {
	return d.t.Compare(other.t)
}

// DaysBetween returns the number of calendar days from earlier to later.
// The result is negative when later precedes earlier.
func DaysBetween(earlier, later Day) int {
	return int(later.t.Sub(earlier.t) / (24 * time.Hour))
}

// Month anchors a calendar month.
type Month struct {
	year  int
	month time.Month
}

// NewMonth constructs a Month anchor.
func NewMonth(year int, month time.Month) Month {
	normalized := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Month{year: normalized.Year(), month: normalized.Month()}
}

// ParseMonth parses the canonical YYYY-MM encoding.
func ParseMonth(value string) (Month, error) {
	parsed, err := time.Parse(MonthFormat, value)
	if err != nil {
		return Month{}, fmt.Errorf("%w: %q", ErrInvalidMonth, value)
	}
	return Month{year: parsed.Year(), month: parsed.Month()}, nil
}

// MonthOf returns the month containing the provided day.
func MonthOf(day Day) Month {
	return Month{year: day.t.Year(), month: day.t.Month()}
}

// String returns the canonical YYYY-MM encoding.
func (m Month) String() string {
	return time.Date(m.year, m.month, 1, 0, 0, 0, 0, time.UTC).Format(MonthFormat)
}

// Bounds returns the first and last day of the month.
func (m Month) Bounds() (Day, Day) {
	first := NewDay(m.year, m.month, 1)
	last := NewDay(m.year, m.month+1, 0)
	return first, last
}

// Days enumerates every day of the month from the 1st to the last,
// ascending. The count is derived from calendar arithmetic, so February
// yields 28 or 29 days depending on the year.
func (m Month) Days() []Day {
	first, last := m.Bounds()
	days := make([]Day, 0, DaysBetween(first, last)+1)
	for current := first; !current.After(last); current = current.Next() {
		days = append(days, current)
	}
	return days
}

// Clock supplies the wall-clock date. Injecting it keeps day-sensitive
// logic testable.
type Clock interface {
	Today() Day
}

// SystemClock reads the process-local wall clock.
type SystemClock struct{}

// Today returns the current calendar date.
func (SystemClock) Today() Day {
	now := time.Now()
	return NewDay(now.Year(), now.Month(), now.Day())
}

// FixedClock always reports the same day. Intended for tests.
type FixedClock struct {
	Day Day
}

// Today returns the fixed day.
func (c FixedClock) Today() Day {
	return c.Day
}

// IsToday reports whether the day matches the clock's current date.
func IsToday(day Day, clock Clock) bool {
	return day.Equal(clock.Today())
}
