package interval

import (
	"fmt"
	"time"
)

// ParseDate parses a YYYY-MM-DD calendar date into midnight UTC.
func ParseDate(raw string) (time.Time, error) {
	d, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return d, nil
}

// DateOf returns the calendar date of t (in t's location) as midnight UTC.
// Dates are always carried as midnight UTC so they compare and key cleanly.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a calendar date as YYYY-MM-DD.
func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

// BeforeDate reports whether date a is strictly before date b, ignoring time of day.
func BeforeDate(a, b time.Time) bool {
	return DateOf(a).Before(DateOf(b))
}

// EndedBefore reports whether the interval ending at end on date lies
// strictly in the past relative to now. now is interpreted in its own
// location, which must be the clinic's wall-clock zone.
func EndedBefore(date time.Time, end TimeOfDay, now time.Time) bool {
	today := DateOf(now)
	d := DateOf(date)
	if d.Before(today) {
		return true
	}
	return d.Equal(today) && end < TimeOfDayOf(now)
}

// Today is the calendar date of now in now's location.
func Today(now time.Time) time.Time {
	return DateOf(now)
}
