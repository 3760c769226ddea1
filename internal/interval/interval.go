package interval

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"

	secondsPerDay = 24 * 60 * 60
)

var (
	ErrInvalidTime = errors.New("invalid time of day")
	ErrInvalidDate = errors.New("invalid date")
)

// TimeOfDay is a wall-clock offset from midnight with second precision.
// Valid values are in [0, 24h].
type TimeOfDay int

// Clock builds a TimeOfDay from hours, minutes and seconds.
func Clock(h, m, s int) TimeOfDay {
	return TimeOfDay(h*3600 + m*60 + s)
}

// ParseTimeOfDay accepts "HH:MM" and "HH:MM:SS".
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
	}

	values := make([]int, 3)
	for i, p := range parts {
		if len(p) != 2 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
		}
		values[i] = n
	}

	h, m, s := values[0], values[1], values[2]
	if h < 0 || m < 0 || m > 59 || s < 0 || s > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
	}
	if h > 24 || (h == 24 && (m != 0 || s != 0)) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
	}

	return Clock(h, m, s), nil
}

// TimeOfDayOf returns the wall-clock part of t in t's location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return Clock(h, m, s)
}

// FromDuration converts an offset since midnight. Fractions of a second are truncated.
func FromDuration(d time.Duration) TimeOfDay {
	return TimeOfDay(d / time.Second)
}

func (t TimeOfDay) Duration() time.Duration {
	return time.Duration(t) * time.Second
}

func (t TimeOfDay) Add(d time.Duration) TimeOfDay {
	return t + FromDuration(d)
}

func (t TimeOfDay) Valid() bool {
	return t >= 0 && t <= secondsPerDay
}

// String renders HH:MM, or HH:MM:SS when seconds are present.
func (t TimeOfDay) String() string {
	h := int(t) / 3600
	m := (int(t) % 3600) / 60
	s := int(t) % 60
	if s != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

// Interval is the half-open range [Start, End) on a single calendar date.
type Interval struct {
	Start TimeOfDay
	End   TimeOfDay
}

func New(start, end TimeOfDay) Interval {
	return Interval{Start: start, End: end}
}

// Valid reports whether the interval is non-empty and inside one day.
func (i Interval) Valid() bool {
	return i.Start.Valid() && i.End.Valid() && i.Start < i.End
}

func (i Interval) Duration() time.Duration {
	return (i.End - i.Start).Duration()
}

// Contains reports whether other lies wholly inside i.
func (i Interval) Contains(other Interval) bool {
	return i.Start <= other.Start && other.End <= i.End
}

func (i Interval) String() string {
	return i.Start.String() + "-" + i.End.String()
}

// Overlaps is the half-open overlap test: touching endpoints do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start < b.End && b.Start < a.End
}

// OverlapsAny reports whether candidate overlaps at least one of others.
func OverlapsAny(candidate Interval, others []Interval) bool {
	for _, o := range others {
		if Overlaps(candidate, o) {
			return true
		}
	}
	return false
}

// Subdivide cuts window into consecutive intervals of exactly granularity,
// starting at window.Start. A trailing remainder shorter than granularity
// is dropped.
func Subdivide(window Interval, granularity time.Duration) []Interval {
	step := FromDuration(granularity)
	if step <= 0 || !window.Valid() {
		return nil
	}

	out := make([]Interval, 0, int((window.End-window.Start)/step))
	for start := window.Start; start+step <= window.End; start += step {
		out = append(out, Interval{Start: start, End: start + step})
	}
	return out
}
