package appointment

import (
	"time"

	"github.com/hackgods/clinic-appointments/internal/interval"
)

// GenerateSlots subdivides each window into granularity-sized candidates and
// drops those overlapping any booking. Windows are not merged, so
// overlapping windows may yield the same slot twice. Booking status is
// ignored: a completed booking still blocks its interval.
func GenerateSlots(windows []AvailabilityWindow, bookings []Booking, granularity time.Duration) []Slot {
	if len(windows) == 0 {
		return []Slot{}
	}

	taken := make([]interval.Interval, 0, len(bookings))
	for _, b := range bookings {
		taken = append(taken, b.Interval())
	}

	slots := []Slot{}
	for _, w := range windows {
		for _, candidate := range interval.Subdivide(w.Interval(), granularity) {
			if interval.OverlapsAny(candidate, taken) {
				continue
			}
			slots = append(slots, Slot{
				DoctorID: w.DoctorID,
				Date:     w.Date,
				Start:    candidate.Start,
				End:      candidate.End,
			})
		}
	}
	return slots
}
