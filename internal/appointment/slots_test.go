package appointment

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/hackgods/clinic-appointments/internal/interval"
)

func TestGenerateSlots(t *testing.T) {
	doctor := uuid.New()
	date := day(1)

	window := func(start, end string) AvailabilityWindow {
		return AvailabilityWindow{DoctorID: doctor, Date: date, Start: tod(t, start), End: tod(t, end), Status: WindowAvailable}
	}
	booking := func(start, end string, status BookingStatus) Booking {
		return Booking{DoctorID: doctor, Date: date, Start: tod(t, start), End: tod(t, end), Status: status}
	}

	tests := []struct {
		name     string
		windows  []AvailabilityWindow
		bookings []Booking
		want     []string
	}{
		{
			name:    "no windows",
			windows: nil,
			want:    []string{},
		},
		{
			name:    "hour window without bookings",
			windows: []AvailabilityWindow{window("09:00", "10:00")},
			want:    []string{"09:00-09:20", "09:20-09:40", "09:40-10:00"},
		},
		{
			name:     "booked middle slot removed",
			windows:  []AvailabilityWindow{window("09:00", "10:00")},
			bookings: []Booking{booking("09:20", "09:40", BookingBooked)},
			want:     []string{"09:00-09:20", "09:40-10:00"},
		},
		{
			name:     "misaligned booking removes both neighbours",
			windows:  []AvailabilityWindow{window("09:00", "10:00")},
			bookings: []Booking{booking("09:10", "09:30", BookingBooked)},
			want:     []string{"09:40-10:00"},
		},
		{
			name:     "completed booking still blocks",
			windows:  []AvailabilityWindow{window("09:00", "09:40")},
			bookings: []Booking{booking("09:00", "09:20", BookingCompleted)},
			want:     []string{"09:20-09:40"},
		},
		{
			name:    "short window yields nothing",
			windows: []AvailabilityWindow{window("09:00", "09:15")},
			want:    []string{},
		},
		{
			name:    "overlapping windows are not merged",
			windows: []AvailabilityWindow{window("09:00", "09:40"), window("09:20", "10:00")},
			want:    []string{"09:00-09:20", "09:20-09:40", "09:20-09:40", "09:40-10:00"},
		},
		{
			name:    "window order then chronological",
			windows: []AvailabilityWindow{window("14:00", "14:40"), window("09:00", "09:20")},
			want:    []string{"14:00-14:20", "14:20-14:40", "09:00-09:20"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateSlots(tt.windows, tt.bookings, 20*time.Minute)
			assert.Equal(t, tt.want, slotStrings(got))
			for _, s := range got {
				assert.Equal(t, doctor, s.DoctorID)
				assert.Equal(t, date, s.Date)
			}
		})
	}
}

func TestGenerateSlotsContainmentAndNoOverlap(t *testing.T) {
	doctor := uuid.New()
	date := day(2)

	windows := []AvailabilityWindow{
		{DoctorID: doctor, Date: date, Start: tod(t, "08:00"), End: tod(t, "12:10")},
		{DoctorID: doctor, Date: date, Start: tod(t, "11:30"), End: tod(t, "13:00")},
		{DoctorID: doctor, Date: date, Start: tod(t, "15:05"), End: tod(t, "17:00")},
	}
	bookings := []Booking{
		{DoctorID: doctor, Date: date, Start: tod(t, "08:20"), End: tod(t, "08:40")},
		{DoctorID: doctor, Date: date, Start: tod(t, "11:50"), End: tod(t, "12:30")},
		{DoctorID: doctor, Date: date, Start: tod(t, "16:00"), End: tod(t, "16:05")},
	}

	slots := GenerateSlots(windows, bookings, 20*time.Minute)
	assert.NotEmpty(t, slots)

	for _, s := range slots {
		candidate := interval.New(s.Start, s.End)

		contained := false
		for _, w := range windows {
			if w.Interval().Contains(candidate) {
				contained = true
				break
			}
		}
		assert.True(t, contained, "slot %s outside every window", candidate)

		for _, b := range bookings {
			assert.False(t, interval.Overlaps(candidate, b.Interval()), "slot %s overlaps booking %s", candidate, b.Interval())
		}
	}
}
