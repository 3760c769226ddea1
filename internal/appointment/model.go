package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointments/internal/interval"
)

type WindowStatus string

const (
	WindowAvailable WindowStatus = "available"
	WindowExpired   WindowStatus = "expired"
)

func (s WindowStatus) Valid() bool {
	return s == WindowAvailable || s == WindowExpired
}

type BookingStatus string

const (
	BookingBooked    BookingStatus = "booked"
	BookingCompleted BookingStatus = "completed"
	// BookingCancelled is part of the stored enum but never written:
	// cancellation deletes the row.
	BookingCancelled BookingStatus = "cancelled"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingBooked, BookingCompleted, BookingCancelled:
		return true
	}
	return false
}

// AvailabilityWindow is a block of time a doctor declared bookable.
type AvailabilityWindow struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	Date      time.Time
	Start     interval.TimeOfDay
	End       interval.TimeOfDay
	Status    WindowStatus
	CreatedAt time.Time
}

func (w AvailabilityWindow) Interval() interval.Interval {
	return interval.New(w.Start, w.End)
}

type Booking struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Date      time.Time
	Start     interval.TimeOfDay
	End       interval.TimeOfDay
	Status    BookingStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (b Booking) Interval() interval.Interval {
	return interval.New(b.Start, b.End)
}

// Slot is a bookable interval derived from a window. It is never stored.
type Slot struct {
	DoctorID uuid.UUID
	Date     time.Time
	Start    interval.TimeOfDay
	End      interval.TimeOfDay
}

// BookingView is a booking with the counterpart names resolved.
type BookingView struct {
	Booking
	DoctorName  string
	PatientName string
}

type DoctorStats struct {
	TotalPatients         int
	CompletedAppointments int
	SlotsThisWeek         int
	WeeklySlots           []AvailabilityWindow
}

type SweepResult struct {
	ExpiredWindows    int
	CompletedBookings int
}

type EventLog struct {
	ID         int64
	EventType  string
	EntityType string
	EntityID   *uuid.UUID
	Payload    []byte
	CreatedAt  time.Time
}
