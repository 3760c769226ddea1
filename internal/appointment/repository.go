package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type WindowFilter struct {
	DoctorID uuid.UUID
	// From and To bound the date inclusively; zero means unbounded.
	From   time.Time
	To     time.Time
	Status WindowStatus // empty matches any status
}

type BookingOrder int

const (
	OrderChronological BookingOrder = iota
	OrderNewestFirst
)

type BookingFilter struct {
	DoctorID  uuid.UUID // uuid.Nil matches any doctor
	PatientID uuid.UUID // uuid.Nil matches any patient
	From      time.Time
	To        time.Time
	Status    BookingStatus
	Order     BookingOrder
}

// Repository contains all storage interactions needed by the service.
type Repository interface {
	// WithDoctorDay runs fn with exclusive write access to the bookings of
	// one doctor on one date. Repository calls made with the ctx passed to
	// fn join the same unit of work, which commits only if fn returns nil.
	WithDoctorDay(ctx context.Context, doctorID uuid.UUID, date time.Time, fn func(ctx context.Context) error) error

	CreateWindow(ctx context.Context, w AvailabilityWindow) (*AvailabilityWindow, error)
	// ListWindows orders by date, start time, then creation.
	ListWindows(ctx context.Context, f WindowFilter) ([]AvailabilityWindow, error)

	// CreateBooking returns ErrOverlap when the interval collides with
	// another booking of the same doctor and date.
	CreateBooking(ctx context.Context, b Booking) (*Booking, error)
	GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error)
	ListBookings(ctx context.Context, f BookingFilter) ([]Booking, error)
	// DeleteBooking removes the booking only when it belongs to patientID.
	DeleteBooking(ctx context.Context, id, patientID uuid.UUID) (*Booking, error)
	SetBookingStatus(ctx context.Context, id uuid.UUID, status BookingStatus) (*Booking, error)

	// Sweep transitions. now carries the clinic's wall clock.
	ExpireWindowsEndedBefore(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	CompleteBookingsEndedBefore(ctx context.Context, now time.Time) ([]uuid.UUID, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
