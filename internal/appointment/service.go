package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/apperr"
	"github.com/hackgods/clinic-appointments/internal/interval"
	"github.com/hackgods/clinic-appointments/internal/lock"
	"github.com/hackgods/clinic-appointments/internal/metrics"
	"github.com/hackgods/clinic-appointments/internal/notify"
	"github.com/hackgods/clinic-appointments/internal/users"
)

const (
	EventWindowCreated        = "WINDOW_CREATED"
	EventWindowExpired        = "WINDOW_EXPIRED"
	EventBookingCreated       = "BOOKING_CREATED"
	EventBookingCancelled     = "BOOKING_CANCELLED"
	EventBookingCompleted     = "BOOKING_COMPLETED"
	EventBookingAutoCompleted = "BOOKING_AUTO_COMPLETED"

	entityWindow  = "availability_window"
	entityBooking = "booking"

	DefaultGranularity = 20 * time.Minute
	statsHorizonDays   = 7
	unknownAddress     = "N/A"
)

type Deps struct {
	Repo     Repository
	Users    users.Directory
	Locker   lock.Locker
	Notifier notify.Notifier
	Clock    Clock
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	// Granularity is the bookable slot length, DefaultGranularity when zero.
	Granularity time.Duration
}

type Service struct {
	repo        Repository
	users       users.Directory
	locker      lock.Locker
	notifier    notify.Notifier
	clock       Clock
	logger      *zap.Logger
	metrics     *metrics.Metrics
	granularity time.Duration
}

func NewService(d Deps) *Service {
	s := &Service{
		repo:        d.Repo,
		users:       d.Users,
		locker:      d.Locker,
		notifier:    d.Notifier,
		clock:       d.Clock,
		logger:      d.Logger,
		metrics:     d.Metrics,
		granularity: d.Granularity,
	}
	if s.locker == nil {
		s.locker = lock.NewLocalLocker(0)
	}
	if s.clock == nil {
		s.clock = SystemClock{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.granularity <= 0 {
		s.granularity = DefaultGranularity
	}
	return s
}

func (s *Service) Granularity() time.Duration {
	return s.granularity
}

// Today is the current calendar date in the clinic's zone.
func (s *Service) Today() time.Time {
	return interval.Today(s.clock.Now())
}

// lookupRole resolves id and requires role, mapping absence to notFound.
func (s *Service) lookupRole(ctx context.Context, id uuid.UUID, role users.Role, notFound error) (*users.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return nil, notFound
		}
		return nil, apperr.Storage(fmt.Errorf("load user %s: %w", id, err))
	}
	if u.Role != role {
		return nil, notFound
	}
	return u, nil
}

// AddAvailability records a window during which the doctor can be booked.
func (s *Service) AddAvailability(ctx context.Context, doctorID uuid.UUID, date time.Time, start, end interval.TimeOfDay) (*AvailabilityWindow, error) {
	if !interval.New(start, end).Valid() {
		return nil, ErrInvalidInterval
	}
	if _, err := s.lookupRole(ctx, doctorID, users.RoleDoctor, ErrDoctorNotFound); err != nil {
		return nil, err
	}

	w, err := s.repo.CreateWindow(ctx, AvailabilityWindow{
		DoctorID: doctorID,
		Date:     interval.DateOf(date),
		Start:    start,
		End:      end,
		Status:   WindowAvailable,
	})
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, apperr.Storage(fmt.Errorf("create window: %w", err))
	}

	s.logEvent(ctx, EventWindowCreated, entityWindow, w.ID, map[string]any{
		"doctor_id":  doctorID.String(),
		"date":       interval.FormatDate(w.Date),
		"start_time": w.Start.String(),
		"end_time":   w.End.String(),
	})

	return w, nil
}

// AvailableSlots lists the bookable slots of a doctor on date. An unknown
// doctor or a day without windows yields an empty list.
func (s *Service) AvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Slot, error) {
	if _, err := s.Sweep(ctx, s.clock.Now()); err != nil {
		return nil, err
	}

	date = interval.DateOf(date)

	windows, err := s.repo.ListWindows(ctx, WindowFilter{
		DoctorID: doctorID,
		From:     date,
		To:       date,
		Status:   WindowAvailable,
	})
	if err != nil {
		return nil, apperr.Storage(fmt.Errorf("list windows: %w", err))
	}
	if len(windows) == 0 {
		return []Slot{}, nil
	}

	bookings, err := s.repo.ListBookings(ctx, BookingFilter{DoctorID: doctorID, From: date, To: date})
	if err != nil {
		return nil, apperr.Storage(fmt.Errorf("list bookings: %w", err))
	}

	return GenerateSlots(windows, bookings, s.granularity), nil
}

type BookRequest struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Date      time.Time
	Start     interval.TimeOfDay
	End       interval.TimeOfDay
}

// Book reserves [Start, End) with the doctor on Date. The overlap check and
// the insert run under the doctor-day lock and inside the store's doctor-day
// unit of work, so of two concurrent overlapping requests exactly one wins
// and the other gets ErrOverlap.
func (s *Service) Book(ctx context.Context, req BookRequest) (booking *Booking, err error) {
	started := time.Now()
	defer func() {
		s.metrics.ObserveBooking(bookingOutcome(err), time.Since(started))
	}()

	requested := interval.New(req.Start, req.End)
	if !requested.Valid() {
		return nil, ErrInvalidInterval
	}

	date := interval.DateOf(req.Date)
	// only the date is compared; a slot earlier today is still accepted
	if interval.BeforeDate(date, s.Today()) {
		return nil, ErrPastDate
	}

	doctor, err := s.lookupRole(ctx, req.DoctorID, users.RoleDoctor, ErrDoctorNotFound)
	if err != nil {
		return nil, err
	}
	patient, err := s.lookupRole(ctx, req.PatientID, users.RolePatient, ErrPatientNotFound)
	if err != nil {
		return nil, err
	}

	var created *Booking

	err = s.locker.WithLock(ctx, lock.DoctorDayKey(req.DoctorID, date), func(lockCtx context.Context) error {
		return s.repo.WithDoctorDay(lockCtx, req.DoctorID, date, func(txCtx context.Context) error {
			// re-check inside the critical section; a slot listing may be stale
			existing, err := s.repo.ListBookings(txCtx, BookingFilter{DoctorID: req.DoctorID, From: date, To: date})
			if err != nil {
				return fmt.Errorf("load bookings: %w", err)
			}
			for _, b := range existing {
				if interval.Overlaps(b.Interval(), requested) {
					return ErrOverlap
				}
			}

			b, err := s.repo.CreateBooking(txCtx, Booking{
				DoctorID:  req.DoctorID,
				PatientID: req.PatientID,
				Date:      date,
				Start:     req.Start,
				End:       req.End,
				Status:    BookingBooked,
			})
			if err != nil {
				return err
			}

			created = b
			return nil
		})
	})
	if err != nil {
		switch {
		case errors.Is(err, lock.ErrLockNotAcquired), errors.Is(err, context.DeadlineExceeded):
			return nil, ErrBusy.Wrap(err)
		case errors.Is(err, ErrOverlap):
			return nil, ErrOverlap
		}
		// a user removed between lookup and insert surfaces as a typed not-found
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return nil, ae
		}
		return nil, apperr.Storage(fmt.Errorf("book: %w", err))
	}

	s.logEvent(ctx, EventBookingCreated, entityBooking, created.ID, map[string]any{
		"doctor_id":  created.DoctorID.String(),
		"patient_id": created.PatientID.String(),
		"date":       interval.FormatDate(created.Date),
		"start_time": created.Start.String(),
		"end_time":   created.End.String(),
	})

	s.sendConfirmation(ctx, created, doctor, patient)

	return created, nil
}

func bookingOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeBooked
	case errors.Is(err, ErrOverlap):
		return metrics.OutcomeOverlap
	case errors.Is(err, ErrPastDate):
		return metrics.OutcomePastDate
	case errors.Is(err, ErrBusy):
		return metrics.OutcomeBusy
	case apperr.From(err).Kind == apperr.KindStorage:
		return metrics.OutcomeError
	default:
		return metrics.OutcomeInvalid
	}
}

// ConfirmationData is the template data of a booking confirmation.
func ConfirmationData(b *Booking, doctor, patient *users.User) map[string]any {
	address := unknownAddress
	if doctor.ClinicAddress != nil && *doctor.ClinicAddress != "" {
		address = *doctor.ClinicAddress
	}
	return map[string]any{
		"booking_id":     b.ID.String(),
		"patient_name":   patient.Name,
		"doctor_name":    doctor.Name,
		"date":           interval.FormatDate(b.Date),
		"start_time":     b.Start.String(),
		"end_time":       b.End.String(),
		"clinic_address": address,
	}
}

func (s *Service) sendConfirmation(ctx context.Context, b *Booking, doctor, patient *users.User) {
	if s.notifier == nil {
		return
	}

	msg := notify.Message{
		Recipient: patient.Email,
		Subject:   "Appointment Confirmation",
		Template:  notify.TemplateBookingConfirmation,
		Data:      ConfirmationData(b, doctor, patient),
	}

	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.logger.Warn("booking confirmation failed",
			zap.String("booking_id", b.ID.String()),
			zap.Error(err),
		)
	}
}

// Cancel deletes a booking owned by patientID. A missing booking and one
// owned by someone else both yield ErrNotFoundOrUnauthorized.
func (s *Service) Cancel(ctx context.Context, bookingID, patientID uuid.UUID) error {
	deleted, err := s.repo.DeleteBooking(ctx, bookingID, patientID)
	if err != nil {
		if errors.Is(err, ErrNotFoundOrUnauthorized) {
			return ErrNotFoundOrUnauthorized
		}
		return apperr.Storage(fmt.Errorf("cancel booking: %w", err))
	}

	s.logEvent(ctx, EventBookingCancelled, entityBooking, deleted.ID, map[string]any{
		"doctor_id":  deleted.DoctorID.String(),
		"patient_id": deleted.PatientID.String(),
		"date":       interval.FormatDate(deleted.Date),
		"start_time": deleted.Start.String(),
		"end_time":   deleted.End.String(),
		"status":     string(deleted.Status),
	})
	return nil
}

// MarkCompleted sets the booking to completed whatever its current status.
// There is no ownership check here; callers gate it by role.
func (s *Service) MarkCompleted(ctx context.Context, bookingID uuid.UUID) (*Booking, error) {
	updated, err := s.repo.SetBookingStatus(ctx, bookingID, BookingCompleted)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, apperr.Storage(fmt.Errorf("complete booking: %w", err))
	}

	s.logEvent(ctx, EventBookingCompleted, entityBooking, updated.ID, map[string]any{
		"reason": "doctor",
	})
	return updated, nil
}

func (s *Service) logEvent(ctx context.Context, eventType, entityType string, entityID uuid.UUID, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("marshal event payload failed", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	id := entityID
	ev := EventLog{
		EventType:  eventType,
		EntityType: entityType,
		EntityID:   &id,
		Payload:    data,
		CreatedAt:  time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error("insert event log failed",
			zap.String("event", eventType),
			zap.String("entity_id", entityID.String()),
			zap.Error(err),
		)
	}
}
