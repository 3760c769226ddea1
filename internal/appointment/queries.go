package appointment

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointments/internal/apperr"
	"github.com/hackgods/clinic-appointments/internal/interval"
)

func (s *Service) listViews(ctx context.Context, f BookingFilter) ([]BookingView, error) {
	bookings, err := s.repo.ListBookings(ctx, f)
	if err != nil {
		return nil, apperr.Storage(fmt.Errorf("list bookings: %w", err))
	}

	seen := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID
	for _, b := range bookings {
		for _, id := range []uuid.UUID{b.DoctorID, b.PatientID} {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}

	people, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Storage(fmt.Errorf("resolve names: %w", err))
	}

	views := make([]BookingView, 0, len(bookings))
	for _, b := range bookings {
		views = append(views, BookingView{
			Booking:     b,
			DoctorName:  people[b.DoctorID].Name,
			PatientName: people[b.PatientID].Name,
		})
	}
	return views, nil
}

// PatientBookings lists a patient's own bookings in chronological order.
func (s *Service) PatientBookings(ctx context.Context, patientID uuid.UUID) ([]BookingView, error) {
	return s.listViews(ctx, BookingFilter{PatientID: patientID})
}

// PatientHistory lists every booking of a patient, newest first.
func (s *Service) PatientHistory(ctx context.Context, patientID uuid.UUID) ([]BookingView, error) {
	return s.listViews(ctx, BookingFilter{PatientID: patientID, Order: OrderNewestFirst})
}

func (s *Service) DoctorBookings(ctx context.Context, doctorID uuid.UUID) ([]BookingView, error) {
	return s.listViews(ctx, BookingFilter{DoctorID: doctorID})
}

// UpcomingForDoctor sweeps, then lists the doctor's bookings dated today or later.
func (s *Service) UpcomingForDoctor(ctx context.Context, doctorID uuid.UUID) ([]BookingView, error) {
	now := s.clock.Now()
	if _, err := s.Sweep(ctx, now); err != nil {
		return nil, err
	}
	return s.listViews(ctx, BookingFilter{DoctorID: doctorID, From: interval.Today(now)})
}

// DoctorStats sweeps, then summarises the doctor's practice: distinct
// patients, completed bookings and the windows of the coming seven days.
func (s *Service) DoctorStats(ctx context.Context, doctorID uuid.UUID) (*DoctorStats, error) {
	now := s.clock.Now()
	if _, err := s.Sweep(ctx, now); err != nil {
		return nil, err
	}

	bookings, err := s.repo.ListBookings(ctx, BookingFilter{DoctorID: doctorID})
	if err != nil {
		return nil, apperr.Storage(fmt.Errorf("list bookings: %w", err))
	}

	patients := make(map[uuid.UUID]struct{})
	stats := &DoctorStats{}
	for _, b := range bookings {
		patients[b.PatientID] = struct{}{}
		if b.Status == BookingCompleted {
			stats.CompletedAppointments++
		}
	}
	stats.TotalPatients = len(patients)

	today := interval.Today(now)
	windows, err := s.repo.ListWindows(ctx, WindowFilter{
		DoctorID: doctorID,
		From:     today,
		To:       today.AddDate(0, 0, statsHorizonDays-1),
	})
	if err != nil {
		return nil, apperr.Storage(fmt.Errorf("list windows: %w", err))
	}
	stats.SlotsThisWeek = len(windows)
	stats.WeeklySlots = windows
	if stats.WeeklySlots == nil {
		stats.WeeklySlots = []AvailabilityWindow{}
	}

	return stats, nil
}
