package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointments/internal/interval"
	"github.com/hackgods/clinic-appointments/internal/lock"
)

// MemoryRepository keeps everything in process. It backs single-instance
// deployments and the test suite. Writes inside WithDoctorDay apply
// immediately; there is no rollback.
type MemoryRepository struct {
	mu       sync.RWMutex
	windows  []AvailabilityWindow
	bookings map[uuid.UUID]Booking
	events   []EventLog
	nextEvID int64

	days *lock.LocalLocker
	now  func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		bookings: make(map[uuid.UUID]Booking),
		days:     lock.NewLocalLocker(0),
		now:      time.Now,
	}
}

func (r *MemoryRepository) WithDoctorDay(ctx context.Context, doctorID uuid.UUID, date time.Time, fn func(ctx context.Context) error) error {
	return r.days.WithLock(ctx, lock.DoctorDayKey(doctorID, date), fn)
}

func (r *MemoryRepository) CreateWindow(_ context.Context, w AvailabilityWindow) (*AvailabilityWindow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if w.Status == "" {
		w.Status = WindowAvailable
	}
	w.Date = interval.DateOf(w.Date)
	w.CreatedAt = r.now()

	r.windows = append(r.windows, w)
	return &w, nil
}

func inDateRange(d, from, to time.Time) bool {
	if !from.IsZero() && d.Before(interval.DateOf(from)) {
		return false
	}
	if !to.IsZero() && d.After(interval.DateOf(to)) {
		return false
	}
	return true
}

func (r *MemoryRepository) ListWindows(_ context.Context, f WindowFilter) ([]AvailabilityWindow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []AvailabilityWindow
	for _, w := range r.windows {
		if w.DoctorID != f.DoctorID || !inDateRange(w.Date, f.From, f.To) {
			continue
		}
		if f.Status != "" && w.Status != f.Status {
			continue
		}
		result = append(result, w)
	}

	// windows are appended in creation order, so a stable sort keeps it as the tie-break
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].Start < result[j].Start
	})
	return result, nil
}

func (r *MemoryRepository) CreateBooking(_ context.Context, b Booking) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b.Date = interval.DateOf(b.Date)
	for _, existing := range r.bookings {
		if existing.DoctorID == b.DoctorID && existing.Date.Equal(b.Date) &&
			interval.Overlaps(existing.Interval(), b.Interval()) {
			return nil, ErrOverlap
		}
	}

	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.Status == "" {
		b.Status = BookingBooked
	}
	now := r.now()
	b.CreatedAt, b.UpdatedAt = now, now

	r.bookings[b.ID] = b
	return &b, nil
}

func (r *MemoryRepository) GetBooking(_ context.Context, id uuid.UUID) (*Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	return &b, nil
}

func (r *MemoryRepository) ListBookings(_ context.Context, f BookingFilter) ([]Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Booking
	for _, b := range r.bookings {
		if f.DoctorID != uuid.Nil && b.DoctorID != f.DoctorID {
			continue
		}
		if f.PatientID != uuid.Nil && b.PatientID != f.PatientID {
			continue
		}
		if !inDateRange(b.Date, f.From, f.To) {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		result = append(result, b)
	}

	sort.Slice(result, func(i, j int) bool {
		a, c := result[i], result[j]
		if f.Order == OrderNewestFirst {
			a, c = c, a
		}
		if !a.Date.Equal(c.Date) {
			return a.Date.Before(c.Date)
		}
		if a.Start != c.Start {
			return a.Start < c.Start
		}
		return a.ID.String() < c.ID.String()
	})
	return result, nil
}

func (r *MemoryRepository) DeleteBooking(_ context.Context, id, patientID uuid.UUID) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok || b.PatientID != patientID {
		return nil, ErrNotFoundOrUnauthorized
	}
	delete(r.bookings, id)
	return &b, nil
}

func (r *MemoryRepository) SetBookingStatus(_ context.Context, id uuid.UUID, status BookingStatus) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	b.Status = status
	b.UpdatedAt = r.now()
	r.bookings[id] = b
	return &b, nil
}

func (r *MemoryRepository) ExpireWindowsEndedBefore(_ context.Context, now time.Time) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []uuid.UUID
	for i := range r.windows {
		w := &r.windows[i]
		if w.Status == WindowAvailable && interval.EndedBefore(w.Date, w.End, now) {
			w.Status = WindowExpired
			ids = append(ids, w.ID)
		}
	}
	return ids, nil
}

func (r *MemoryRepository) CompleteBookingsEndedBefore(_ context.Context, now time.Time) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []uuid.UUID
	for id, b := range r.bookings {
		if b.Status == BookingBooked && interval.EndedBefore(b.Date, b.End, now) {
			b.Status = BookingCompleted
			b.UpdatedAt = r.now()
			r.bookings[id] = b
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextEvID++
	ev.ID = r.nextEvID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.now()
	}
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded event log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]EventLog, len(r.events))
	copy(out, r.events)
	return out
}
