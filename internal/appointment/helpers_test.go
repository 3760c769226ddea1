package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointments/internal/interval"
	"github.com/hackgods/clinic-appointments/internal/notify"
	"github.com/hackgods/clinic-appointments/internal/users"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return n.err
}

func (n *recordingNotifier) Messages() []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.Message, len(n.msgs))
	copy(out, n.msgs)
	return out
}

// fixture is a service over memory stores with one doctor and two patients.
type fixture struct {
	svc      *Service
	repo     *MemoryRepository
	dir      *users.MemoryDirectory
	clock    *fakeClock
	notifier *recordingNotifier

	doctor   *users.User
	patient  *users.User
	patient2 *users.User
}

// 2026-03-10 14:30 clinic time
var fixtureNow = time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		repo:     NewMemoryRepository(),
		dir:      users.NewMemoryDirectory(),
		clock:    newFakeClock(fixtureNow),
		notifier: &recordingNotifier{},
	}

	addr := "1 Clinic Road"
	var err error
	f.doctor, err = f.dir.Create(ctx, users.User{Name: "Dr. Grey", Email: "grey@clinic.test", Role: users.RoleDoctor, ClinicAddress: &addr})
	require.NoError(t, err)
	f.patient, err = f.dir.Create(ctx, users.User{Name: "Pat One", Email: "one@patients.test", Role: users.RolePatient})
	require.NoError(t, err)
	f.patient2, err = f.dir.Create(ctx, users.User{Name: "Pat Two", Email: "two@patients.test", Role: users.RolePatient})
	require.NoError(t, err)

	f.svc = NewService(Deps{
		Repo:     f.repo,
		Users:    f.dir,
		Notifier: f.notifier,
		Clock:    f.clock,
	})
	return f
}

func tod(t *testing.T, raw string) interval.TimeOfDay {
	t.Helper()
	v, err := interval.ParseTimeOfDay(raw)
	require.NoError(t, err)
	return v
}

func day(offset int) time.Time {
	return interval.DateOf(fixtureNow).AddDate(0, 0, offset)
}

func (f *fixture) addWindow(t *testing.T, date time.Time, start, end string) *AvailabilityWindow {
	t.Helper()
	w, err := f.svc.AddAvailability(context.Background(), f.doctor.ID, date, tod(t, start), tod(t, end))
	require.NoError(t, err)
	return w
}

func (f *fixture) book(t *testing.T, patientID uuid.UUID, date time.Time, start, end string) (*Booking, error) {
	t.Helper()
	return f.svc.Book(context.Background(), BookRequest{
		DoctorID:  f.doctor.ID,
		PatientID: patientID,
		Date:      date,
		Start:     tod(t, start),
		End:       tod(t, end),
	})
}

func slotStrings(slots []Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Start.String()+"-"+s.End.String())
	}
	return out
}

// passthroughLocker provides no mutual exclusion.
type passthroughLocker struct{}

func (passthroughLocker) WithLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// unguardedRepo inserts bookings without any overlap check of its own and
// pauses before each insert, so only the caller's serialization prevents
// double booking. With noUnit set, WithDoctorDay serializes nothing either.
type unguardedRepo struct {
	*MemoryRepository
	noUnit bool
}

func (r *unguardedRepo) WithDoctorDay(ctx context.Context, doctorID uuid.UUID, date time.Time, fn func(ctx context.Context) error) error {
	if r.noUnit {
		return fn(ctx)
	}
	return r.MemoryRepository.WithDoctorDay(ctx, doctorID, date, fn)
}

func (r *unguardedRepo) CreateBooking(_ context.Context, b Booking) (*Booking, error) {
	time.Sleep(5 * time.Millisecond)

	r.mu.Lock()
	defer r.mu.Unlock()

	b.ID = uuid.New()
	b.Date = interval.DateOf(b.Date)
	if b.Status == "" {
		b.Status = BookingBooked
	}
	now := r.now()
	b.CreatedAt, b.UpdatedAt = now, now
	r.bookings[b.ID] = b
	return &b, nil
}

type raceResult struct {
	successes int
	overlaps  int
	others    []error
}

// race fires workers concurrent bookings of [start, end) on date, released together.
func race(t *testing.T, svc *Service, doctorID uuid.UUID, patients []uuid.UUID, date time.Time, start, end string, workers int) raceResult {
	t.Helper()

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		res raceResult
	)
	gate := make(chan struct{})
	for i := 0; i < workers; i++ {
		req := BookRequest{
			DoctorID:  doctorID,
			PatientID: patients[i%len(patients)],
			Date:      date,
			Start:     tod(t, start),
			End:       tod(t, end),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-gate
			_, err := svc.Book(context.Background(), req)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				res.successes++
			case errors.Is(err, ErrOverlap):
				res.overlaps++
			default:
				res.others = append(res.others, err)
			}
		}()
	}
	close(gate)
	wg.Wait()
	return res
}
