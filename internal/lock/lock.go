package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointments/internal/interval"
)

var ErrLockNotAcquired = errors.New("lock not acquired")

// Locker guards a critical section per key. Implementations wait for the
// key to become free and return ErrLockNotAcquired once their wait budget
// is spent.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// DoctorDayKey names the critical section shared by all bookings of one
// doctor on one calendar date.
func DoctorDayKey(doctorID uuid.UUID, date time.Time) string {
	return fmt.Sprintf("lock:doctor-day:%s:%s", doctorID, interval.FormatDate(date))
}
