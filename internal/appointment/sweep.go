package appointment

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/apperr"
)

// Sweep expires available windows and completes booked bookings whose end
// lies strictly before now. Rows already moved are left alone, so running it
// again with the same now changes nothing.
func (s *Service) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	expired, err := s.repo.ExpireWindowsEndedBefore(ctx, now)
	if err != nil {
		return SweepResult{}, apperr.Storage(fmt.Errorf("sweep windows: %w", err))
	}

	completed, err := s.repo.CompleteBookingsEndedBefore(ctx, now)
	if err != nil {
		return SweepResult{ExpiredWindows: len(expired)}, apperr.Storage(fmt.Errorf("sweep bookings: %w", err))
	}

	for _, id := range expired {
		s.logEvent(ctx, EventWindowExpired, entityWindow, id, map[string]any{"reason": "sweep"})
	}
	for _, id := range completed {
		s.logEvent(ctx, EventBookingAutoCompleted, entityBooking, id, map[string]any{"reason": "sweep"})
	}

	res := SweepResult{ExpiredWindows: len(expired), CompletedBookings: len(completed)}
	s.metrics.AddSweep(res.ExpiredWindows, res.CompletedBookings)

	if res.ExpiredWindows > 0 || res.CompletedBookings > 0 {
		s.logger.Info("sweep applied",
			zap.Int("expired_windows", res.ExpiredWindows),
			zap.Int("completed_bookings", res.CompletedBookings),
		)
	}

	return res, nil
}
