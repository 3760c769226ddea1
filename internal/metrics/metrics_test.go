package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveBooking(OutcomeBooked, time.Millisecond)
		m.AddSweep(1, 2)
		m.ObserveNotification(nil)
		m.ObserveHTTP("GET", "/x", 200, time.Millisecond)
	})
}

func TestRecorders(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveBooking(OutcomeBooked, 10*time.Millisecond)
	m.ObserveBooking(OutcomeOverlap, 5*time.Millisecond)
	m.ObserveBooking(OutcomeOverlap, 5*time.Millisecond)
	m.AddSweep(3, 1)
	m.ObserveNotification(errors.New("broker down"))
	m.ObserveHTTP("POST", "/api/v1/bookings", 409, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.bookings.WithLabelValues(OutcomeBooked)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.bookings.WithLabelValues(OutcomeOverlap)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.sweepTransitions.WithLabelValues("window_expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", "/api/v1/bookings", "4xx")))
}
