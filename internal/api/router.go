package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/auth"
	"github.com/hackgods/clinic-appointments/internal/metrics"
	"github.com/hackgods/clinic-appointments/internal/users"
)

type RouterConfig struct {
	Service     *appointment.Service
	Users       users.Directory
	Tokens      *auth.TokenManager
	Health      *HealthHandler
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
	Logger      *zap.Logger
	CORSOrigins []string
	RateLimit   int // requests per second per IP, 0 disables
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger, cfg.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	health := cfg.Health
	if health == nil {
		health = NewHealthHandler("", "")
	}
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	h := NewHandler(cfg.Service, cfg.Users, logger)
	doctor := RequireRole(logger, users.RoleDoctor)
	patient := RequireRole(logger, users.RolePatient)

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimit > 0 {
			r.Use(httprate.Limit(cfg.RateLimit, time.Second,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
						MessageKey: "request.rate_limited",
						RequestID:  GetRequestID(r.Context()),
					})
				}),
			))
		}
		r.Use(Authenticate(cfg.Tokens, logger))

		r.With(doctor).Post("/availability", h.AddAvailability)
		r.Get("/doctors/{doctorID}/available-slots", h.AvailableSlots)

		r.With(patient).Post("/bookings", h.Book)
		r.With(patient).Get("/bookings/mine", h.MyBookings)
		r.With(patient).Delete("/bookings/{bookingID}", h.Cancel)
		r.With(doctor).Put("/bookings/{bookingID}/complete", h.MarkCompleted)

		r.With(doctor).Get("/doctor/bookings", h.DoctorBookings)
		r.With(doctor).Get("/doctor/upcoming", h.Upcoming)
		r.With(doctor).Get("/doctor/stats", h.Stats)

		r.With(RequireRole(logger, users.RoleDoctor, users.RoleAdmin)).
			Get("/patients/{patientID}/bookings", h.PatientHistory)
	})

	return r
}
