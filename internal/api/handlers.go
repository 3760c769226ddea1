package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/apperr"
	"github.com/hackgods/clinic-appointments/internal/auth"
	"github.com/hackgods/clinic-appointments/internal/interval"
	"github.com/hackgods/clinic-appointments/internal/users"
)

const (
	keySlotAdded       = "appointment.slot.added"
	keySlotsListed     = "appointment.slots.success"
	keyBooked          = "appointment.booked.success"
	keyCancelled       = "appointment.cancel.success"
	keyCompleted       = "appointment.completed.success"
	keyBookingsListed  = "appointment.list.success"
	keyUpcomingListed  = "doctor.upcoming_appointments.success"
	keyHistoryListed   = "patient.history.success"
	maxRequestBodySize = 1 << 20
)

type Handler struct {
	svc      *appointment.Service
	users    users.Directory
	logger   *zap.Logger
	validate *validator.Validate
}

func NewHandler(svc *appointment.Service, dir users.Directory, logger *zap.Logger) *Handler {
	return &Handler{
		svc:      svc,
		users:    dir,
		logger:   logger,
		validate: newValidator(),
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, h.logger, err)
}

// caller resolves the authenticated user from the token's email.
func (h *Handler) caller(r *http.Request) (*users.User, error) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		return nil, auth.ErrTokenMissing
	}

	u, err := h.users.FindByEmail(r.Context(), claims.Email)
	if err != nil {
		if !errors.Is(err, users.ErrUserNotFound) {
			return nil, apperr.Storage(fmt.Errorf("resolve caller: %w", err))
		}
		switch claims.Role {
		case users.RoleDoctor:
			return nil, appointment.ErrDoctorNotFound
		case users.RolePatient:
			return nil, appointment.ErrPatientNotFound
		default:
			return nil, auth.ErrTokenInvalid
		}
	}

	if u.Role != claims.Role {
		return nil, auth.ErrRoleRestricted
	}
	return u, nil
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return errBodyInvalid.Wrap(err)
	}
	if err := h.validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func pathID(r *http.Request, name string, notFound *apperr.Error) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, notFound.Wrap(err)
	}
	return id, nil
}

// parseWindow reads the date and the two times shared by the availability
// and booking requests. Fields have already passed validation.
func parseWindow(date, start, end string) (d timeArgs, err error) {
	if d.date, err = interval.ParseDate(date); err != nil {
		return d, errDateInvalid.Wrap(err)
	}
	if d.start, err = interval.ParseTimeOfDay(start); err != nil {
		return d, errTimeInvalid.Wrap(err)
	}
	if d.end, err = interval.ParseTimeOfDay(end); err != nil {
		return d, errTimeInvalid.Wrap(err)
	}
	return d, nil
}

func (h *Handler) AddAvailability(w http.ResponseWriter, r *http.Request) {
	doctor, err := h.caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req AddAvailabilityRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	args, err := parseWindow(req.Date, req.StartTime, req.EndTime)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	window, err := h.svc.AddAvailability(r.Context(), doctor.ID, args.date, args.start, args.end)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, WindowCreatedResponse{
		MessageKey: keySlotAdded,
		Window:     toWindowResponse(*window),
	})
}

func (h *Handler) AvailableSlots(w http.ResponseWriter, r *http.Request) {
	doctorID, err := pathID(r, "doctorID", appointment.ErrDoctorNotFound)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	raw := r.URL.Query().Get("date")
	if raw == "" {
		h.fail(w, r, errDateRequired)
		return
	}
	date, err := interval.ParseDate(raw)
	if err != nil {
		h.fail(w, r, errDateInvalid.Wrap(err))
		return
	}

	slots, err := h.svc.AvailableSlots(r.Context(), doctorID, date)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := SlotsResponse{Date: interval.FormatDate(date), Slots: make([]SlotResponse, 0, len(slots))}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, SlotResponse{
			DoctorID:  s.DoctorID,
			Date:      interval.FormatDate(s.Date),
			StartTime: s.Start.String(),
			EndTime:   s.End.String(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	patient, err := h.caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req BookRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		h.fail(w, r, appointment.ErrDoctorNotFound.Wrap(err))
		return
	}

	args, err := parseWindow(req.Date, req.StartTime, req.EndTime)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	booking, err := h.svc.Book(r.Context(), appointment.BookRequest{
		DoctorID:  doctorID,
		PatientID: patient.ID,
		Date:      args.date,
		Start:     args.start,
		End:       args.end,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, BookingCreatedResponse{
		MessageKey: keyBooked,
		Booking:    toBookingResponse(*booking),
	})
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	patient, err := h.caller(r)
	if err != nil {
		// an unknown patient owns nothing
		if errors.Is(err, appointment.ErrPatientNotFound) {
			err = appointment.ErrNotFoundOrUnauthorized
		}
		h.fail(w, r, err)
		return
	}

	bookingID, err := pathID(r, "bookingID", appointment.ErrNotFoundOrUnauthorized)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.svc.Cancel(r.Context(), bookingID, patient.ID); err != nil {
		h.fail(w, r, err)
		return
	}

	writeMessage(w, http.StatusOK, keyCancelled)
}

func (h *Handler) MarkCompleted(w http.ResponseWriter, r *http.Request) {
	if _, err := h.caller(r); err != nil {
		h.fail(w, r, err)
		return
	}

	bookingID, err := pathID(r, "bookingID", appointment.ErrBookingNotFound)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	booking, err := h.svc.MarkCompleted(r.Context(), bookingID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, BookingCreatedResponse{
		MessageKey: keyCompleted,
		Booking:    toBookingResponse(*booking),
	})
}

func (h *Handler) MyBookings(w http.ResponseWriter, r *http.Request) {
	patient, err := h.caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	views, err := h.svc.PatientBookings(r.Context(), patient.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, BookingsResponse{
		MessageKey:   keyBookingsListed,
		Appointments: toBookingResponses(views),
	})
}

func (h *Handler) DoctorBookings(w http.ResponseWriter, r *http.Request) {
	doctor, err := h.caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	views, err := h.svc.DoctorBookings(r.Context(), doctor.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, BookingsResponse{
		MessageKey:   keyBookingsListed,
		Appointments: toBookingResponses(views),
	})
}

func (h *Handler) Upcoming(w http.ResponseWriter, r *http.Request) {
	doctor, err := h.caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	views, err := h.svc.UpcomingForDoctor(r.Context(), doctor.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, BookingsResponse{
		MessageKey:   keyUpcomingListed,
		Appointments: toBookingResponses(views),
	})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	doctor, err := h.caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	stats, err := h.svc.DoctorStats(r.Context(), doctor.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := StatsResponse{
		TotalPatients:         stats.TotalPatients,
		CompletedAppointments: stats.CompletedAppointments,
		SlotsThisWeek:         stats.SlotsThisWeek,
		WeeklySlots:           make([]WindowResponse, 0, len(stats.WeeklySlots)),
	}
	for _, win := range stats.WeeklySlots {
		resp.WeeklySlots = append(resp.WeeklySlots, toWindowResponse(win))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) PatientHistory(w http.ResponseWriter, r *http.Request) {
	if _, err := h.caller(r); err != nil {
		h.fail(w, r, err)
		return
	}

	patientID, err := pathID(r, "patientID", appointment.ErrPatientNotFound)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	patient, err := h.users.FindByID(r.Context(), patientID)
	switch {
	case errors.Is(err, users.ErrUserNotFound):
		h.fail(w, r, appointment.ErrPatientNotFound)
		return
	case err != nil:
		h.fail(w, r, apperr.Storage(fmt.Errorf("load patient: %w", err)))
		return
	case patient.Role != users.RolePatient:
		h.fail(w, r, appointment.ErrPatientNotFound)
		return
	}

	views, err := h.svc.PatientHistory(r.Context(), patientID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, BookingsResponse{
		MessageKey:   keyHistoryListed,
		Appointments: toBookingResponses(views),
	})
}
