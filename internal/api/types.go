package api

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/apperr"
	"github.com/hackgods/clinic-appointments/internal/interval"
)

var (
	errBodyInvalid  = apperr.Validation("request.body.invalid")
	errDateRequired = apperr.Validation("appointment.date.required")
	errDateInvalid  = apperr.Validation("appointment.date.invalid")
	errTimeInvalid  = apperr.Validation("appointment.time.invalid")
)

type AddAvailabilityRequest struct {
	Date      string `json:"date" validate:"required,date"`
	StartTime string `json:"start_time" validate:"required,timeofday"`
	EndTime   string `json:"end_time" validate:"required,timeofday"`
}

type BookRequest struct {
	DoctorID  string `json:"doctor_id" validate:"required,uuid"`
	Date      string `json:"date" validate:"required,date"`
	StartTime string `json:"start_time" validate:"required,timeofday"`
	EndTime   string `json:"end_time" validate:"required,timeofday"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("date", func(fl validator.FieldLevel) bool {
		_, err := interval.ParseDate(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("timeofday", func(fl validator.FieldLevel) bool {
		_, err := interval.ParseTimeOfDay(fl.Field().String())
		return err == nil
	})
	return v
}

// validationError turns the first failed field into a message key.
func validationError(err error) error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) || len(ves) == 0 {
		return errBodyInvalid.Wrap(err)
	}
	fe := ves[0]
	switch fe.Field() {
	case "Date":
		if fe.Tag() == "required" {
			return errDateRequired.Wrap(err)
		}
		return errDateInvalid.Wrap(err)
	case "StartTime", "EndTime":
		return errTimeInvalid.Wrap(err)
	}
	return errBodyInvalid.Wrap(err)
}

type MessageResponse struct {
	MessageKey string `json:"message_key"`
}

type ErrorResponse struct {
	MessageKey string `json:"message_key"`
	RequestID  string `json:"request_id,omitempty"`
}

type WindowResponse struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	Date      string    `json:"date"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	Status    string    `json:"status"`
}

type WindowCreatedResponse struct {
	MessageKey string         `json:"message_key"`
	Window     WindowResponse `json:"window"`
}

type SlotResponse struct {
	DoctorID  uuid.UUID `json:"doctor_id"`
	Date      string    `json:"date"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
}

type SlotsResponse struct {
	Date  string         `json:"date"`
	Slots []SlotResponse `json:"slots"`
}

type BookingResponse struct {
	ID          uuid.UUID `json:"id"`
	DoctorID    uuid.UUID `json:"doctor_id"`
	PatientID   uuid.UUID `json:"patient_id"`
	DoctorName  string    `json:"doctor_name,omitempty"`
	PatientName string    `json:"patient_name,omitempty"`
	Date        string    `json:"date"`
	StartTime   string    `json:"start_time"`
	EndTime     string    `json:"end_time"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

type BookingCreatedResponse struct {
	MessageKey string          `json:"message_key"`
	Booking    BookingResponse `json:"booking"`
}

type BookingsResponse struct {
	MessageKey   string            `json:"message_key,omitempty"`
	Appointments []BookingResponse `json:"appointments"`
}

type StatsResponse struct {
	TotalPatients         int              `json:"total_patients"`
	CompletedAppointments int              `json:"completed_appointments"`
	SlotsThisWeek         int              `json:"slots_this_week"`
	WeeklySlots           []WindowResponse `json:"weekly_slots"`
}

func toWindowResponse(w appointment.AvailabilityWindow) WindowResponse {
	return WindowResponse{
		ID:        w.ID,
		DoctorID:  w.DoctorID,
		Date:      interval.FormatDate(w.Date),
		StartTime: w.Start.String(),
		EndTime:   w.End.String(),
		Status:    string(w.Status),
	}
}

func toBookingResponse(b appointment.Booking) BookingResponse {
	return BookingResponse{
		ID:        b.ID,
		DoctorID:  b.DoctorID,
		PatientID: b.PatientID,
		Date:      interval.FormatDate(b.Date),
		StartTime: b.Start.String(),
		EndTime:   b.End.String(),
		Status:    string(b.Status),
		CreatedAt: b.CreatedAt,
	}
}

func toBookingResponses(views []appointment.BookingView) []BookingResponse {
	out := make([]BookingResponse, 0, len(views))
	for _, v := range views {
		resp := toBookingResponse(v.Booking)
		resp.DoctorName = v.DoctorName
		resp.PatientName = v.PatientName
		out = append(out, resp)
	}
	return out
}

type timeArgs struct {
	date  time.Time
	start interval.TimeOfDay
	end   interval.TimeOfDay
}
