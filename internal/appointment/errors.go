package appointment

import "github.com/hackgods/clinic-appointments/internal/apperr"

var (
	ErrInvalidInterval        = apperr.Validation("appointment.interval.invalid")
	ErrPastDate               = apperr.BusinessRule("appointment.cannot_book_past")
	ErrOverlap                = apperr.BusinessRule("appointment.slot.overlap")
	ErrDoctorNotFound         = apperr.NotFound("doctor.not_found")
	ErrPatientNotFound        = apperr.NotFound("patient.not_found")
	ErrBookingNotFound        = apperr.NotFound("appointment.not_found")
	ErrNotFoundOrUnauthorized = apperr.NotFound("appointment.cancel.not_found_or_unauthorized")
	ErrBusy                   = apperr.Unavailable("appointment.busy")
)
