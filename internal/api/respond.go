package api

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"

	"github.com/hackgods/turnos-scheduling/internal/appointment"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// errorCodes names the specific causes callers are likely to branch on.
// Checked in order; the first match wins.
var errorCodes = []struct {
	err  error
	code string
}{
	{appointment.ErrInvalidInterval, "invalid_interval"},
	{appointment.ErrInvalidRange, "invalid_range"},
	{appointment.ErrPatientNotFound, "patient_not_found"},
	{appointment.ErrProfessionalNotFound, "professional_not_found"},
	{appointment.ErrAppointmentNotFound, "appointment_not_found"},
	{appointment.ErrScheduleBlockNotFound, "schedule_block_not_found"},
	{appointment.ErrInactivePatient, "inactive_patient"},
	{appointment.ErrInactiveProfessional, "inactive_professional"},
	{appointment.ErrPatientConflict, "patient_conflict"},
	{appointment.ErrProfessionalConflict, "professional_conflict"},
	{appointment.ErrScheduleBlocked, "schedule_blocked"},
	{appointment.ErrDuplicateStart, "duplicate_start"},
	{appointment.ErrBookingInProgress, "booking_in_progress"},
}

// writeServiceError maps an error kind to its HTTP status. Infrastructure
// failures are reported without details.
func writeServiceError(w http.ResponseWriter, err error) {
	kind := appointment.KindOf(err)

	var status int
	switch kind {
	case appointment.KindInvalidInput:
		status = http.StatusBadRequest
	case appointment.KindNotFound:
		status = http.StatusNotFound
	case appointment.KindPreconditionFailed:
		status = http.StatusConflict
		if errors.Is(err, appointment.ErrInactiveSubject) {
			status = http.StatusUnprocessableEntity
		}
	case appointment.KindIllegalTransition, appointment.KindPersistenceConflict:
		status = http.StatusConflict
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}

	code := kind
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			code = c.code
			break
		}
	}
	writeError(w, status, code, err.Error())
}
