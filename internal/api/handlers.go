package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/hackgods/turnos-scheduling/internal/appointment"
)

func bookAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if !decodeRequest(w, r, &req) {
			return
		}

		patientID := uuid.MustParse(req.PatientID)
		professionalID := uuid.MustParse(req.ProfessionalID)

		start, ok := parseInstant(req.Start)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_start", "start must be an RFC 3339 instant")
			return
		}
		end, ok := parseInstant(req.End)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_end", "end must be an RFC 3339 instant")
			return
		}

		appt, err := svc.BookAppointment(r.Context(), appointment.BookingRequest{
			PatientID:      patientID,
			ProfessionalID: professionalID,
			Start:          start,
			End:            end,
			AutoConfirm:    req.AutoConfirm,
			Actor:          GetActor(r.Context()),
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			f  appointment.ListFilter
			ok bool
		)
		if f.ProfessionalID, ok = queryUUID(w, r, "professional_id"); !ok {
			return
		}
		if f.PatientID, ok = queryUUID(w, r, "patient_id"); !ok {
			return
		}
		if f.RangeStart, ok = queryInstant(w, r, "range_start"); !ok {
			return
		}
		if f.RangeEnd, ok = queryInstant(w, r, "range_end"); !ok {
			return
		}
		if f.ActiveOnly, ok = queryBool(w, r, "active_only"); !ok {
			return
		}
		if f.Limit, ok = queryInt(w, r, "limit"); !ok {
			return
		}

		list, err := svc.ListAppointments(r.Context(), f)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, newListResponse(list, toAppointmentResponse))
	}
}

// applyEventHandler serves one lifecycle event. lapse is never routed here;
// only the expiry sweep applies it.
func applyEventHandler(svc *appointment.Service, ev appointment.Event) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		appt, err := svc.ApplyEvent(r.Context(), id, ev, GetActor(r.Context()))
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listStatusesHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		refs := svc.ListStatuses()
		writeJSON(w, http.StatusOK, ListResponse[appointment.StatusRef]{Items: refs, Count: len(refs)})
	}
}
