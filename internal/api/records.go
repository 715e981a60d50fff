package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/hackgods/turnos-scheduling/internal/appointment"
)

func createPatientHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreatePatientRequest
		if !decodeRequest(w, r, &req) {
			return
		}

		p, err := svc.CreatePatient(r.Context(), appointment.NewPatient{
			Name:           req.Name,
			Phone:          req.Phone,
			ContactChannel: appointment.ContactChannel(req.ContactChannel),
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toPatientResponse(p))
	}
}

func getPatientHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		p, err := svc.GetPatient(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toPatientResponse(p))
	}
}

func listPatientsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := queryInt(w, r, "limit")
		if !ok {
			return
		}
		offset, ok := queryInt(w, r, "offset")
		if !ok {
			return
		}

		list, err := svc.ListPatients(r.Context(), limit, offset)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, newListResponse(list, toPatientResponse))
	}
}

func setPatientActiveHandler(svc *appointment.Service, active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		p, err := svc.SetPatientActive(r.Context(), id, active)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toPatientResponse(p))
	}
}

func createProfessionalHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateProfessionalRequest
		if !decodeRequest(w, r, &req) {
			return
		}

		p, err := svc.CreateProfessional(r.Context(), appointment.NewProfessional{
			Name:        req.Name,
			Specialty:   req.Specialty,
			SlotMinutes: req.SlotMinutes,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toProfessionalResponse(p))
	}
}

func getProfessionalHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		p, err := svc.GetProfessional(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toProfessionalResponse(p))
	}
}

func listProfessionalsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := queryInt(w, r, "limit")
		if !ok {
			return
		}
		offset, ok := queryInt(w, r, "offset")
		if !ok {
			return
		}

		list, err := svc.ListProfessionals(r.Context(), limit, offset)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, newListResponse(list, toProfessionalResponse))
	}
}

func setProfessionalActiveHandler(svc *appointment.Service, active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		p, err := svc.SetProfessionalActive(r.Context(), id, active)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toProfessionalResponse(p))
	}
}

func createScheduleBlockHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateScheduleBlockRequest
		if !decodeRequest(w, r, &req) {
			return
		}

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

		b, err := svc.CreateScheduleBlock(r.Context(), appointment.NewScheduleBlock{
			ProfessionalID: professionalID,
			Start:          start,
			End:            end,
			Reason:         req.Reason,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toScheduleBlockResponse(b))
	}
}

func getScheduleBlockHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		b, err := svc.GetScheduleBlock(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toScheduleBlockResponse(b))
	}
}

func listScheduleBlocksHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		professionalID, ok := queryUUID(w, r, "professional_id")
		if !ok {
			return
		}
		limit, ok := queryInt(w, r, "limit")
		if !ok {
			return
		}

		list, err := svc.ListScheduleBlocks(r.Context(), professionalID, limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, newListResponse(list, toScheduleBlockResponse))
	}
}
