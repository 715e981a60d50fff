package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/turnos-scheduling/internal/appointment"
)

// Instants are accepted as RFC 3339. Values without an offset are read as UTC.

type BookAppointmentRequest struct {
	PatientID      string `json:"patient_id" validate:"required,uuid"`
	ProfessionalID string `json:"professional_id" validate:"required,uuid"`
	Start          string `json:"start" validate:"required"`
	End            string `json:"end" validate:"required"`
	AutoConfirm    bool   `json:"auto_confirm"`
}

type AppointmentResponse struct {
	ID             uuid.UUID  `json:"id"`
	PatientID      uuid.UUID  `json:"patient_id"`
	ProfessionalID uuid.UUID  `json:"professional_id"`
	Status         string     `json:"status"`
	Start          time.Time  `json:"start"`
	End            time.Time  `json:"end"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	ConfirmedAt    *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:             a.ID,
		PatientID:      a.PatientID,
		ProfessionalID: a.ProfessionalID,
		Status:         string(a.Status),
		Start:          a.StartTime,
		End:            a.EndTime,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
		ConfirmedAt:    a.ConfirmedAt,
		CancelledAt:    a.CancelledAt,
	}
}

type ListResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func newListResponse[S any, T any](items []S, conv func(*S) T) ListResponse[T] {
	out := make([]T, len(items))
	for i := range items {
		out[i] = conv(&items[i])
	}
	return ListResponse[T]{Items: out, Count: len(out)}
}

type CreatePatientRequest struct {
	Name           string `json:"name" validate:"required,max=200"`
	Phone          string `json:"phone" validate:"max=40"`
	ContactChannel string `json:"contact_channel" validate:"omitempty,oneof=whatsapp telegram sms"`
}

type PatientResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Phone          string    `json:"phone,omitempty"`
	ContactChannel string    `json:"contact_channel"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toPatientResponse(p *appointment.Patient) PatientResponse {
	return PatientResponse{
		ID:             p.ID,
		Name:           p.Name,
		Phone:          p.Phone,
		ContactChannel: string(p.ContactChannel),
		Active:         p.Active,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

type CreateProfessionalRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Specialty   string `json:"specialty" validate:"max=120"`
	SlotMinutes int    `json:"slot_minutes" validate:"gte=0"`
}

type ProfessionalResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Specialty   string    `json:"specialty,omitempty"`
	SlotMinutes int       `json:"slot_minutes"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toProfessionalResponse(p *appointment.Professional) ProfessionalResponse {
	return ProfessionalResponse{
		ID:          p.ID,
		Name:        p.Name,
		Specialty:   p.Specialty,
		SlotMinutes: p.SlotMinutes,
		Active:      p.Active,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

type CreateScheduleBlockRequest struct {
	ProfessionalID string `json:"professional_id" validate:"required,uuid"`
	Start          string `json:"start" validate:"required"`
	End            string `json:"end" validate:"required"`
	Reason         string `json:"reason" validate:"max=500"`
}

type ScheduleBlockResponse struct {
	ID             uuid.UUID `json:"id"`
	ProfessionalID uuid.UUID `json:"professional_id"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Reason         string    `json:"reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func toScheduleBlockResponse(b *appointment.ScheduleBlock) ScheduleBlockResponse {
	return ScheduleBlockResponse{
		ID:             b.ID,
		ProfessionalID: b.ProfessionalID,
		Start:          b.StartTime,
		End:            b.EndTime,
		Reason:         b.Reason,
		CreatedAt:      b.CreatedAt,
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
