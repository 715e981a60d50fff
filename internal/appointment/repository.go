package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all DB interactions needed by the service.
//
// InTx runs fn against a transactional view of the repository: every call made
// through tx commits together when fn returns nil and rolls back otherwise.
// Calling InTx on a transactional view joins the open transaction.
type Repository interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error

	// Status catalog, resolved once when the repository is built
	Statuses() []StatusRef

	// Subjects
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetProfessionalByID(ctx context.Context, id uuid.UUID) (*Professional, error)
	CreatePatient(ctx context.Context, p *Patient) error
	CreateProfessional(ctx context.Context, p *Professional) error
	ListPatients(ctx context.Context, limit, offset int) ([]Patient, error)
	ListProfessionals(ctx context.Context, limit, offset int) ([]Professional, error)
	SetPatientActive(ctx context.Context, id uuid.UUID, active bool, now time.Time) error
	SetProfessionalActive(ctx context.Context, id uuid.UUID, active bool, now time.Time) error

	// Schedule blocks
	CreateScheduleBlock(ctx context.Context, b *ScheduleBlock) error
	GetScheduleBlockByID(ctx context.Context, id uuid.UUID) (*ScheduleBlock, error)
	ListScheduleBlocks(ctx context.Context, professionalID *uuid.UUID, limit int) ([]ScheduleBlock, error)

	// Overlap predicates
	HasActiveOverlap(ctx context.Context, kind SubjectKind, subjectID uuid.UUID, iv Interval) (bool, error)
	HasScheduleBlock(ctx context.Context, professionalID uuid.UUID, iv Interval) (bool, error)

	// Appointments
	InsertAppointment(ctx context.Context, a *Appointment) error
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// GetAppointmentForUpdate blocks until it holds the row exclusively for
	// the rest of the enclosing transaction.
	GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdateAppointment(ctx context.Context, a *Appointment) error
	ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error)

	// Expiry sweep
	FindStaleReserved(ctx context.Context, createdBefore time.Time, limit int) ([]uuid.UUID, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
