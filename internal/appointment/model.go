package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusReserved  Status = "RESERVED"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
	StatusNoShow    Status = "NO_SHOW"
	StatusCompleted Status = "COMPLETED"
)

// AllStatuses is the closed status enumeration, in catalog order.
var AllStatuses = []Status{StatusReserved, StatusConfirmed, StatusCancelled, StatusNoShow, StatusCompleted}

// ActiveStatuses are the only statuses that block overlapping bookings.
var ActiveStatuses = []Status{StatusReserved, StatusConfirmed}

func (s Status) Active() bool {
	return s == StatusReserved || s == StatusConfirmed
}

func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// StatusRef is one row of the persisted status catalog.
type StatusRef struct {
	ID   int16  `json:"id"`
	Code Status `json:"code"`
}

type SubjectKind string

const (
	SubjectPatient      SubjectKind = "patient"
	SubjectProfessional SubjectKind = "professional"
)

type ContactChannel string

const (
	ChannelWhatsApp ContactChannel = "whatsapp"
	ChannelTelegram ContactChannel = "telegram"
	ChannelSMS      ContactChannel = "sms"
)

func (c ContactChannel) Valid() bool {
	switch c {
	case ChannelWhatsApp, ChannelTelegram, ChannelSMS:
		return true
	}
	return false
}

type Patient struct {
	ID             uuid.UUID
	Name           string
	Phone          string
	ContactChannel ContactChannel
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Professional struct {
	ID          uuid.UUID
	Name        string
	Specialty   string
	SlotMinutes int
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ScheduleBlock is an interval in which a professional takes no appointments,
// whatever the state of the agenda.
type ScheduleBlock struct {
	ID             uuid.UUID
	ProfessionalID uuid.UUID
	StartTime      time.Time
	EndTime        time.Time
	Reason         string
	CreatedAt      time.Time
}

func (b ScheduleBlock) Interval() Interval {
	return Interval{Start: b.StartTime, End: b.EndTime}
}

type Appointment struct {
	ID             uuid.UUID
	PatientID      uuid.UUID
	ProfessionalID uuid.UUID
	Status         Status
	StartTime      time.Time
	EndTime        time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ConfirmedAt    *time.Time
	CancelledAt    *time.Time
}

func (a Appointment) Interval() Interval {
	return Interval{Start: a.StartTime, End: a.EndTime}
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Actor         string
	Payload       []byte
	CreatedAt     time.Time
}

// ListFilter narrows ListAppointments. A nil pointer means "no filter".
type ListFilter struct {
	ProfessionalID *uuid.UUID
	PatientID      *uuid.UUID
	RangeStart     *time.Time
	RangeEnd       *time.Time
	ActiveOnly     bool
	Limit          int
}

const (
	DefaultListLimit = 200
	MaxListLimit     = 1000
)

// Actors recorded in the event log when no caller identity is available.
const (
	ActorSystem    = "system"
	ActorAnonymous = "anonymous"
)
