package appointment

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

const defaultSlotMinutes = 30

type NewPatient struct {
	Name           string
	Phone          string
	ContactChannel ContactChannel
}

func (s *Service) CreatePatient(ctx context.Context, in NewPatient) (*Patient, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrMissingName
	}
	channel := in.ContactChannel
	if channel == "" {
		channel = ChannelWhatsApp
	}
	if !channel.Valid() {
		return nil, errors.Wrapf(ErrInvalidContactChannel, "%q", in.ContactChannel)
	}

	now := Canonical(s.clock.Now())
	p := &Patient{
		ID:             uuid.New(),
		Name:           name,
		Phone:          strings.TrimSpace(in.Phone),
		ContactChannel: channel,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.CreatePatient(ctx, p); err != nil {
		return nil, s.fail("create patient", err)
	}
	return p, nil
}

type NewProfessional struct {
	Name        string
	Specialty   string
	SlotMinutes int
}

func (s *Service) CreateProfessional(ctx context.Context, in NewProfessional) (*Professional, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrMissingName
	}
	slot := in.SlotMinutes
	if slot == 0 {
		slot = defaultSlotMinutes
	}
	if slot < 0 {
		return nil, errors.Wrapf(ErrInvalidSlotMinutes, "%d", in.SlotMinutes)
	}

	now := Canonical(s.clock.Now())
	p := &Professional{
		ID:          uuid.New(),
		Name:        name,
		Specialty:   strings.TrimSpace(in.Specialty),
		SlotMinutes: slot,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateProfessional(ctx, p); err != nil {
		return nil, s.fail("create professional", err)
	}
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetPatientByID(ctx, id)
	if err != nil {
		return nil, s.fail("get patient", err)
	}
	return p, nil
}

func (s *Service) GetProfessional(ctx context.Context, id uuid.UUID) (*Professional, error) {
	p, err := s.repo.GetProfessionalByID(ctx, id)
	if err != nil {
		return nil, s.fail("get professional", err)
	}
	return p, nil
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]Patient, error) {
	if offset < 0 {
		offset = 0
	}
	list, err := s.repo.ListPatients(ctx, clampLimit(limit), offset)
	if err != nil {
		return nil, s.fail("list patients", err)
	}
	return list, nil
}

func (s *Service) ListProfessionals(ctx context.Context, limit, offset int) ([]Professional, error) {
	if offset < 0 {
		offset = 0
	}
	list, err := s.repo.ListProfessionals(ctx, clampLimit(limit), offset)
	if err != nil {
		return nil, s.fail("list professionals", err)
	}
	return list, nil
}

// SetPatientActive toggles the patient's active flag. Existing appointments
// are not touched; an inactive patient only stops taking new bookings.
func (s *Service) SetPatientActive(ctx context.Context, id uuid.UUID, active bool) (*Patient, error) {
	var p *Patient
	err := s.repo.InTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := tx.SetPatientActive(ctx, id, active, Canonical(s.clock.Now())); err != nil {
			return err
		}
		var err error
		p, err = tx.GetPatientByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, s.fail("set patient active", err)
	}
	return p, nil
}

func (s *Service) SetProfessionalActive(ctx context.Context, id uuid.UUID, active bool) (*Professional, error) {
	var p *Professional
	err := s.repo.InTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := tx.SetProfessionalActive(ctx, id, active, Canonical(s.clock.Now())); err != nil {
			return err
		}
		var err error
		p, err = tx.GetProfessionalByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, s.fail("set professional active", err)
	}
	return p, nil
}

type NewScheduleBlock struct {
	ProfessionalID uuid.UUID
	Start          time.Time
	End            time.Time
	Reason         string
}

// CreateScheduleBlock marks [Start, End) unavailable for the professional.
// Appointments already inside the window keep their status.
func (s *Service) CreateScheduleBlock(ctx context.Context, in NewScheduleBlock) (*ScheduleBlock, error) {
	iv, err := NewInterval(in.Start, in.End)
	if err != nil {
		return nil, err
	}

	b := &ScheduleBlock{
		ID:             uuid.New(),
		ProfessionalID: in.ProfessionalID,
		StartTime:      iv.Start,
		EndTime:        iv.End,
		Reason:         strings.TrimSpace(in.Reason),
		CreatedAt:      Canonical(s.clock.Now()),
	}

	err = s.repo.InTx(ctx, func(ctx context.Context, tx Repository) error {
		if _, err := tx.GetProfessionalByID(ctx, in.ProfessionalID); err != nil {
			return err
		}
		return tx.CreateScheduleBlock(ctx, b)
	})
	if err != nil {
		return nil, s.fail("create schedule block", err)
	}
	return b, nil
}

func (s *Service) GetScheduleBlock(ctx context.Context, id uuid.UUID) (*ScheduleBlock, error) {
	b, err := s.repo.GetScheduleBlockByID(ctx, id)
	if err != nil {
		return nil, s.fail("get schedule block", err)
	}
	return b, nil
}

func (s *Service) ListScheduleBlocks(ctx context.Context, professionalID *uuid.UUID, limit int) ([]ScheduleBlock, error) {
	list, err := s.repo.ListScheduleBlocks(ctx, professionalID, clampLimit(limit))
	if err != nil {
		return nil, s.fail("list schedule blocks", err)
	}
	return list, nil
}
