package appointment_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/turnos-scheduling/internal/appointment"
)

func TestCreatePatient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.CreatePatient(ctx, appointment.NewPatient{Name: "  Lucía  ", Phone: "+54 11 5555"})
	require.NoError(t, err)
	assert.Equal(t, "Lucía", p.Name)
	assert.Equal(t, appointment.ChannelWhatsApp, p.ContactChannel)
	assert.True(t, p.Active)

	_, err = f.svc.CreatePatient(ctx, appointment.NewPatient{Name: " "})
	require.ErrorIs(t, err, appointment.ErrMissingName)

	_, err = f.svc.CreatePatient(ctx, appointment.NewPatient{Name: "Lucía", ContactChannel: "pager"})
	require.ErrorIs(t, err, appointment.ErrInvalidContactChannel)
	assert.ErrorIs(t, err, appointment.ErrInvalidInput)

	got, err := f.svc.GetPatient(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	list, err := f.svc.ListPatients(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreateProfessional(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.CreateProfessional(ctx, appointment.NewProfessional{Name: "Dra. Ruiz"})
	require.NoError(t, err)
	assert.Equal(t, 30, p.SlotMinutes)

	_, err = f.svc.CreateProfessional(ctx, appointment.NewProfessional{Name: "Dra. Ruiz", SlotMinutes: -15})
	require.ErrorIs(t, err, appointment.ErrInvalidSlotMinutes)

	_, err = f.svc.GetProfessional(ctx, uuid.New())
	require.ErrorIs(t, err, appointment.ErrProfessionalNotFound)
}

func TestListPatients_Paging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.patient(t)
	}

	page, err := f.svc.ListPatients(ctx, 2, 0)
	require.NoError(t, err)
	assert.Len(t, page, 2)

	page, err = f.svc.ListPatients(ctx, 2, 2)
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestSetActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pat, prof := f.patient(t), f.professional(t)

	appt := f.book(t, pat.ID, prof.ID, jan1(10, 0), jan1(10, 30))

	p, err := f.svc.SetPatientActive(ctx, pat.ID, false)
	require.NoError(t, err)
	assert.False(t, p.Active)

	// Deactivation leaves existing appointments alone.
	stored, err := f.svc.GetAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusReserved, stored.Status)

	_, err = f.svc.SetPatientActive(ctx, pat.ID, true)
	require.NoError(t, err)
	f.book(t, pat.ID, prof.ID, jan1(11, 0), jan1(11, 30))

	_, err = f.svc.SetProfessionalActive(ctx, uuid.New(), false)
	require.ErrorIs(t, err, appointment.ErrProfessionalNotFound)
}

func TestCreateScheduleBlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	prof := f.professional(t)

	_, err := f.svc.CreateScheduleBlock(ctx, appointment.NewScheduleBlock{
		ProfessionalID: prof.ID, Start: jan1(12, 0), End: jan1(11, 0),
	})
	require.ErrorIs(t, err, appointment.ErrInvalidInterval)

	_, err = f.svc.CreateScheduleBlock(ctx, appointment.NewScheduleBlock{
		ProfessionalID: uuid.New(), Start: jan1(11, 0), End: jan1(12, 0),
	})
	require.ErrorIs(t, err, appointment.ErrProfessionalNotFound)

	block, err := f.svc.CreateScheduleBlock(ctx, appointment.NewScheduleBlock{
		ProfessionalID: prof.ID, Start: jan1(11, 0), End: jan1(12, 0), Reason: " almuerzo ",
	})
	require.NoError(t, err)
	assert.Equal(t, "almuerzo", block.Reason)

	got, err := f.svc.GetScheduleBlock(ctx, block.ID)
	require.NoError(t, err)
	assert.Equal(t, block.ID, got.ID)

	list, err := f.svc.ListScheduleBlocks(ctx, &prof.ID, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)

	other := uuid.New()
	list, err = f.svc.ListScheduleBlocks(ctx, &other, 0)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = f.svc.GetScheduleBlock(ctx, uuid.New())
	require.ErrorIs(t, err, appointment.ErrScheduleBlockNotFound)
}
