package memstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/turnos-scheduling/internal/appointment"
	"github.com/hackgods/turnos-scheduling/internal/appointment/memstore"
)

func seedSubjects(t *testing.T, st *memstore.Store) (patientID, professionalID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	patientID, professionalID = uuid.New(), uuid.New()
	require.NoError(t, st.CreatePatient(ctx, &appointment.Patient{ID: patientID, Name: "Ana", ContactChannel: appointment.ChannelSMS, Active: true}))
	require.NoError(t, st.CreateProfessional(ctx, &appointment.Professional{ID: professionalID, Name: "Dr. Paz", SlotMinutes: 30, Active: true}))
	return patientID, professionalID
}

func TestInTx_RollsBackOnError(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	id := uuid.New()
	boom := errors.New("boom")

	err := st.InTx(ctx, func(ctx context.Context, tx appointment.Repository) error {
		require.NoError(t, tx.CreatePatient(ctx, &appointment.Patient{ID: id, Name: "Ana"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = st.GetPatientByID(ctx, id)
	assert.ErrorIs(t, err, appointment.ErrPatientNotFound)
}

func TestInTx_CommitFaultRollsBack(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	id := uuid.New()
	st.Fail("Commit", errors.New("connection reset"))

	err := st.InTx(ctx, func(ctx context.Context, tx appointment.Repository) error {
		return tx.CreateProfessional(ctx, &appointment.Professional{ID: id, Name: "Dr. Paz", SlotMinutes: 30})
	})
	require.Error(t, err)

	st.Fail("Commit", nil)
	_, err = st.GetProfessionalByID(ctx, id)
	assert.ErrorIs(t, err, appointment.ErrProfessionalNotFound)
}

func TestInTx_NestedCallJoins(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	id := uuid.New()

	err := st.InTx(ctx, func(ctx context.Context, tx appointment.Repository) error {
		inner := tx.InTx(ctx, func(ctx context.Context, tx appointment.Repository) error {
			return tx.CreatePatient(ctx, &appointment.Patient{ID: id, Name: "Ana"})
		})
		require.NoError(t, inner)
		return errors.New("outer fails")
	})
	require.Error(t, err)

	_, err = st.GetPatientByID(ctx, id)
	assert.ErrorIs(t, err, appointment.ErrPatientNotFound)
}

func TestInTx_RollbackKeepsWritesCommittedElsewhere(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	outsider := uuid.New()
	rolledBack := uuid.New()

	err := st.InTx(ctx, func(ctx context.Context, tx appointment.Repository) error {
		require.NoError(t, tx.CreatePatient(ctx, &appointment.Patient{ID: rolledBack, Name: "Luis"}))
		require.NoError(t, tx.InsertEvent(ctx, appointment.EventLog{EventType: "discarded"}))

		done := make(chan struct{})
		go func() {
			defer close(done)
			assert.NoError(t, st.CreatePatient(ctx, &appointment.Patient{ID: outsider, Name: "Ana"}))
			assert.NoError(t, st.InsertEvent(ctx, appointment.EventLog{EventType: "kept", Actor: "system"}))
		}()
		<-done
		return errors.New("abort")
	})
	require.Error(t, err)

	_, err = st.GetPatientByID(ctx, outsider)
	require.NoError(t, err)
	_, err = st.GetPatientByID(ctx, rolledBack)
	assert.ErrorIs(t, err, appointment.ErrPatientNotFound)

	events := st.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "kept", events[0].EventType)
}

func TestInTx_RollbackRestoresUpdatedRows(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	patientID, _ := seedSubjects(t, st)

	err := st.InTx(ctx, func(ctx context.Context, tx appointment.Repository) error {
		require.NoError(t, tx.SetPatientActive(ctx, patientID, false, time.Now()))
		return errors.New("abort")
	})
	require.Error(t, err)

	p, err := st.GetPatientByID(ctx, patientID)
	require.NoError(t, err)
	assert.True(t, p.Active)
}

func TestUpdateOutsideTx_WaitsForOpenTx(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	patientID, _ := seedSubjects(t, st)

	entered := make(chan struct{})
	release := make(chan struct{})
	txDone := make(chan error, 1)
	go func() {
		txDone <- st.InTx(ctx, func(ctx context.Context, tx appointment.Repository) error {
			assert.NoError(t, tx.SetPatientActive(ctx, patientID, false, time.Now()))
			close(entered)
			<-release
			return errors.New("abort")
		})
	}()
	<-entered

	updated := make(chan error, 1)
	go func() { updated <- st.SetPatientActive(ctx, patientID, false, time.Now()) }()

	select {
	case <-updated:
		t.Fatal("update ran while another transaction held the row")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	require.Error(t, <-txDone)
	require.NoError(t, <-updated)

	p, err := st.GetPatientByID(ctx, patientID)
	require.NoError(t, err)
	assert.False(t, p.Active, "the later committed update survives the rollback")
}

func TestInsertAppointment_UniqueStartIgnoresStatus(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	patientID, professionalID := seedSubjects(t, st)
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	cancelled := &appointment.Appointment{
		ID: uuid.New(), PatientID: patientID, ProfessionalID: professionalID,
		Status: appointment.StatusCancelled, StartTime: start, EndTime: start.Add(30 * time.Minute),
	}
	require.NoError(t, st.InsertAppointment(ctx, cancelled))

	otherPatient, _ := seedSubjects(t, st)
	again := &appointment.Appointment{
		ID: uuid.New(), PatientID: otherPatient, ProfessionalID: professionalID,
		Status: appointment.StatusReserved, StartTime: start, EndTime: start.Add(15 * time.Minute),
	}
	err := st.InsertAppointment(ctx, again)
	require.ErrorIs(t, err, appointment.ErrDuplicateStart)
	assert.Equal(t, appointment.KindPersistenceConflict, appointment.KindOf(err))

	overlap, err := st.HasActiveOverlap(ctx, appointment.SubjectProfessional, professionalID, appointment.Interval{Start: start, End: start.Add(time.Hour)})
	require.NoError(t, err)
	assert.False(t, overlap, "cancelled appointments do not occupy the agenda")
}

func TestLocker_SerializesSameKey(t *testing.T) {
	l := memstore.NewLocker()
	ctx := context.Background()

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = l.WithLock(ctx, "booking:professional:1", func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := l.WithLock(waitCtx, "booking:professional:1", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	ran := false
	require.NoError(t, l.WithLock(ctx, "booking:patient:1", func(context.Context) error {
		ran = true
		return nil
	}))
	assert.True(t, ran)

	close(release)
}
