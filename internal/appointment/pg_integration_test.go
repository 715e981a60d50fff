//go:build integration

package appointment_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/turnos-scheduling/internal/appointment"
	"github.com/hackgods/turnos-scheduling/internal/clock"
	"github.com/hackgods/turnos-scheduling/internal/config"
	"github.com/hackgods/turnos-scheduling/internal/db"
	redisclient "github.com/hackgods/turnos-scheduling/internal/redis"
	"github.com/hackgods/turnos-scheduling/internal/testenv"
)

var (
	pgPool *pgxpool.Pool
	rdb    *redis.Client
)

func TestMain(m *testing.M) {
	os.Exit(runIntegration(m))
}

func runIntegration(m *testing.M) int {
	ctx := context.Background()

	dsn, stopPg, err := testenv.StartPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "start postgres: %v\n", err)
		return 1
	}
	defer stopPg()

	redisAddr, stopRedis, err := testenv.StartRedis(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "start redis: %v\n", err)
		return 1
	}
	defer stopRedis()

	pgPool, err = db.ConnectPostgres(ctx, dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect postgres: %v\n", err)
		return 1
	}
	defer pgPool.Close()

	if _, err := db.Migrate(ctx, pgPool); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		return 1
	}

	rdb, err = redisclient.NewRedisClient(ctx, redisAddr, "", "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect redis: %v\n", err)
		return 1
	}
	defer rdb.Close()

	return m.Run()
}

type pgFixture struct {
	repo  *appointment.PgRepository
	clock *clock.ManualClock
	svc   *appointment.Service
}

func newPgFixture(t *testing.T) *pgFixture {
	t.Helper()
	ctx := context.Background()

	_, err := pgPool.Exec(ctx, `TRUNCATE event_logs, appointments, schedule_blocks, patients, professionals RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	repo, err := appointment.NewPgRepository(ctx, pgPool)
	require.NoError(t, err)

	f := &pgFixture{
		repo:  repo,
		clock: clock.NewManualClock(time.Date(2025, 12, 31, 12, 0, 0, 0, time.UTC)),
	}
	cfg := config.Config{ReservationTTL: 10 * time.Minute}
	locker := redisclient.NewRedisLocker(rdb, 5*time.Second, 5*time.Second)
	f.svc = appointment.NewService(repo, locker, cfg, appointment.WithClock(f.clock))
	t.Cleanup(f.svc.WaitNotifications)
	return f
}

func (f *pgFixture) patient(t *testing.T) uuid.UUID {
	t.Helper()
	p, err := f.svc.CreatePatient(context.Background(), appointment.NewPatient{Name: "Ana Pérez"})
	require.NoError(t, err)
	return p.ID
}

func (f *pgFixture) professional(t *testing.T) uuid.UUID {
	t.Helper()
	p, err := f.svc.CreateProfessional(context.Background(), appointment.NewProfessional{Name: "Dr. Gómez", Specialty: "clinica"})
	require.NoError(t, err)
	return p.ID
}

func (f *pgFixture) book(t *testing.T, patientID, professionalID uuid.UUID, start, end time.Time) *appointment.Appointment {
	t.Helper()
	appt, err := f.svc.BookAppointment(context.Background(), appointment.BookingRequest{
		PatientID:      patientID,
		ProfessionalID: professionalID,
		Start:          start,
		End:            end,
	})
	require.NoError(t, err)
	return appt
}

func TestPgRepository_StatusCatalog(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()

	want := []appointment.StatusRef{
		{ID: 1, Code: appointment.StatusReserved},
		{ID: 2, Code: appointment.StatusConfirmed},
		{ID: 3, Code: appointment.StatusCancelled},
		{ID: 4, Code: appointment.StatusNoShow},
		{ID: 5, Code: appointment.StatusCompleted},
	}
	if diff := cmp.Diff(want, f.repo.Statuses()); diff != "" {
		t.Errorf("status catalog mismatch (-want +got):\n%s", diff)
	}

	_, err := pgPool.Exec(ctx, `UPDATE appointment_statuses SET code = 'ARCHIVED' WHERE id = 5`)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, err := pgPool.Exec(context.Background(), `UPDATE appointment_statuses SET code = 'COMPLETED' WHERE id = 5`)
		require.NoError(t, err)
	})

	_, err = appointment.NewPgRepository(ctx, pgPool)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COMPLETED")
}

func TestPgRepository_RoundTripsAppointment(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()

	created := f.book(t, f.patient(t), f.professional(t), jan1(10, 0), jan1(10, 30))
	got, err := f.svc.GetAppointment(ctx, created.ID)
	require.NoError(t, err)

	if diff := cmp.Diff(created, got); diff != "" {
		t.Errorf("stored appointment mismatch (-want +got):\n%s", diff)
	}
}

func TestPgRepository_DuplicateStartIsConflict(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()
	prof := f.professional(t)

	first := f.book(t, f.patient(t), prof, jan1(10, 0), jan1(10, 30))
	_, err := f.svc.ApplyEvent(ctx, first.ID, appointment.EventCancel, "")
	require.NoError(t, err)

	_, err = f.svc.BookAppointment(ctx, appointment.BookingRequest{
		PatientID:      f.patient(t),
		ProfessionalID: prof,
		Start:          jan1(10, 0),
		End:            jan1(10, 15),
	})
	require.ErrorIs(t, err, appointment.ErrDuplicateStart)
	assert.Equal(t, appointment.KindPersistenceConflict, appointment.KindOf(err))
	assert.Contains(t, err.Error(), "uq_appointment_professional_start")

	_, err = f.svc.BookAppointment(ctx, appointment.BookingRequest{
		PatientID:      f.patient(t),
		ProfessionalID: prof,
		Start:          jan1(10, 5),
		End:            jan1(10, 30),
	})
	require.NoError(t, err, "a shifted start reuses the cancelled slot")
}

func TestPgRepository_ConcurrentCancelAppliesOnce(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()
	appt := f.book(t, f.patient(t), f.professional(t), jan1(10, 0), jan1(10, 30))

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		illegal   int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ApplyEvent(ctx, appt.ID, appointment.EventCancel, "reception")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case appointment.KindOf(err) == appointment.KindIllegalTransition:
				illegal++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, illegal)

	var changes int
	require.NoError(t, pgPool.QueryRow(ctx,
		`SELECT count(*) FROM event_logs WHERE appointment_id = $1 AND event_type = $2`,
		appt.ID, appointment.EventAppointmentChanged).Scan(&changes))
	assert.Equal(t, 1, changes)
}

func TestPgRepository_ConcurrentBookingsNeverOverlap(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()
	prof := f.professional(t)

	patients := make([]uuid.UUID, 10)
	for i := range patients {
		patients[i] = f.patient(t)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		booked int
	)
	for i, pat := range patients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := jan1(10, 0).Add(time.Duration(i) * 5 * time.Minute)
			_, err := f.svc.BookAppointment(ctx, appointment.BookingRequest{
				PatientID:      pat,
				ProfessionalID: prof,
				Start:          start,
				End:            start.Add(30 * time.Minute),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				booked++
			case appointment.KindOf(err) == appointment.KindPreconditionFailed,
				appointment.KindOf(err) == appointment.KindPersistenceConflict:
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, booked, 1)

	var overlaps int
	require.NoError(t, pgPool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN appointments b ON a.professional_id = b.professional_id AND a.id < b.id
		WHERE a.start_time < b.end_time AND b.start_time < a.end_time
	`).Scan(&overlaps))
	assert.Zero(t, overlaps)
}

func TestPgRepository_ListAppointments(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()
	prof, other := f.professional(t), f.professional(t)

	noon := f.book(t, f.patient(t), prof, jan1(12, 0), jan1(12, 30))
	f.clock.Add(time.Minute)
	early := f.book(t, f.patient(t), prof, jan1(9, 0), jan1(9, 30))
	f.clock.Add(time.Minute)
	mid := f.book(t, f.patient(t), prof, jan1(10, 0), jan1(10, 30))
	f.clock.Add(time.Minute)
	f.book(t, f.patient(t), other, jan1(10, 0), jan1(10, 30))

	ids := func(list []appointment.Appointment) []uuid.UUID {
		out := make([]uuid.UUID, len(list))
		for i, a := range list {
			out[i] = a.ID
		}
		return out
	}

	t.Run("window keeps intervals touching it", func(t *testing.T) {
		from, to := jan1(9, 15), jan1(12, 15)
		list, err := f.svc.ListAppointments(ctx, appointment.ListFilter{ProfessionalID: &prof, RangeStart: &from, RangeEnd: &to})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{early.ID, mid.ID, noon.ID}, ids(list))
	})

	t.Run("window edges are exclusive", func(t *testing.T) {
		from, to := jan1(9, 30), jan1(12, 0)
		list, err := f.svc.ListAppointments(ctx, appointment.ListFilter{ProfessionalID: &prof, RangeStart: &from, RangeEnd: &to})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{mid.ID}, ids(list))
	})

	t.Run("no window returns most recent in agenda order", func(t *testing.T) {
		list, err := f.svc.ListAppointments(ctx, appointment.ListFilter{ProfessionalID: &prof, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{early.ID, mid.ID}, ids(list))
	})

	t.Run("active only drops cancelled", func(t *testing.T) {
		_, err := f.svc.ApplyEvent(ctx, early.ID, appointment.EventCancel, "")
		require.NoError(t, err)

		from, to := jan1(0, 0), jan1(23, 0)
		list, err := f.svc.ListAppointments(ctx, appointment.ListFilter{ProfessionalID: &prof, RangeStart: &from, RangeEnd: &to, ActiveOnly: true})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{mid.ID, noon.ID}, ids(list))
	})
}

func TestPgRepository_ListScheduleBlocksFilter(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()
	prof, other := f.professional(t), f.professional(t)

	for _, id := range []uuid.UUID{prof, other} {
		_, err := f.svc.CreateScheduleBlock(ctx, appointment.NewScheduleBlock{
			ProfessionalID: id,
			Start:          jan1(13, 0),
			End:            jan1(14, 0),
			Reason:         "almuerzo",
		})
		require.NoError(t, err)
	}

	all, err := f.svc.ListScheduleBlocks(ctx, nil, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := f.svc.ListScheduleBlocks(ctx, &prof, 0)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, prof, mine[0].ProfessionalID)

	_, err = f.svc.BookAppointment(ctx, appointment.BookingRequest{
		PatientID:      f.patient(t),
		ProfessionalID: prof,
		Start:          jan1(13, 30),
		End:            jan1(14, 30),
	})
	require.ErrorIs(t, err, appointment.ErrScheduleBlocked)
}

func TestPgRepository_SweepLapsesStale(t *testing.T) {
	f := newPgFixture(t)
	ctx := context.Background()
	prof := f.professional(t)

	stale := f.book(t, f.patient(t), prof, jan1(9, 0), jan1(9, 30))
	f.clock.Add(11 * time.Minute)
	fresh := f.book(t, f.patient(t), prof, jan1(10, 0), jan1(10, 30))

	res, err := f.svc.ExpireStaleReservations(ctx)
	require.NoError(t, err)
	assert.Equal(t, appointment.SweepResult{Candidates: 1, Lapsed: 1}, res)

	got, err := f.svc.GetAppointment(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, got.Status)

	got, err = f.svc.GetAppointment(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusReserved, got.Status)
}
