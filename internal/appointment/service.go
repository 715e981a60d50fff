package appointment

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/turnos-scheduling/internal/clock"
	"github.com/hackgods/turnos-scheduling/internal/config"
	"github.com/hackgods/turnos-scheduling/internal/metrics"
	redisclient "github.com/hackgods/turnos-scheduling/internal/redis"
)

const (
	EventAppointmentCreated = "APPOINTMENT_CREATED"
	EventAppointmentChanged = "APPOINTMENT_STATUS_CHANGED"
)

const (
	notifyTimeout  = 5 * time.Second
	sweepBatchSize = 500
)

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	cfg      config.Config
	clock    clock.Clock
	notifier Notifier
	metrics  *metrics.Collector
	log      zerolog.Logger

	notifications sync.WaitGroup
}

type Option func(*Service)

func WithClock(c clock.Clock) Option { return func(s *Service) { s.clock = c } }

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithMetrics(m *metrics.Collector) Option { return func(s *Service) { s.metrics = m } }

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.log = l } }

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		locker:   locker,
		cfg:      cfg,
		clock:    clock.NewRealClock(),
		notifier: noopNotifier{},
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BookingRequest carries an already-typed booking. Start and End may carry
// any offset; they are normalized to UTC before any check.
type BookingRequest struct {
	PatientID      uuid.UUID
	ProfessionalID uuid.UUID
	Start          time.Time
	End            time.Time
	AutoConfirm    bool
	Actor          string
}

// BookAppointment reserves [Start, End) for the patient with the professional.
//
// Checks run in a fixed order and stop at the first failure: interval,
// existence, active flags, patient overlap, professional overlap, schedule
// block. They run inside the write transaction while both subjects are locked,
// so no concurrent booking for either subject can interleave between the
// checks and the insert. The unique (subject, start) constraints stay as the
// store-level guard.
func (s *Service) BookAppointment(ctx context.Context, req BookingRequest) (*Appointment, error) {
	appt, err := s.bookAppointment(ctx, req)
	s.observeBooking(err)
	if err != nil {
		return nil, s.fail("book appointment", err)
	}

	s.logEvent(ctx, appt.ID, EventAppointmentCreated, actorOrDefault(req.Actor), map[string]any{
		"patient_id":      appt.PatientID.String(),
		"professional_id": appt.ProfessionalID.String(),
		"start_time":      appt.StartTime,
		"end_time":        appt.EndTime,
		"status":          appt.Status,
	})
	s.notifyCreated(ctx, *appt)

	return appt, nil
}

func (s *Service) bookAppointment(ctx context.Context, req BookingRequest) (*Appointment, error) {
	iv, err := NewInterval(req.Start, req.End)
	if err != nil {
		return nil, err
	}

	var created *Appointment

	err = s.withSubjectLocks(ctx, req.ProfessionalID, req.PatientID, func(lockCtx context.Context) error {
		return s.repo.InTx(lockCtx, func(ctx context.Context, tx Repository) error {
			if err := checkSubjects(ctx, tx, req.PatientID, req.ProfessionalID); err != nil {
				return err
			}
			if err := checkAvailability(ctx, tx, req.PatientID, req.ProfessionalID, iv); err != nil {
				return err
			}

			now := Canonical(s.clock.Now())
			appt := &Appointment{
				ID:             uuid.New(),
				PatientID:      req.PatientID,
				ProfessionalID: req.ProfessionalID,
				Status:         StatusReserved,
				StartTime:      iv.Start,
				EndTime:        iv.End,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if req.AutoConfirm {
				if err := appt.Apply(EventConfirm, now); err != nil {
					return err
				}
			}

			if err := tx.InsertAppointment(ctx, appt); err != nil {
				return err
			}
			created = appt
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// withSubjectLocks holds the professional lock, then the patient lock, for
// the duration of fn. The order is the same for every booking.
func (s *Service) withSubjectLocks(ctx context.Context, professionalID, patientID uuid.UUID, fn func(ctx context.Context) error) error {
	err := s.locker.WithLock(ctx, subjectLockKey(SubjectProfessional, professionalID), func(ctx context.Context) error {
		return s.locker.WithLock(ctx, subjectLockKey(SubjectPatient, patientID), fn)
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return errors.WithSecondaryError(ErrBookingInProgress, err)
	}
	return err
}

func subjectLockKey(kind SubjectKind, id uuid.UUID) string {
	return "booking:" + string(kind) + ":" + id.String()
}

func checkSubjects(ctx context.Context, tx Repository, patientID, professionalID uuid.UUID) error {
	patient, err := tx.GetPatientByID(ctx, patientID)
	if err != nil {
		return errors.Wrapf(err, "patient %s", patientID)
	}
	professional, err := tx.GetProfessionalByID(ctx, professionalID)
	if err != nil {
		return errors.Wrapf(err, "professional %s", professionalID)
	}
	if !patient.Active {
		return errors.Wrapf(ErrInactivePatient, "patient %s", patientID)
	}
	if !professional.Active {
		return errors.Wrapf(ErrInactiveProfessional, "professional %s", professionalID)
	}
	return nil
}

func checkAvailability(ctx context.Context, tx Repository, patientID, professionalID uuid.UUID, iv Interval) error {
	busy, err := tx.HasActiveOverlap(ctx, SubjectPatient, patientID, iv)
	if err != nil {
		return err
	}
	if busy {
		return ErrPatientConflict
	}

	busy, err = tx.HasActiveOverlap(ctx, SubjectProfessional, professionalID, iv)
	if err != nil {
		return err
	}
	if busy {
		return ErrProfessionalConflict
	}

	blocked, err := tx.HasScheduleBlock(ctx, professionalID, iv)
	if err != nil {
		return err
	}
	if blocked {
		return ErrScheduleBlocked
	}
	return nil
}

// ApplyEvent moves one appointment through the lifecycle. The row is locked
// for the whole read-check-write, so a concurrent event on the same
// appointment is evaluated against the state this call leaves behind.
func (s *Service) ApplyEvent(ctx context.Context, id uuid.UUID, ev Event, actor string) (*Appointment, error) {
	var (
		updated *Appointment
		from    Status
	)

	err := s.repo.InTx(ctx, func(ctx context.Context, tx Repository) error {
		appt, err := tx.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}

		from = appt.Status
		if err := appt.Apply(ev, s.clock.Now()); err != nil {
			return err
		}
		if err := tx.UpdateAppointment(ctx, appt); err != nil {
			return err
		}
		updated = appt
		return nil
	})
	s.observeTransition(ev, err)
	if err != nil {
		return nil, s.fail("apply "+string(ev), errors.Wrapf(err, "appointment %s", id))
	}

	s.logEvent(ctx, updated.ID, EventAppointmentChanged, actorOrDefault(actor), map[string]any{
		"event": ev,
		"from":  from,
		"to":    updated.Status,
	})

	return updated, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, s.fail("get appointment", err)
	}
	return appt, nil
}

// ListAppointments returns the appointments intersecting the filter's range,
// or the most recent Limit records when no range is given, in start order.
func (s *Service) ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error) {
	if f.RangeStart != nil {
		t := Canonical(*f.RangeStart)
		f.RangeStart = &t
	}
	if f.RangeEnd != nil {
		t := Canonical(*f.RangeEnd)
		f.RangeEnd = &t
	}
	if f.RangeStart != nil && f.RangeEnd != nil && !f.RangeEnd.After(*f.RangeStart) {
		return nil, ErrInvalidRange
	}
	f.Limit = clampLimit(f.Limit)

	list, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, s.fail("list appointments", err)
	}
	return list, nil
}

func (s *Service) ListStatuses() []StatusRef {
	return s.repo.Statuses()
}

// SweepResult summarizes one expiry run.
type SweepResult struct {
	Candidates int
	Lapsed     int
	Skipped    int
	Failed     int
}

// ExpireStaleReservations lapses every appointment still RESERVED after
// ReservationTTL. Candidates that moved on before their turn came are skipped.
func (s *Service) ExpireStaleReservations(ctx context.Context) (SweepResult, error) {
	cutoff := Canonical(s.clock.Now()).Add(-s.cfg.ReservationTTL)

	ids, err := s.repo.FindStaleReserved(ctx, cutoff, sweepBatchSize)
	if err != nil {
		return SweepResult{}, s.fail("find stale reservations", err)
	}

	res := SweepResult{Candidates: len(ids)}
	defer func() {
		if s.metrics != nil {
			s.metrics.SweepLapsedTotal.Add(float64(res.Lapsed))
			s.metrics.SweepSkippedTotal.Add(float64(res.Skipped))
		}
	}()

	for _, id := range ids {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		_, err := s.ApplyEvent(ctx, id, EventLapse, ActorSystem)
		switch {
		case err == nil:
			res.Lapsed++
		case errors.Is(err, ErrIllegalTransition), errors.Is(err, ErrNotFound):
			res.Skipped++
			s.log.Debug().Str("appointment_id", id.String()).Msg("sweep skipped appointment no longer reserved")
		default:
			res.Failed++
		}
	}
	return res, nil
}

// WaitNotifications blocks until in-flight notifications finish.
func (s *Service) WaitNotifications() {
	s.notifications.Wait()
}

func (s *Service) notifyCreated(ctx context.Context, appt Appointment) {
	s.notifications.Add(1)
	go func() {
		defer s.notifications.Done()

		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()

		result := "ok"
		if err := s.notifier.AppointmentCreated(nctx, appt); err != nil {
			result = "error"
			s.log.Warn().Err(err).Str("appointment_id", appt.ID.String()).Msg("booking notification failed")
		}
		if s.metrics != nil {
			s.metrics.NotificationsTotal.WithLabelValues(result).Inc()
		}
	}()
}

// fail gives err a kind and logs it. Only infrastructure failures are
// logged as errors; business rejections are expected traffic.
func (s *Service) fail(op string, err error) error {
	err = classify(err)
	if errors.Is(err, ErrPersistenceFailure) {
		s.log.Error().Err(err).Str("op", op).Msg("persistence failure")
	} else {
		s.log.Debug().Err(err).Str("op", op).Str("kind", KindOf(err)).Msg("request rejected")
	}
	return err
}

func (s *Service) observeBooking(err error) {
	if s.metrics != nil {
		s.metrics.BookingsTotal.WithLabelValues(KindOf(classify(err))).Inc()
	}
}

func (s *Service) observeTransition(ev Event, err error) {
	if s.metrics != nil {
		s.metrics.TransitionsTotal.WithLabelValues(string(ev), KindOf(classify(err))).Inc()
	}
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType, actor string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Actor:         actor,
		Payload:       data,
		CreatedAt:     Canonical(s.clock.Now()),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}

func actorOrDefault(actor string) string {
	if actor == "" {
		return ActorAnonymous
	}
	return actor
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}
