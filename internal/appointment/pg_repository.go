package appointment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgRepository implements Repository on Postgres. The zero value is not usable;
// build it with NewPgRepository.
type PgRepository struct {
	pool     *pgxpool.Pool
	db       queryable
	tx       pgx.Tx
	statuses *statusCatalog
}

// NewPgRepository resolves the status catalog once and caches it for the
// life of the repository.
func NewPgRepository(ctx context.Context, pool *pgxpool.Pool) (*PgRepository, error) {
	catalog, err := loadStatusCatalog(ctx, pool)
	if err != nil {
		return nil, err
	}
	return &PgRepository{pool: pool, db: pool, statuses: catalog}, nil
}

func (r *PgRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error {
	if r.tx != nil {
		return fn(ctx, r)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return errors.Mark(errors.Wrap(err, "begin transaction"), ErrPersistenceFailure)
	}
	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	txRepo := &PgRepository{pool: r.pool, db: tx, tx: tx, statuses: r.statuses}
	if err := fn(ctx, txRepo); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return mapWriteError(errors.Wrap(err, "commit transaction"))
	}
	return nil
}

func (r *PgRepository) Statuses() []StatusRef {
	return r.statuses.list()
}

// Status catalog

type statusCatalog struct {
	byCode map[Status]int16
	byID   map[int16]Status
	refs   []StatusRef
	active []int16
}

func loadStatusCatalog(ctx context.Context, db queryable) (*statusCatalog, error) {
	rows, err := db.Query(ctx, `SELECT id, code FROM appointment_statuses ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load status catalog: %w", err)
	}
	defer rows.Close()

	var refs []StatusRef
	for rows.Next() {
		var ref StatusRef
		if err := rows.Scan(&ref.ID, &ref.Code); err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load status catalog: %w", err)
	}

	return newStatusCatalog(refs)
}

func newStatusCatalog(refs []StatusRef) (*statusCatalog, error) {
	c := &statusCatalog{
		byCode: make(map[Status]int16, len(refs)),
		byID:   make(map[int16]Status, len(refs)),
		refs:   refs,
	}
	for _, ref := range refs {
		c.byCode[ref.Code] = ref.ID
		c.byID[ref.ID] = ref.Code
	}
	for _, s := range AllStatuses {
		if _, ok := c.byCode[s]; !ok {
			return nil, fmt.Errorf("status %s missing from appointment_statuses", s)
		}
	}
	for _, s := range ActiveStatuses {
		c.active = append(c.active, c.byCode[s])
	}
	return c, nil
}

func (c *statusCatalog) id(s Status) int16 {
	return c.byCode[s]
}

func (c *statusCatalog) code(id int16) (Status, error) {
	s, ok := c.byID[id]
	if !ok {
		return "", fmt.Errorf("unknown status id %d", id)
	}
	return s, nil
}

func (c *statusCatalog) list() []StatusRef {
	out := make([]StatusRef, len(c.refs))
	copy(out, c.refs)
	return out
}

// Helpers

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return errors.WithSecondaryError(errors.Wrap(ErrDuplicateStart, pgErr.ConstraintName), err)
		case pgErrForeignKeyViolation:
			return errors.WithSecondaryError(errors.Wrap(ErrNotFound, pgErr.ConstraintName), err)
		}
	}
	return errors.Mark(err, ErrPersistenceFailure)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Phone, &p.ContactChannel, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	p.CreatedAt, p.UpdatedAt = p.CreatedAt.UTC(), p.UpdatedAt.UTC()
	return &p, nil
}

func scanProfessional(row pgx.Row) (*Professional, error) {
	var p Professional
	err := row.Scan(&p.ID, &p.Name, &p.Specialty, &p.SlotMinutes, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfessionalNotFound
		}
		return nil, err
	}
	p.CreatedAt, p.UpdatedAt = p.CreatedAt.UTC(), p.UpdatedAt.UTC()
	return &p, nil
}

func scanScheduleBlock(row pgx.Row) (*ScheduleBlock, error) {
	var b ScheduleBlock
	err := row.Scan(&b.ID, &b.ProfessionalID, &b.StartTime, &b.EndTime, &b.Reason, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleBlockNotFound
		}
		return nil, err
	}
	b.StartTime, b.EndTime, b.CreatedAt = b.StartTime.UTC(), b.EndTime.UTC(), b.CreatedAt.UTC()
	return &b, nil
}

func (r *PgRepository) scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a        Appointment
		statusID int16
	)
	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ProfessionalID,
		&statusID,
		&a.StartTime,
		&a.EndTime,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.ConfirmedAt,
		&a.CancelledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if a.Status, err = r.statuses.code(statusID); err != nil {
		return nil, err
	}
	a.StartTime, a.EndTime = a.StartTime.UTC(), a.EndTime.UTC()
	a.CreatedAt, a.UpdatedAt = a.CreatedAt.UTC(), a.UpdatedAt.UTC()
	a.ConfirmedAt, a.CancelledAt = utcPtr(a.ConfirmedAt), utcPtr(a.CancelledAt)
	return &a, nil
}

func (r *PgRepository) collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Subjects

const patientCols = `id, name, phone, contact_channel, active, created_at, updated_at`

const professionalCols = `id, name, specialty, slot_minutes, active, created_at, updated_at`

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.db.QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetProfessionalByID(ctx context.Context, id uuid.UUID) (*Professional, error) {
	row := r.db.QueryRow(ctx, `SELECT `+professionalCols+` FROM professionals WHERE id = $1`, id)
	return scanProfessional(row)
}

func (r *PgRepository) CreatePatient(ctx context.Context, p *Patient) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO patients (id, name, phone, contact_channel, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.Name, p.Phone, p.ContactChannel, p.Active, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return mapWriteError(errors.Wrap(err, "insert patient"))
	}
	return nil
}

func (r *PgRepository) CreateProfessional(ctx context.Context, p *Professional) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO professionals (id, name, specialty, slot_minutes, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.Name, p.Specialty, p.SlotMinutes, p.Active, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return mapWriteError(errors.Wrap(err, "insert professional"))
	}
	return nil
}

func (r *PgRepository) ListPatients(ctx context.Context, limit, offset int) ([]Patient, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+patientCols+` FROM patients
		ORDER BY created_at, id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

func (r *PgRepository) ListProfessionals(ctx context.Context, limit, offset int) ([]Professional, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+professionalCols+` FROM professionals
		ORDER BY created_at, id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Professional
	for rows.Next() {
		p, err := scanProfessional(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

func (r *PgRepository) SetPatientActive(ctx context.Context, id uuid.UUID, active bool, now time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE patients SET active = $2, updated_at = $3 WHERE id = $1`, id, active, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

func (r *PgRepository) SetProfessionalActive(ctx context.Context, id uuid.UUID, active bool, now time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE professionals SET active = $2, updated_at = $3 WHERE id = $1`, id, active, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProfessionalNotFound
	}
	return nil
}

// Schedule blocks

const blockCols = `id, professional_id, start_time, end_time, reason, created_at`

func (r *PgRepository) CreateScheduleBlock(ctx context.Context, b *ScheduleBlock) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO schedule_blocks (id, professional_id, start_time, end_time, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, b.ID, b.ProfessionalID, b.StartTime, b.EndTime, b.Reason, b.CreatedAt)
	if err != nil {
		return mapWriteError(errors.Wrap(err, "insert schedule block"))
	}
	return nil
}

func (r *PgRepository) GetScheduleBlockByID(ctx context.Context, id uuid.UUID) (*ScheduleBlock, error) {
	row := r.db.QueryRow(ctx, `SELECT `+blockCols+` FROM schedule_blocks WHERE id = $1`, id)
	return scanScheduleBlock(row)
}

func (r *PgRepository) ListScheduleBlocks(ctx context.Context, professionalID *uuid.UUID, limit int) ([]ScheduleBlock, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+blockCols+` FROM schedule_blocks
		WHERE $1::uuid IS NULL OR professional_id = $1
		ORDER BY start_time, id
		LIMIT $2
	`, professionalID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ScheduleBlock
	for rows.Next() {
		b, err := scanScheduleBlock(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}
	return result, rows.Err()
}

// Overlap predicates. Both use the half-open test start < other.end AND other.start < end.

func (r *PgRepository) HasActiveOverlap(ctx context.Context, kind SubjectKind, subjectID uuid.UUID, iv Interval) (bool, error) {
	var column string
	switch kind {
	case SubjectPatient:
		column = "patient_id"
	case SubjectProfessional:
		column = "professional_id"
	default:
		return false, fmt.Errorf("unknown subject kind %q", kind)
	}

	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE `+column+` = $1
			  AND status_id = ANY($2)
			  AND start_time < $4
			  AND $3 < end_time
		)
	`, subjectID, r.statuses.active, iv.Start, iv.End).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check %s overlap: %w", kind, err)
	}
	return exists, nil
}

func (r *PgRepository) HasScheduleBlock(ctx context.Context, professionalID uuid.UUID, iv Interval) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM schedule_blocks
			WHERE professional_id = $1
			  AND start_time < $3
			  AND $2 < end_time
		)
	`, professionalID, iv.Start, iv.End).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check schedule block: %w", err)
	}
	return exists, nil
}

// Appointments

const appointmentCols = `id, patient_id, professional_id, status_id, start_time, end_time,
	created_at, updated_at, confirmed_at, cancelled_at`

func (r *PgRepository) InsertAppointment(ctx context.Context, a *Appointment) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO appointments (id, patient_id, professional_id, status_id, start_time, end_time,
			created_at, updated_at, confirmed_at, cancelled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, a.ID, a.PatientID, a.ProfessionalID, r.statuses.id(a.Status), a.StartTime, a.EndTime,
		a.CreatedAt, a.UpdatedAt, a.ConfirmedAt, a.CancelledAt)
	if err != nil {
		return mapWriteError(errors.Wrap(err, "insert appointment"))
	}
	return nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+appointmentCols+` FROM appointments WHERE id = $1`, id)
	return r.scanAppointment(row)
}

func (r *PgRepository) GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	if r.tx == nil {
		return nil, errors.New("GetAppointmentForUpdate requires a transaction")
	}
	row := r.db.QueryRow(ctx, `SELECT `+appointmentCols+` FROM appointments WHERE id = $1 FOR UPDATE`, id)
	return r.scanAppointment(row)
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, a *Appointment) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET status_id = $2,
		    confirmed_at = $3,
		    cancelled_at = $4,
		    updated_at = $5
		WHERE id = $1
	`, a.ID, r.statuses.id(a.Status), a.ConfirmedAt, a.CancelledAt, a.UpdatedAt)
	if err != nil {
		return mapWriteError(errors.Wrap(err, "update appointment"))
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.ProfessionalID != nil {
		add("professional_id = $%d", *f.ProfessionalID)
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.RangeStart != nil {
		add("end_time > $%d", *f.RangeStart)
	}
	if f.RangeEnd != nil {
		add("start_time < $%d", *f.RangeEnd)
	}
	if f.ActiveOnly {
		add("status_id = ANY($%d)", r.statuses.active)
	}

	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit)

	var query string
	if f.RangeStart == nil && f.RangeEnd == nil {
		// No window: the most recent records, presented in agenda order.
		query = fmt.Sprintf(`
			SELECT %[1]s FROM (
				SELECT %[1]s FROM appointments %[2]s
				ORDER BY created_at DESC, id DESC
				LIMIT $%[3]d
			) recent
			ORDER BY start_time, id`, appointmentCols, clause, len(args))
	} else {
		query = fmt.Sprintf(`
			SELECT %s FROM appointments %s
			ORDER BY start_time, id
			LIMIT $%d`, appointmentCols, clause, len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return r.collectAppointments(rows)
}

func (r *PgRepository) FindStaleReserved(ctx context.Context, createdBefore time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id
		FROM appointments
		WHERE status_id = $1
		  AND created_at < $2
		ORDER BY created_at
		LIMIT $3
	`, r.statuses.id(StatusReserved), createdBefore, limit)
	if err != nil {
		return nil, err
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("find stale reservations: %w", err)
	}
	return ids, nil
}

// Event logging

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, actor, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.AppointmentID, ev.Actor, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
