// Package memstore holds in-memory implementations of the appointment
// repository and subject locker, used by tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/hackgods/turnos-scheduling/internal/appointment"
)

type dataset struct {
	patients      map[uuid.UUID]appointment.Patient
	professionals map[uuid.UUID]appointment.Professional
	blocks        map[uuid.UUID]appointment.ScheduleBlock
	appointments  map[uuid.UUID]appointment.Appointment
	events        []appointment.EventLog
	lastEventID   int64
}

func newDataset() *dataset {
	return &dataset{
		patients:      map[uuid.UUID]appointment.Patient{},
		professionals: map[uuid.UUID]appointment.Professional{},
		blocks:        map[uuid.UUID]appointment.ScheduleBlock{},
		appointments:  map[uuid.UUID]appointment.Appointment{},
	}
}

// txState is the undo log of one open transaction, newest entry last.
type txState struct {
	undo []func(d *dataset)
}

type shared struct {
	// txMu serializes transactions and non-transactional row updates,
	// standing in for row locks.
	txMu sync.Mutex

	mu     sync.Mutex
	data   *dataset
	faults map[string]error
}

// Store is a map-backed appointment.Repository. Transactions are fully
// serialized; a failed one undoes only its own writes. Writes made outside a
// transaction commit immediately.
type Store struct {
	s  *shared
	tx *txState
}

var _ appointment.Repository = (*Store)(nil)

func New() *Store {
	return &Store{s: &shared{data: newDataset(), faults: map[string]error{}}}
}

// Fail makes every later call of the named repository method return err.
// A nil err clears the fault.
func (st *Store) Fail(method string, err error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if err == nil {
		delete(st.s.faults, method)
		return
	}
	st.s.faults[method] = err
}

func (st *Store) fault(method string) error {
	return st.s.faults[method]
}

// Events returns a copy of every logged event, oldest first.
func (st *Store) Events() []appointment.EventLog {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	return append([]appointment.EventLog(nil), st.s.data.events...)
}

// Appointments returns every stored appointment ordered by start.
func (st *Store) Appointments() []appointment.Appointment {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	out := make([]appointment.Appointment, 0, len(st.s.data.appointments))
	for _, a := range st.s.data.appointments {
		out = append(out, a)
	}
	sortByStart(out)
	return out
}

func (st *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx appointment.Repository) error) error {
	if st.tx != nil {
		return fn(ctx, st)
	}

	st.s.txMu.Lock()
	defer st.s.txMu.Unlock()

	tx := &txState{}
	err := fn(ctx, &Store{s: st.s, tx: tx})
	if err == nil {
		st.s.mu.Lock()
		err = st.fault("Commit")
		st.s.mu.Unlock()
	}
	if err != nil {
		st.s.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i](st.s.data)
		}
		st.s.mu.Unlock()
		return err
	}
	return nil
}

// record appends an undo step to the open transaction. Callers hold mu.
func (st *Store) record(undo func(d *dataset)) {
	if st.tx != nil {
		st.tx.undo = append(st.tx.undo, undo)
	}
}

// rowLock makes a non-transactional update wait for the open transaction,
// which may hold the same row. Inside a transaction it is a no-op.
func (st *Store) rowLock() func() {
	if st.tx != nil {
		return func() {}
	}
	st.s.txMu.Lock()
	return st.s.txMu.Unlock
}

// put stores v under id in the map chosen by pick and logs how to undo it.
func put[V any](st *Store, pick func(d *dataset) map[uuid.UUID]V, id uuid.UUID, v V) {
	m := pick(st.s.data)
	prev, existed := m[id]
	m[id] = v
	st.record(func(d *dataset) {
		if existed {
			pick(d)[id] = prev
			return
		}
		delete(pick(d), id)
	})
}

func patients(d *dataset) map[uuid.UUID]appointment.Patient { return d.patients }
func professionals(d *dataset) map[uuid.UUID]appointment.Professional { return d.professionals }
func blocks(d *dataset) map[uuid.UUID]appointment.ScheduleBlock { return d.blocks }
func appointments(d *dataset) map[uuid.UUID]appointment.Appointment { return d.appointments }

func (st *Store) Statuses() []appointment.StatusRef {
	refs := make([]appointment.StatusRef, len(appointment.AllStatuses))
	for i, code := range appointment.AllStatuses {
		refs[i] = appointment.StatusRef{ID: int16(i + 1), Code: code}
	}
	return refs
}

// Subjects

func (st *Store) GetPatientByID(_ context.Context, id uuid.UUID) (*appointment.Patient, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if err := st.fault("GetPatientByID"); err != nil {
		return nil, err
	}
	p, ok := st.s.data.patients[id]
	if !ok {
		return nil, appointment.ErrPatientNotFound
	}
	return &p, nil
}

func (st *Store) GetProfessionalByID(_ context.Context, id uuid.UUID) (*appointment.Professional, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if err := st.fault("GetProfessionalByID"); err != nil {
		return nil, err
	}
	p, ok := st.s.data.professionals[id]
	if !ok {
		return nil, appointment.ErrProfessionalNotFound
	}
	return &p, nil
}

func (st *Store) CreatePatient(_ context.Context, p *appointment.Patient) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if err := st.fault("CreatePatient"); err != nil {
		return err
	}
	put(st, patients, p.ID, *p)
	return nil
}

func (st *Store) CreateProfessional(_ context.Context, p *appointment.Professional) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if err := st.fault("CreateProfessional"); err != nil {
		return err
	}
	put(st, professionals, p.ID, *p)
	return nil
}

func (st *Store) ListPatients(_ context.Context, limit, offset int) ([]appointment.Patient, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	out := make([]appointment.Patient, 0, len(st.s.data.patients))
	for _, p := range st.s.data.patients {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return page(out, limit, offset), nil
}

func (st *Store) ListProfessionals(_ context.Context, limit, offset int) ([]appointment.Professional, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	out := make([]appointment.Professional, 0, len(st.s.data.professionals))
	for _, p := range st.s.data.professionals {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return page(out, limit, offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func (st *Store) SetPatientActive(_ context.Context, id uuid.UUID, active bool, now time.Time) error {
	unlock := st.rowLock()
	defer unlock()
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	p, ok := st.s.data.patients[id]
	if !ok {
		return appointment.ErrPatientNotFound
	}
	p.Active, p.UpdatedAt = active, now
	put(st, patients, id, p)
	return nil
}

func (st *Store) SetProfessionalActive(_ context.Context, id uuid.UUID, active bool, now time.Time) error {
	unlock := st.rowLock()
	defer unlock()
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	p, ok := st.s.data.professionals[id]
	if !ok {
		return appointment.ErrProfessionalNotFound
	}
	p.Active, p.UpdatedAt = active, now
	put(st, professionals, id, p)
	return nil
}

// Schedule blocks

func (st *Store) CreateScheduleBlock(_ context.Context, b *appointment.ScheduleBlock) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.data.professionals[b.ProfessionalID]; !ok {
		return errors.Wrap(appointment.ErrProfessionalNotFound, "schedule block professional")
	}
	put(st, blocks, b.ID, *b)
	return nil
}

func (st *Store) GetScheduleBlockByID(_ context.Context, id uuid.UUID) (*appointment.ScheduleBlock, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	b, ok := st.s.data.blocks[id]
	if !ok {
		return nil, appointment.ErrScheduleBlockNotFound
	}
	return &b, nil
}

func (st *Store) ListScheduleBlocks(_ context.Context, professionalID *uuid.UUID, limit int) ([]appointment.ScheduleBlock, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	var out []appointment.ScheduleBlock
	for _, b := range st.s.data.blocks {
		if professionalID != nil && b.ProfessionalID != *professionalID {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return page(out, limit, 0), nil
}

// Overlap predicates

func (st *Store) HasActiveOverlap(_ context.Context, kind appointment.SubjectKind, subjectID uuid.UUID, iv appointment.Interval) (bool, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if err := st.fault("HasActiveOverlap"); err != nil {
		return false, err
	}
	for _, a := range st.s.data.appointments {
		if !a.Status.Active() || !a.Interval().Overlaps(iv) {
			continue
		}
		switch kind {
		case appointment.SubjectPatient:
			if a.PatientID == subjectID {
				return true, nil
			}
		case appointment.SubjectProfessional:
			if a.ProfessionalID == subjectID {
				return true, nil
			}
		default:
			return false, errors.Newf("unknown subject kind %q", kind)
		}
	}
	return false, nil
}

func (st *Store) HasScheduleBlock(_ context.Context, professionalID uuid.UUID, iv appointment.Interval) (bool, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	for _, b := range st.s.data.blocks {
		if b.ProfessionalID == professionalID && b.Interval().Overlaps(iv) {
			return true, nil
		}
	}
	return false, nil
}

// Appointments

func (st *Store) InsertAppointment(_ context.Context, a *appointment.Appointment) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if err := st.fault("InsertAppointment"); err != nil {
		return err
	}
	if _, ok := st.s.data.patients[a.PatientID]; !ok {
		return errors.Wrap(appointment.ErrPatientNotFound, "appointment patient")
	}
	if _, ok := st.s.data.professionals[a.ProfessionalID]; !ok {
		return errors.Wrap(appointment.ErrProfessionalNotFound, "appointment professional")
	}
	for _, other := range st.s.data.appointments {
		if !other.StartTime.Equal(a.StartTime) {
			continue
		}
		if other.ProfessionalID == a.ProfessionalID {
			return errors.Wrap(appointment.ErrDuplicateStart, "uq_appointment_professional_start")
		}
		if other.PatientID == a.PatientID {
			return errors.Wrap(appointment.ErrDuplicateStart, "uq_appointment_patient_start")
		}
	}
	put(st, appointments, a.ID, *a)
	return nil
}

func (st *Store) GetAppointmentByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if err := st.fault("GetAppointmentByID"); err != nil {
		return nil, err
	}
	a, ok := st.s.data.appointments[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return &a, nil
}

func (st *Store) GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	if st.tx == nil {
		return nil, errors.New("GetAppointmentForUpdate requires a transaction")
	}
	return st.GetAppointmentByID(ctx, id)
}

func (st *Store) UpdateAppointment(_ context.Context, a *appointment.Appointment) error {
	unlock := st.rowLock()
	defer unlock()
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if err := st.fault("UpdateAppointment"); err != nil {
		return err
	}
	if _, ok := st.s.data.appointments[a.ID]; !ok {
		return appointment.ErrAppointmentNotFound
	}
	put(st, appointments, a.ID, *a)
	return nil
}

func (st *Store) ListAppointments(_ context.Context, f appointment.ListFilter) ([]appointment.Appointment, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if err := st.fault("ListAppointments"); err != nil {
		return nil, err
	}

	var out []appointment.Appointment
	for _, a := range st.s.data.appointments {
		switch {
		case f.ProfessionalID != nil && a.ProfessionalID != *f.ProfessionalID:
			continue
		case f.PatientID != nil && a.PatientID != *f.PatientID:
			continue
		case f.RangeStart != nil && !a.EndTime.After(*f.RangeStart):
			continue
		case f.RangeEnd != nil && !a.StartTime.Before(*f.RangeEnd):
			continue
		case f.ActiveOnly && !a.Status.Active():
			continue
		}
		out = append(out, a)
	}

	if f.RangeStart == nil && f.RangeEnd == nil {
		sort.Slice(out, func(i, j int) bool {
			if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
				return out[i].CreatedAt.After(out[j].CreatedAt)
			}
			return out[i].ID.String() > out[j].ID.String()
		})
		out = page(out, f.Limit, 0)
		sortByStart(out)
		return out, nil
	}

	sortByStart(out)
	return page(out, f.Limit, 0), nil
}

func sortByStart(items []appointment.Appointment) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].StartTime.Equal(items[j].StartTime) {
			return items[i].StartTime.Before(items[j].StartTime)
		}
		return items[i].ID.String() < items[j].ID.String()
	})
}

func (st *Store) FindStaleReserved(_ context.Context, createdBefore time.Time, limit int) ([]uuid.UUID, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if err := st.fault("FindStaleReserved"); err != nil {
		return nil, err
	}

	var stale []appointment.Appointment
	for _, a := range st.s.data.appointments {
		if a.Status == appointment.StatusReserved && a.CreatedAt.Before(createdBefore) {
			stale = append(stale, a)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })
	stale = page(stale, limit, 0)

	ids := make([]uuid.UUID, len(stale))
	for i, a := range stale {
		ids[i] = a.ID
	}
	return ids, nil
}

// Event logging

func (st *Store) InsertEvent(_ context.Context, ev appointment.EventLog) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if err := st.fault("InsertEvent"); err != nil {
		return err
	}
	st.s.data.lastEventID++
	ev.ID = st.s.data.lastEventID
	st.s.data.events = append(st.s.data.events, ev)
	st.record(func(d *dataset) {
		for i := range d.events {
			if d.events[i].ID == ev.ID {
				d.events = append(d.events[:i], d.events[i+1:]...)
				return
			}
		}
	})
	return nil
}
