package appointment

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Error kinds. Every error the service returns matches exactly one of these
// through errors.Is, so callers can branch on the kind without knowing the
// specific cause.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotFound            = errors.New("not found")
	ErrPreconditionFailed  = errors.New("precondition failed")
	ErrIllegalTransition   = errors.New("illegal status transition")
	ErrPersistenceConflict = errors.New("persistence conflict")
	ErrPersistenceFailure  = errors.New("persistence failure")
)

// kindError is a specific sentinel that also matches its kinds.
type kindError struct {
	msg   string
	kinds []error
}

func newKindError(msg string, kinds ...error) error {
	return &kindError{msg: msg, kinds: kinds}
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Is(target error) bool {
	for _, k := range e.kinds {
		if target == k {
			return true
		}
	}
	return false
}

// ErrInactiveSubject matches both inactive patient and inactive professional.
var ErrInactiveSubject = newKindError("subject is inactive", ErrPreconditionFailed)

var (
	ErrInvalidInterval       = newKindError("end must be after start", ErrInvalidInput)
	ErrInvalidRange          = newKindError("range end must be after range start", ErrInvalidInput)
	ErrUnknownEvent          = newKindError("unknown lifecycle event", ErrInvalidInput)
	ErrInvalidContactChannel = newKindError("contact channel must be whatsapp, telegram or sms", ErrInvalidInput)
	ErrMissingName           = newKindError("name is required", ErrInvalidInput)
	ErrInvalidSlotMinutes    = newKindError("slot minutes must be positive", ErrInvalidInput)

	ErrPatientNotFound       = newKindError("patient not found", ErrNotFound)
	ErrProfessionalNotFound  = newKindError("professional not found", ErrNotFound)
	ErrAppointmentNotFound   = newKindError("appointment not found", ErrNotFound)
	ErrScheduleBlockNotFound = newKindError("schedule block not found", ErrNotFound)

	ErrInactivePatient      = newKindError("patient is inactive", ErrInactiveSubject, ErrPreconditionFailed)
	ErrInactiveProfessional = newKindError("professional is inactive", ErrInactiveSubject, ErrPreconditionFailed)
	ErrPatientConflict      = newKindError("patient has an active appointment overlapping the interval", ErrPreconditionFailed)
	ErrProfessionalConflict = newKindError("professional has an active appointment overlapping the interval", ErrPreconditionFailed)
	ErrScheduleBlocked      = newKindError("professional is unavailable in the interval", ErrPreconditionFailed)

	ErrDuplicateStart    = newKindError("subject already has an appointment starting at that instant", ErrPersistenceConflict)
	ErrBookingInProgress = newKindError("another booking for the same subject is in progress", ErrPersistenceConflict)
)

// Kind labels, used for metrics and HTTP mapping.
const (
	KindOK                  = "ok"
	KindInvalidInput        = "invalid_input"
	KindNotFound            = "not_found"
	KindPreconditionFailed  = "precondition_failed"
	KindIllegalTransition   = "illegal_transition"
	KindPersistenceConflict = "persistence_conflict"
	KindPersistenceFailure  = "persistence_failure"
)

func KindOf(err error) string {
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrPreconditionFailed):
		return KindPreconditionFailed
	case errors.Is(err, ErrIllegalTransition):
		return KindIllegalTransition
	case errors.Is(err, ErrPersistenceConflict):
		return KindPersistenceConflict
	default:
		return KindPersistenceFailure
	}
}

// classify guarantees err carries a kind. Anything the domain did not
// recognise is an infrastructure problem.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindPersistenceFailure || errors.Is(err, ErrPersistenceFailure) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errors.Mark(errors.Wrap(err, "operation aborted"), ErrPersistenceFailure)
	}
	return errors.Mark(err, ErrPersistenceFailure)
}
