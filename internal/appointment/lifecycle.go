package appointment

import (
	"time"

	"github.com/cockroachdb/errors"
)

type Event string

const (
	EventConfirm       Event = "confirm"
	EventCancel        Event = "cancel"
	EventLapse         Event = "lapse"
	EventMarkNoShow    Event = "mark_no_show"
	EventMarkCompleted Event = "mark_completed"
)

var knownEvents = map[Event]bool{
	EventConfirm:       true,
	EventCancel:        true,
	EventLapse:         true,
	EventMarkNoShow:    true,
	EventMarkCompleted: true,
}

func ParseEvent(raw string) (Event, error) {
	ev := Event(raw)
	if !knownEvents[ev] {
		return "", errors.Wrapf(ErrUnknownEvent, "%q", raw)
	}
	return ev, nil
}

type transitionKey struct {
	from  Status
	event Event
}

// transitions is the whole lifecycle. Pairs missing here are illegal.
var transitions = map[transitionKey]Status{
	{StatusReserved, EventConfirm}: StatusConfirmed,
	{StatusReserved, EventCancel}:  StatusCancelled,
	{StatusReserved, EventLapse}:   StatusCancelled,

	{StatusConfirmed, EventCancel}:        StatusCancelled,
	{StatusConfirmed, EventMarkNoShow}:    StatusNoShow,
	{StatusConfirmed, EventMarkCompleted}: StatusCompleted,
}

// NextStatus looks up the status reached by applying ev in from.
func NextStatus(from Status, ev Event) (Status, error) {
	next, ok := transitions[transitionKey{from: from, event: ev}]
	if !ok {
		return "", errors.Wrapf(ErrIllegalTransition, "%s + %s", from, ev)
	}
	return next, nil
}

// Apply moves the appointment through ev, stamping confirmed_at or
// cancelled_at when that status is reached. On error a is left untouched.
func (a *Appointment) Apply(ev Event, now time.Time) error {
	next, err := NextStatus(a.Status, ev)
	if err != nil {
		return err
	}

	now = Canonical(now)
	switch next {
	case StatusConfirmed:
		a.ConfirmedAt = &now
	case StatusCancelled:
		a.CancelledAt = &now
	}
	a.Status = next
	a.UpdatedAt = now
	return nil
}
