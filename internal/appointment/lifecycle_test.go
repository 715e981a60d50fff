package appointment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allEvents = []Event{EventConfirm, EventCancel, EventLapse, EventMarkNoShow, EventMarkCompleted}

func TestNextStatus_Legal(t *testing.T) {
	tests := []struct {
		from Status
		ev   Event
		want Status
	}{
		{StatusReserved, EventConfirm, StatusConfirmed},
		{StatusReserved, EventCancel, StatusCancelled},
		{StatusReserved, EventLapse, StatusCancelled},
		{StatusConfirmed, EventCancel, StatusCancelled},
		{StatusConfirmed, EventMarkNoShow, StatusNoShow},
		{StatusConfirmed, EventMarkCompleted, StatusCompleted},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"+"+string(tt.ev), func(t *testing.T) {
			got, err := NextStatus(tt.from, tt.ev)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextStatus_EveryOtherPairIsIllegal(t *testing.T) {
	legal := 0
	for _, from := range AllStatuses {
		for _, ev := range allEvents {
			_, inTable := transitions[transitionKey{from: from, event: ev}]
			_, err := NextStatus(from, ev)
			if inTable {
				legal++
				assert.NoError(t, err, "%s + %s", from, ev)
				continue
			}
			assert.ErrorIs(t, err, ErrIllegalTransition, "%s + %s", from, ev)
		}
	}
	assert.Equal(t, 6, legal)
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	for _, from := range []Status{StatusCancelled, StatusNoShow, StatusCompleted} {
		for _, ev := range allEvents {
			_, err := NextStatus(from, ev)
			assert.ErrorIs(t, err, ErrIllegalTransition, "%s + %s", from, ev)
		}
	}
}

func TestReachableStatusesFromReserved(t *testing.T) {
	seen := map[Status]bool{}
	queue := []Status{StatusReserved}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, ev := range allEvents {
			next, err := NextStatus(cur, ev)
			if err != nil || seen[next] {
				continue
			}
			seen[next] = true
			queue = append(queue, next)
		}
	}

	assert.Equal(t, map[Status]bool{
		StatusConfirmed: true,
		StatusCancelled: true,
		StatusNoShow:    true,
		StatusCompleted: true,
	}, seen)
}

func TestApply_StampsTimestamps(t *testing.T) {
	created := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	a := Appointment{Status: StatusReserved, CreatedAt: created, UpdatedAt: created}

	confirmedAt := created.Add(time.Minute)
	require.NoError(t, a.Apply(EventConfirm, confirmedAt))
	assert.Equal(t, StatusConfirmed, a.Status)
	require.NotNil(t, a.ConfirmedAt)
	assert.True(t, a.ConfirmedAt.Equal(confirmedAt))
	assert.Nil(t, a.CancelledAt)

	err := a.Apply(EventConfirm, confirmedAt.Add(time.Minute))
	require.ErrorIs(t, err, ErrIllegalTransition)
	assert.True(t, a.ConfirmedAt.Equal(confirmedAt), "confirmation instant is set once")

	cancelledAt := confirmedAt.Add(time.Hour)
	require.NoError(t, a.Apply(EventCancel, cancelledAt))
	assert.Equal(t, StatusCancelled, a.Status)
	require.NotNil(t, a.CancelledAt)
	assert.True(t, a.CancelledAt.Equal(cancelledAt))
	assert.True(t, a.UpdatedAt.Equal(cancelledAt))
}

func TestApply_IllegalLeavesAppointmentUntouched(t *testing.T) {
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	a := Appointment{Status: StatusCompleted, UpdatedAt: now}
	before := a

	err := a.Apply(EventCancel, now.Add(time.Hour))
	require.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, before, a)
}

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent("mark_no_show")
	require.NoError(t, err)
	assert.Equal(t, EventMarkNoShow, ev)

	_, err = ParseEvent("reopen")
	require.ErrorIs(t, err, ErrUnknownEvent)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
