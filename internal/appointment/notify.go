package appointment

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// Notifier receives booking side effects. Implementations may fail; the
// service only logs the failure.
type Notifier interface {
	AppointmentCreated(ctx context.Context, appt Appointment) error
}

// Publisher is the transport a PublishingNotifier writes to.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type noopNotifier struct{}

func (noopNotifier) AppointmentCreated(context.Context, Appointment) error { return nil }

// CreatedMessage is the payload published for every new appointment.
type CreatedMessage struct {
	Type           string    `json:"type"`
	AppointmentID  uuid.UUID `json:"appointment_id"`
	PatientID      uuid.UUID `json:"patient_id"`
	ProfessionalID uuid.UUID `json:"professional_id"`
	Status         Status    `json:"status"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	CreatedAt      time.Time `json:"created_at"`
}

// PublishingNotifier publishes CreatedMessage JSON on a channel behind a
// circuit breaker, so an unavailable broker is skipped quickly instead of
// stalling every booking goroutine on timeouts.
type PublishingNotifier struct {
	pub     Publisher
	channel string
	breaker *gobreaker.CircuitBreaker[struct{}]
}

func NewPublishingNotifier(pub Publisher, channel string, log zerolog.Logger) *PublishingNotifier {
	settings := gobreaker.Settings{
		Name:        "notify:" + channel,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("notification breaker state change")
		},
	}

	return &PublishingNotifier{
		pub:     pub,
		channel: channel,
		breaker: gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

func (n *PublishingNotifier) AppointmentCreated(ctx context.Context, appt Appointment) error {
	payload, err := json.Marshal(CreatedMessage{
		Type:           "appointment.created",
		AppointmentID:  appt.ID,
		PatientID:      appt.PatientID,
		ProfessionalID: appt.ProfessionalID,
		Status:         appt.Status,
		StartTime:      appt.StartTime,
		EndTime:        appt.EndTime,
		CreatedAt:      appt.CreatedAt,
	})
	if err != nil {
		return errors.Wrap(err, "marshal created message")
	}

	_, err = n.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, n.pub.Publish(ctx, n.channel, payload)
	})
	return err
}
