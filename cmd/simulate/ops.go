package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	openingHour = 8
	closingHour = 18
)

// transitionPaths are the lifecycle endpoints a simulated caller may hit.
var transitionPaths = []string{"confirm", "confirm", "cancel", "complete", "no-show"}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.TransitionRatio:
				s.doTransition(ctx, rng)
			default:
				switch rng.Intn(3) {
				case 0:
					s.doReadByID(ctx, rng)
				case 1:
					s.doListByPatient(ctx, rng)
				case 2:
					s.doListByProfessional(ctx, rng)
				}
			}
		}
	}
}

// randomWindow picks a slot-aligned start in working hours within the next
// Days days. Durations span one or two slots and starts are shifted by half
// a slot now and then, so overlapping but non-identical intervals collide.
func (s *Simulator) randomWindow(rng *rand.Rand, slotMinutes int) (time.Time, time.Time) {
	day := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, 1+rng.Intn(s.config.Days))
	slots := (closingHour - openingHour) * 60 / slotMinutes
	if slots < 1 {
		slots = 1
	}
	slot := time.Duration(slotMinutes) * time.Minute

	start := day.Add(openingHour*time.Hour + time.Duration(rng.Intn(slots))*slot)
	if rng.Intn(4) == 0 {
		start = start.Add(slot / 2)
	}
	return start, start.Add(time.Duration(1+rng.Intn(2)) * slot)
}

func (s *Simulator) newRequest(ctx context.Context, method, path string, body any) *http.Request {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}

	req, _ := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.Token)
	}
	return req
}

func (s *Simulator) do(req *http.Request) (*http.Response, time.Duration, error) {
	start := time.Now()
	resp, err := s.client.Do(req)
	return resp, time.Since(start), err
}

func isConflict(code int) bool {
	return code == http.StatusConflict || code == http.StatusUnprocessableEntity
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	prof := s.pool.Professionals[rng.Intn(len(s.pool.Professionals))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	start, end := s.randomWindow(rng, prof.SlotMinutes)

	req := s.newRequest(ctx, http.MethodPost, "/appointments", map[string]any{
		"patient_id":      patientID.String(),
		"professional_id": prof.ID.String(),
		"start":           start.Format(time.RFC3339),
		"end":             end.Format(time.RFC3339),
	})

	resp, latency, err := s.do(req)

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusCreated:
			success = true
			var created struct {
				ID uuid.UUID `json:"id"`
			}
			if json.NewDecoder(resp.Body).Decode(&created) == nil && created.ID != uuid.Nil {
				s.pool.AddAppointment(created.ID)
			}
		case isConflict(resp.StatusCode):
			conflict = true
		}
	}

	s.metrics.Booking.Record(latency, success, conflict)
}

func (s *Simulator) doTransition(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	action := transitionPaths[rng.Intn(len(transitionPaths))]

	req := s.newRequest(ctx, http.MethodPost, fmt.Sprintf("/appointments/%s/%s", apptID, action), nil)
	resp, latency, err := s.do(req)

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
		conflict = isConflict(resp.StatusCode)
	}

	s.metrics.Transition.Record(latency, success, conflict)
}

func (s *Simulator) doRead(req *http.Request, om *OperationMetrics) {
	resp, latency, err := s.do(req)

	success := false
	if err == nil {
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		success = resp.StatusCode == http.StatusOK
	}

	om.Record(latency, success, false)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	s.doRead(s.newRequest(ctx, http.MethodGet, "/appointments/"+apptID.String(), nil), &s.metrics.ReadByID)
}

func (s *Simulator) doListByPatient(ctx context.Context, rng *rand.Rand) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	q := url.Values{"patient_id": {patientID.String()}, "limit": {"20"}}
	s.doRead(s.newRequest(ctx, http.MethodGet, "/appointments?"+q.Encode(), nil), &s.metrics.ListByPatient)
}

func (s *Simulator) doListByProfessional(ctx context.Context, rng *rand.Rand) {
	prof := s.pool.Professionals[rng.Intn(len(s.pool.Professionals))]
	start, _ := s.randomWindow(rng, prof.SlotMinutes)
	day := start.Truncate(24 * time.Hour)

	q := url.Values{
		"professional_id": {prof.ID.String()},
		"range_start":     {day.Format(time.RFC3339)},
		"range_end":       {day.Add(24 * time.Hour).Format(time.RFC3339)},
		"active_only":     {"true"},
	}
	s.doRead(s.newRequest(ctx, http.MethodGet, "/appointments?"+q.Encode(), nil), &s.metrics.ListByProfessional)
}
