package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/turnos-scheduling/internal/appointment"
	"github.com/hackgods/turnos-scheduling/internal/appointment/memstore"
	"github.com/hackgods/turnos-scheduling/internal/clock"
	"github.com/hackgods/turnos-scheduling/internal/config"
	"github.com/hackgods/turnos-scheduling/internal/metrics"
)

func TestRunOnce_ExportsSweepMetrics(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManualClock(time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))
	m := metrics.NewCollector(prometheus.NewRegistry())
	store := memstore.New()

	svc := appointment.NewService(store, memstore.NewLocker(), config.Config{ReservationTTL: 10 * time.Minute},
		appointment.WithClock(clk),
		appointment.WithMetrics(m),
	)

	pat, err := svc.CreatePatient(ctx, appointment.NewPatient{Name: "Ana"})
	require.NoError(t, err)
	prof, err := svc.CreateProfessional(ctx, appointment.NewProfessional{Name: "Dr. Paz"})
	require.NoError(t, err)
	_, err = svc.BookAppointment(ctx, appointment.BookingRequest{
		PatientID:      pat.ID,
		ProfessionalID: prof.ID,
		Start:          time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC),
		End:            time.Date(2026, 1, 2, 10, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	clk.Add(time.Hour)
	runOnce(ctx, svc, zerolog.Nop())

	srv := newMetricsServer("0", m)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "turnos_sweep_lapsed_total 1")
	assert.Contains(t, body, `turnos_lifecycle_transitions_total{event="lapse",result="ok"} 1`)
}
