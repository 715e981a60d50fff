package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/turnos-scheduling/internal/appointment"
	"github.com/hackgods/turnos-scheduling/internal/auth"
	"github.com/hackgods/turnos-scheduling/internal/metrics"
)

type RouterConfig struct {
	Service *appointment.Service
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Env     string
	Version string
	Logger  zerolog.Logger
	Metrics *metrics.Collector
	// Tokens enables bearer authentication on the API routes when set.
	Tokens *auth.TokenService
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger, cfg.Metrics))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.Env, cfg.Version, routerChecks(cfg)...)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if cfg.Tokens != nil {
			r.Use(AuthMiddleware(cfg.Tokens))
		}

		svc := cfg.Service

		r.Get("/appointment-statuses", listStatusesHandler(svc))

		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", bookAppointmentHandler(svc))
			r.Get("/", listAppointmentsHandler(svc))
			r.Get("/{id}", getAppointmentHandler(svc))
			r.Post("/{id}/confirm", applyEventHandler(svc, appointment.EventConfirm))
			r.Post("/{id}/cancel", applyEventHandler(svc, appointment.EventCancel))
			r.Post("/{id}/complete", applyEventHandler(svc, appointment.EventMarkCompleted))
			r.Post("/{id}/no-show", applyEventHandler(svc, appointment.EventMarkNoShow))
		})

		r.Route("/patients", func(r chi.Router) {
			r.Post("/", createPatientHandler(svc))
			r.Get("/", listPatientsHandler(svc))
			r.Get("/{id}", getPatientHandler(svc))
			r.Post("/{id}/deactivate", setPatientActiveHandler(svc, false))
			r.Post("/{id}/activate", setPatientActiveHandler(svc, true))
		})

		r.Route("/professionals", func(r chi.Router) {
			r.Post("/", createProfessionalHandler(svc))
			r.Get("/", listProfessionalsHandler(svc))
			r.Get("/{id}", getProfessionalHandler(svc))
			r.Post("/{id}/deactivate", setProfessionalActiveHandler(svc, false))
			r.Post("/{id}/activate", setProfessionalActiveHandler(svc, true))
		})

		r.Route("/schedule-blocks", func(r chi.Router) {
			r.Post("/", createScheduleBlockHandler(svc))
			r.Get("/", listScheduleBlocksHandler(svc))
			r.Get("/{id}", getScheduleBlockHandler(svc))
		})
	})

	return r
}
