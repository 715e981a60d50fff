package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/turnos-scheduling/internal/appointment"
)

const (
	readinessTimeout = 2 * time.Second
	checkTimeout     = 1 * time.Second
)

// DependencyCheck reports whether one backing dependency can serve bookings.
type DependencyCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

func postgresCheck(pool *pgxpool.Pool) DependencyCheck {
	return DependencyCheck{Name: "postgres", Ping: pool.Ping}
}

func redisCheck(client *redis.Client) DependencyCheck {
	return DependencyCheck{Name: "redis", Ping: func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}}
}

// statusCatalogCheck fails when the service came up without the five
// lifecycle statuses, which would make every status lookup fail.
func statusCatalogCheck(svc *appointment.Service) DependencyCheck {
	return DependencyCheck{Name: "status_catalog", Ping: func(context.Context) error {
		if n := len(svc.ListStatuses()); n != len(appointment.AllStatuses) {
			return errors.Newf("status catalog has %d entries", n)
		}
		return nil
	}}
}

// routerChecks lists the checks the router can build from its config.
// Nil dependencies are skipped so the in-memory server stays ready.
func routerChecks(cfg RouterConfig) []DependencyCheck {
	var checks []DependencyCheck
	if cfg.PgPool != nil {
		checks = append(checks, postgresCheck(cfg.PgPool))
	}
	if cfg.Redis != nil {
		checks = append(checks, redisCheck(cfg.Redis))
	}
	if cfg.Service != nil {
		checks = append(checks, statusCatalogCheck(cfg.Service))
	}
	return checks
}

type HealthHandler struct {
	checks  []DependencyCheck
	env     string
	version string
}

func NewHealthHandler(env, version string, checks ...DependencyCheck) *HealthHandler {
	return &HealthHandler{checks: checks, env: env, version: version}
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{Status: "ok", Version: h.version, Env: h.env})
}

// Readiness runs every check in parallel. Any failing dependency makes the
// instance unready, since a booking touches all of them.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	deps := h.runChecks(ctx)

	resp := ReadinessResponse{Status: "ok", Version: h.version, Env: h.env, Dependencies: deps}
	code := http.StatusOK
	for _, state := range deps {
		if state != "ok" {
			resp.Status = "error"
			code = http.StatusServiceUnavailable
			break
		}
	}
	writeJSON(w, code, resp)
}

func (h *HealthHandler) runChecks(ctx context.Context) map[string]string {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		deps = make(map[string]string, len(h.checks))
	)
	for _, c := range h.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()

			state := "ok"
			if err := c.Ping(checkCtx); err != nil {
				state = "down"
			}
			mu.Lock()
			deps[c.Name] = state
			mu.Unlock()
		}()
	}
	wg.Wait()
	return deps
}
