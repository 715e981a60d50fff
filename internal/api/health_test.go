package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ready(t *testing.T, h *HealthHandler) (*httptest.ResponseRecorder, ReadinessResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	return rec, decode[ReadinessResponse](t, rec)
}

func TestReadiness_AnyDownDependencyIsUnready(t *testing.T) {
	h := NewHealthHandler("test", "v1",
		DependencyCheck{Name: "postgres", Ping: func(context.Context) error { return nil }},
		DependencyCheck{Name: "redis", Ping: func(context.Context) error { return errors.New("connection refused") }},
	)

	rec, resp := ready(t, h)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, map[string]string{"postgres": "ok", "redis": "down"}, resp.Dependencies)
}

func TestReadiness_HungCheckTimesOut(t *testing.T) {
	h := NewHealthHandler("test", "v1", DependencyCheck{Name: "postgres", Ping: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	start := time.Now()
	rec, resp := ready(t, h)
	assert.Less(t, time.Since(start), readinessTimeout)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "down", resp.Dependencies["postgres"])
}

func TestReadiness_NoChecksIsReady(t *testing.T) {
	rec, resp := ready(t, NewHealthHandler("test", "v1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", resp.Status)
	assert.Empty(t, resp.Dependencies)
}
