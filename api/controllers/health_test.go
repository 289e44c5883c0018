package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/livo-backend/pkg/config"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthLive(t *testing.T) {
	cfg := &config.Config{}
	cfg.App.Env = "test"
	resp := httptest.NewRecorder()

	HealthLive(cfg).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "test", resp.Header().Get("X-Livo-Env"))
	require.Contains(t, resp.Body.String(), `"status":"live"`)
}

func TestHealthReadyAllUp(t *testing.T) {
	cfg := &config.Config{}
	ok := pingFunc(func(context.Context) error { return nil })
	resp := httptest.NewRecorder()

	HealthReady(cfg, nil, Dependency{Name: "database", Pinger: ok}, Dependency{Name: "redis", Pinger: ok}).
		ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"database":"up"`)
	require.Contains(t, resp.Body.String(), `"redis":"up"`)
}

func TestHealthReadyReportsDownDependency(t *testing.T) {
	cfg := &config.Config{}
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })
	resp := httptest.NewRecorder()

	HealthReady(cfg, nil, Dependency{Name: "database", Pinger: ok}, Dependency{Name: "redis", Pinger: down}).
		ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
	require.Contains(t, resp.Body.String(), `"redis":"down"`)
}
