package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zerohandoff/zhc-plane/internal/config"
	"github.com/zerohandoff/zhc-plane/internal/database/providers/sqlite"
	"github.com/zerohandoff/zhc-plane/internal/registry"
)

func newTestServer(t *testing.T) (*Server, *registry.Registry) {
	t.Helper()
	ctx := context.Background()

	dbCfg := &config.DatabaseConfig{
		Provider: "sqlite",
		TaskDB:   ":memory:",
		SQLite:   config.SQLiteConfig{Path: ":memory:", BusyTimeout: 5 * time.Second},
	}
	provider, err := sqlite.New(ctx, dbCfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { provider.Close() })

	reg, err := registry.New(ctx, provider, zap.NewNop())
	require.NoError(t, err)

	srv := &Server{
		provider: provider,
		registry: reg,
		logger:   zap.NewNop(),
	}
	srv.router = nil // route registration is exercised through New() in integration deploys, not here
	return srv, reg
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.handleHealth(w, req)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ok", body["status"])
}

func TestReadyEndpointHealthy(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	srv.handleReady(w, req)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ready", body["status"])
}

func TestOpsSelfCheckEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/ops/selfcheck", nil)
	w := httptest.NewRecorder()
	srv.handleOpsSelfCheck(w, req)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, true, body["lease_round_trip"])
	require.Equal(t, true, body["idempotency_round_trip"])
}

func TestOpsHealthEndpoint(t *testing.T) {
	srv, reg := newTestServer(t)
	ctx := context.Background()

	_, err := reg.CreateTask(ctx, "task-1", "code_review", "review this diff",
		registry.RouteLight, false, registry.RiskLow, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", nil)
	w := httptest.NewRecorder()
	srv.handleOpsHealth(w, req)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Contains(t, body, "ops")
	require.Contains(t, body, "telemetry")
}

func TestGracefulShutdown(t *testing.T) {
	logger := zap.NewNop()
	cfg := &config.HTTPConfig{
		Host:            "localhost",
		Port:            0,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}

	srv, _ := newTestServer(t)
	srv.server = &http.Server{Addr: cfg.Address()}
	srv.logger = logger

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
}
