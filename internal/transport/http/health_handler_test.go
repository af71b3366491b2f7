package http

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendscli/internal/config"
	"trendscli/internal/pipeline"
	"trendscli/internal/services"
)

type staticClientCounter int

func (c staticClientCounter) ClientCount() int { return int(c) }

func newHealthTestService(t *testing.T, withCredentials bool) *services.HealthService {
	t.Helper()

	base := t.TempDir()
	paths := &config.Paths{
		DataDir:         base,
		OutputDir:       filepath.Join(base, "output"),
		RawDir:          filepath.Join(base, "raw"),
		LogsDir:         filepath.Join(base, "logs"),
		CredentialsFile: filepath.Join(base, "credentials.dat"),
	}
	require.NoError(t, paths.EnsureDirectories())

	cfg := config.Default()
	cfg.Auth.CredentialsFile = filepath.Join(base, "absent.dat")
	if withCredentials {
		cfg.Auth.Username = "user"
		cfg.Auth.Password = "pass"
	} else {
		cfg.Auth.Username = ""
		cfg.Auth.Password = ""
	}

	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
	manager := pipeline.NewManager(nil, pipeline.NewRegistry(), nil, nil, logger)
	runs := services.NewRunServiceWithManager(manager, logger)
	t.Cleanup(runs.Stop)

	return services.NewHealthService("test", cfg, paths, runs, staticClientCounter(2), logger)
}

func setupHealthRouter(service *services.HealthService) chi.Router {
	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
	handler := NewHealthHandler(service, logger)

	r := chi.NewRouter()
	r.Get("/api/v1/health", handler.HealthCheck)
	r.Get("/api/v1/health/ready", handler.ReadinessCheck)
	r.Get("/api/v1/health/live", handler.LivenessCheck)
	r.Get("/api/v1/version", handler.Version)
	r.Get("/api/v1/stats", handler.SystemStats)
	return r
}

func getJSON(t *testing.T, router chi.Router, path string) (int, map[string]interface{}) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestHealthHandler_HealthCheck(t *testing.T) {
	router := setupHealthRouter(newHealthTestService(t, true))

	code, body := getJSON(t, router, "/api/v1/health")

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestHealthHandler_ReadinessCheck(t *testing.T) {
	t.Run("ready when configured", func(t *testing.T) {
		router := setupHealthRouter(newHealthTestService(t, true))

		code, body := getJSON(t, router, "/api/v1/health/ready")

		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ready", body["status"])
	})

	t.Run("503 without credentials", func(t *testing.T) {
		router := setupHealthRouter(newHealthTestService(t, false))

		code, body := getJSON(t, router, "/api/v1/health/ready")

		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "not_ready", body["status"])

		servicesMap, ok := body["services"].(map[string]interface{})
		require.True(t, ok)
		creds, ok := servicesMap["credentials"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "not_ready", creds["status"])
	})
}

func TestHealthHandler_LivenessCheck(t *testing.T) {
	router := setupHealthRouter(newHealthTestService(t, true))

	code, body := getJSON(t, router, "/api/v1/health/live")

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alive", body["status"])
	assert.NotNil(t, body["runtime"])
}

func TestHealthHandler_Version(t *testing.T) {
	router := setupHealthRouter(newHealthTestService(t, true))

	code, body := getJSON(t, router, "/api/v1/version")

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "test", body["version"])
}

func TestHealthHandler_SystemStats(t *testing.T) {
	router := setupHealthRouter(newHealthTestService(t, true))

	code, body := getJSON(t, router, "/api/v1/stats")

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), body["websocket_clients"])
	assert.Equal(t, float64(0), body["active_runs"])
}
