package http

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"trendscli/internal/config"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	cfg := config.Default()
	cfg.Server.RateLimit.Enabled = false
	cfg.Server.AllowedOrigins = []string{"http://localhost:8090"}

	health := newHealthTestService(t, true)
	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))

	return NewRouter(RouterDeps{
		Config: cfg,
		Runs:   &MockRunService{},
		Health: health,
		Logger: logger,
	})
}

func TestRouterServesHealthThroughMiddlewareStack(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://localhost:8090")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "http://localhost:8090", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
}

func TestRouterHonorsCORSPreflight(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/runs", nil)
	req.Header.Set("Origin", "http://localhost:8090")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestRouterOmitsUnconfiguredRoutes(t *testing.T) {
	router := newTestRouter(t)

	// No providers means no Prometheus endpoint; no hub means no /ws.
	for _, path := range []string{"/metrics", "/ws"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestRouterMountsRunRoutes(t *testing.T) {
	cfg := config.Default()
	cfg.Server.RateLimit.Enabled = false

	service := &MockRunService{}
	service.On("ListRuns", mock.Anything).Return(nil)

	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
	router := NewRouter(RouterDeps{
		Config: cfg,
		Runs:   service,
		Health: newHealthTestService(t, true),
		Logger: logger,
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	service.AssertExpectations(t)
}
