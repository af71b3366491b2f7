package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendscli/internal/config"
	"trendscli/internal/infrastructure"
)

func noopProviders(t *testing.T) *infrastructure.OTelProviders {
	t.Helper()
	providers, err := infrastructure.InitializeOTel(config.ObservabilityConfig{Enabled: false}, testLogger())
	require.NoError(t, err)
	return providers
}

func TestOTelMiddlewarePreservesResponse(t *testing.T) {
	m, err := NewOTelMiddleware(noopProviders(t))
	require.NoError(t, err)

	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("queued"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/runs", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "queued", rec.Body.String())
}

func TestOTelMiddlewareSetsTraceContext(t *testing.T) {
	m, err := NewOTelMiddleware(noopProviders(t))
	require.NoError(t, err)

	var sawContext bool
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The no-op tracer produces a zero trace ID; the middleware
		// must still stamp the context rather than leave it bare.
		_ = infrastructure.GetTraceID(r.Context())
		sawContext = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.True(t, sawContext)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetRoutePattern(t *testing.T) {
	var pattern string
	r := chi.NewRouter()
	r.Get("/api/v1/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
		pattern = getRoutePattern(req)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/run-7", nil))
	assert.Equal(t, "/api/v1/runs/{id}", pattern)

	plain := httptest.NewRequest(http.MethodGet, "/no/route/context", nil)
	assert.Equal(t, "/no/route/context", getRoutePattern(plain))
}

func TestWebSocketTraceMiddlewarePassesThrough(t *testing.T) {
	var called bool
	handler := WebSocketTraceMiddleware(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusSwitchingProtocols)
	}))

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "http://localhost:8090")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusSwitchingProtocols, rec.Code)
}

func TestGetRealIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "forwarded for single hop",
			remoteAddr: "192.168.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7"},
			want:       "203.0.113.7",
		},
		{
			name:       "forwarded for takes first hop",
			remoteAddr: "192.168.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7, 192.168.0.1, 10.0.0.1"},
			want:       "203.0.113.7",
		},
		{
			name:       "real ip header",
			remoteAddr: "192.168.0.1:1234",
			headers:    map[string]string{"X-Real-IP": "203.0.113.9"},
			want:       "203.0.113.9",
		},
		{
			name:       "remote addr strips port",
			remoteAddr: "203.0.113.11:55555",
			want:       "203.0.113.11",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "203.0.113.12",
			want:       "203.0.113.12",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, GetRealIP(req))
		})
	}
}
