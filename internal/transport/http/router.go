package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"trendscli/internal/config"
	"trendscli/internal/infrastructure"
	"trendscli/internal/middleware"
	"trendscli/internal/services"
	ws "trendscli/internal/websocket"
)

// RouterDeps carries everything the HTTP surface needs. Providers and Hub
// may be nil; the corresponding routes are simply not mounted.
type RouterDeps struct {
	Config    *config.Config
	Runs      RunServiceInterface
	Health    *services.HealthService
	Hub       *ws.Hub
	Providers *infrastructure.OTelProviders
	Logger    *slog.Logger
}

// NewRouter assembles the middleware stack and all routes.
//
// Ordering matters: RequestID and RealIP never wrap the ResponseWriter, so
// they apply globally. The WebSocket route is registered before the main
// group because the upgrade handshake needs the raw writer; everything that
// buffers or instruments the response lives inside the group.
func NewRouter(deps RouterDeps) *chi.Mux {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.StripSlashes)

	if deps.Hub != nil {
		wsHandler := NewWSHandler(deps.Hub, cfg.Server.AllowedOrigins, logger)
		r.With(middleware.WebSocketTraceMiddleware(logger)).Get("/ws", wsHandler.Handle)
	}

	r.Group(func(r chi.Router) {
		if deps.Providers != nil {
			otelMiddleware, err := middleware.NewOTelMiddleware(deps.Providers)
			if err != nil {
				logger.Error("failed to create OpenTelemetry middleware", slog.String("error", err.Error()))
			} else {
				r.Use(otelMiddleware.Handler)
			}
		}

		r.Use(middleware.StructuredLogger(logger))
		r.Use(middleware.Recoverer(logger))
		r.Use(middleware.SecurityHeaders)
		r.Use(middleware.Compress(5))

		r.Use(middleware.CORS(middleware.CORSConfig{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			ExposedHeaders: []string{"X-Request-ID"},
			Logger:         logger,
		}))

		if cfg.Server.RateLimit.Enabled {
			r.Use(middleware.NewRateLimiter(
				cfg.Server.RateLimit.RPS,
				cfg.Server.RateLimit.Burst,
				logger,
			).Handler)
		}

		r.Route("/api/v1", func(r chi.Router) {
			r.Use(render.SetContentType(render.ContentTypeJSON))

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(cfg.Server.ReadTimeout, logger))

				healthHandler := NewHealthHandler(deps.Health, logger)
				r.Get("/health", healthHandler.HealthCheck)
				r.Get("/health/ready", healthHandler.ReadinessCheck)
				r.Get("/health/live", healthHandler.LivenessCheck)
				r.Get("/version", healthHandler.Version)
				r.Get("/stats", healthHandler.SystemStats)
			})

			// Run control gets a longer timeout: cancellation waits for the
			// active step to observe context cancellation before returning.
			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(30*time.Second, logger))

				runsHandler := NewRunsHandler(deps.Runs, logger)
				r.Mount("/runs", runsHandler.Routes())
			})
		})
	})

	// Outside the middleware group so scrapes stay cheap.
	if deps.Providers != nil && deps.Providers.PrometheusHTTP != nil {
		r.Method(http.MethodGet, "/metrics", deps.Providers.PrometheusHTTP)
	}

	return r
}
