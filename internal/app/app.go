package app

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"trendscli/internal/config"
	"trendscli/internal/infrastructure"
	"trendscli/internal/services"
	transport "trendscli/internal/transport/http"
	ws "trendscli/internal/websocket"
	"trendscli/pkg/contracts"
)

const appName = "trendsd"

// BuildID identifies this build in health output.
var BuildID = generateBuildID()

func generateBuildID() string {
	h := sha256.New()
	h.Write([]byte(contracts.Version))
	h.Write([]byte(time.Now().Format("2006-01-02")))
	return fmt.Sprintf("%x", h.Sum(nil))[:12]
}

// Application wires configuration, services, transport and lifecycle
// for the trendsd daemon.
type Application struct {
	Config        *config.Config
	Paths         *config.Paths
	Router        *chi.Mux
	Server        *http.Server
	Hub           *ws.Hub
	RunService    *services.RunService
	HealthService *services.HealthService
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
}

// Options adjust application construction. Zero values take the
// config file defaults.
type Options struct {
	ConfigPath string
	Addr       string
}

// NewApplication creates the application with all dependencies wired.
func NewApplication(opts Options) (*Application, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.Addr != "" {
		cfg.Server.Addr = opts.Addr
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("application starting",
		slog.String("name", appName),
		slog.String("version", contracts.Version),
		slog.String("build_id", BuildID))

	paths, err := config.GetPaths()
	if err != nil {
		return nil, fmt.Errorf("failed to get paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}

	otelProviders, err := infrastructure.InitializeOTel(cfg.Observability, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	metrics, err := infrastructure.CreateBusinessMetrics(otelProviders.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create business metrics: %w", err)
	}

	hub := ws.NewHub(logger)

	runService, err := services.NewRunService(cfg, paths, hub, metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create run service: %w", err)
	}

	healthService := services.NewHealthServiceWithBuildInfo(
		contracts.Version, contracts.BuildTime, BuildID,
		cfg, paths, runService, hub, logger,
	)

	app := &Application{
		Config:        cfg,
		Paths:         paths,
		Hub:           hub,
		RunService:    runService,
		HealthService: healthService,
		Logger:        logger,
		OTelProviders: otelProviders,
	}

	app.Router = transport.NewRouter(transport.RouterDeps{
		Config:    cfg,
		Runs:      runService,
		Health:    healthService,
		Hub:       hub,
		Providers: otelProviders,
		Logger:    logger,
	})

	app.Server = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      app.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return app, nil
}

// Start launches the hub and the HTTP server. A listen failure cancels
// the supplied context so Run can unwind.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "starting application",
		slog.String("name", appName),
		slog.String("version", contracts.Version),
		slog.String("addr", a.Config.Server.Addr),
		slog.String("level", a.Config.Logging.Level))

	a.Logger.InfoContext(ctx, "application paths",
		slog.String("data_dir", a.Paths.DataDir),
		slog.String("output_dir", a.Paths.OutputDir),
		slog.String("raw_dir", a.Paths.RawDir),
		slog.String("logs_dir", a.Paths.LogsDir))

	a.Hub.Start()

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.ErrorContext(ctx, "server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "application started",
		slog.String("address", "http://localhost"+a.Config.Server.Addr))

	return nil
}

// Stop drains the HTTP server, then stops the run engine and the hub.
// Order matters: in-flight requests finish before their services go away.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	a.RunService.Stop()
	a.Hub.Stop()

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "application shutdown complete")
	return nil
}

// Run runs the application until interrupted or until the server fails.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case sig := <-sigChan:
		a.Logger.InfoContext(ctx, "received signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		a.Logger.InfoContext(ctx, "server stopped unexpectedly")
	}

	return a.Stop(context.Background())
}
