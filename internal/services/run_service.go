package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"trendscli/internal/config"
	"trendscli/internal/entity"
	runErrors "trendscli/internal/errors"
	"trendscli/internal/fetch"
	"trendscli/internal/infrastructure"
	"trendscli/internal/pipeline"
	"trendscli/internal/planner"
	"trendscli/internal/security"
	"trendscli/internal/series"
	"trendscli/internal/session"
	"trendscli/internal/throttle"
)

// Terminal runs stay queryable for a day, then the janitor drops them.
const (
	pruneInterval = time.Hour
	runRetention  = 24 * time.Hour
)

// RunService owns the collection pipeline for the service mode. The
// upstream quota is account-scoped, so the service admits one run at a
// time; a second submission while a run is active is a conflict, not a
// queue entry.
type RunService struct {
	manager *pipeline.Manager
	logger  *slog.Logger

	mu       sync.Mutex
	activeID string

	quit     chan struct{}
	stopOnce sync.Once
}

// NewRunService wires the standard pipeline against cfg: session login,
// entity resolution, window planning, throttled fetching, series
// reconciliation, and export under paths. Run events flow to sink;
// metrics may be nil.
func NewRunService(cfg *config.Config, paths *config.Paths, sink pipeline.EventSink, metrics *infrastructure.BusinessMetrics, logger *slog.Logger) (*RunService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if paths == nil {
		var err error
		paths, err = config.GetPaths()
		if err != nil {
			return nil, fmt.Errorf("resolve data paths: %w", err)
		}
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("prepare data directories: %w", err)
	}

	registry := pipeline.NewRegistry()
	manager := pipeline.NewManager(sink, registry, nil, metrics, logger)

	deps := pipeline.StepDeps{
		Provider: &sessionProvider{cfg: cfg, logger: logger},
		Resolver: func(sess *session.Session) entity.Resolver {
			return entity.NewHTTPResolver(sess, entity.Config{
				URLTemplate: cfg.Service.EntityURL,
				UserAgent:   cfg.Fetch.UserAgent,
			}, logger)
		},
		Planner: planner.New(nil),
		FetchConfig: fetch.Config{
			URLTemplate: cfg.Service.TrendsURL,
			UserAgent:   cfg.Fetch.UserAgent,
		},
		Throttle: throttle.Spec{
			Mode:  throttle.Mode(cfg.Throttle.Mode),
			Delay: cfg.Throttle.Delay,
		},
		Paths:       paths,
		Reconciler:  series.NewReconciler(logger),
		Broadcaster: manager.GetBroadcaster(),
		Metrics:     metrics,
		Logger:      logger,
	}
	for _, step := range pipeline.StandardSteps(deps) {
		if err := registry.Register(step); err != nil {
			return nil, fmt.Errorf("register step %s: %w", step.ID(), err)
		}
	}

	return newRunService(manager, logger), nil
}

// NewRunServiceWithManager wires the service around an existing
// manager. Tests use it to substitute scripted steps.
func NewRunServiceWithManager(manager *pipeline.Manager, logger *slog.Logger) *RunService {
	if logger == nil {
		logger = slog.Default()
	}
	return newRunService(manager, logger)
}

func newRunService(manager *pipeline.Manager, logger *slog.Logger) *RunService {
	s := &RunService{
		manager: manager,
		logger:  logger.With(slog.String("service", "runs")),
		quit:    make(chan struct{}),
	}
	go s.janitor()
	return s
}

// StartRun validates and registers the run, then executes it in the
// background. The returned snapshot is the pending run, already
// queryable through GetRun and cancellable through CancelRun.
func (s *RunService) StartRun(ctx context.Context, req pipeline.RunRequest) (*pipeline.RunSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeID != "" {
		if state, err := s.manager.GetRun(s.activeID); err == nil && !state.IsTerminal() {
			s.logger.WarnContext(ctx, "run rejected, another run is active",
				slog.String("active_run_id", s.activeID))
			return nil, fmt.Errorf("run %s is still active: %w", s.activeID, runErrors.ErrRunInProgress)
		}
		s.activeID = ""
	}

	state, err := s.manager.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	s.activeID = state.ID

	s.logger.InfoContext(ctx, "run accepted",
		slog.String("run_id", state.ID),
		slog.String("mode", string(req.Mode)),
		slog.Int("keywords", len(req.Keywords)))

	snap, err := s.manager.GetBroadcaster().GetSnapshot(state.ID)
	if err != nil {
		// registration just succeeded, the snapshot must exist
		return nil, fmt.Errorf("snapshot for run %s: %w", state.ID, err)
	}
	return snap, nil
}

// GetRun returns the broadcast snapshot of one run.
func (s *RunService) GetRun(ctx context.Context, id string) (*pipeline.RunSnapshot, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("run id cannot be empty")
	}
	snap, err := s.manager.GetBroadcaster().GetSnapshot(id)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", id, runErrors.ErrRunUnknown)
	}
	return snap, nil
}

// ListRuns returns snapshots of every tracked run, newest first.
func (s *RunService) ListRuns(ctx context.Context) []*pipeline.RunSnapshot {
	snaps := s.manager.GetBroadcaster().GetAllSnapshots()
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].StartedAt.After(snaps[j].StartedAt)
	})
	return snaps
}

// CancelRun aborts a running run. Cancelling an unknown run is
// ErrRunUnknown; cancelling a finished one is ErrRunFinished.
func (s *RunService) CancelRun(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("run id cannot be empty")
	}

	err := s.manager.Cancel(id)
	switch {
	case err == nil:
		s.logger.InfoContext(ctx, "run cancellation requested", slog.String("run_id", id))
		return nil
	case errors.Is(err, pipeline.ErrRunNotFound):
		return fmt.Errorf("run %s: %w", id, runErrors.ErrRunUnknown)
	case errors.Is(err, pipeline.ErrRunFinished):
		return fmt.Errorf("run %s: %w", id, runErrors.ErrRunFinished)
	default:
		return err
	}
}

// ActiveRunID returns the id of the run holding the execution slot, or
// "" when the service is idle.
func (s *RunService) ActiveRunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeID == "" {
		return ""
	}
	state, err := s.manager.GetRun(s.activeID)
	if err != nil || state.IsTerminal() {
		return ""
	}
	return s.activeID
}

// ActiveRuns counts runs that have not reached a terminal state.
func (s *RunService) ActiveRuns() int {
	n := 0
	for _, snap := range s.manager.GetBroadcaster().GetAllSnapshots() {
		switch snap.Status {
		case pipeline.RunStatusPending, pipeline.RunStatusRunning:
			n++
		}
	}
	return n
}

// GetManager exposes the underlying pipeline manager.
func (s *RunService) GetManager() *pipeline.Manager {
	return s.manager
}

// Stop halts the janitor and the event broadcaster. In-flight runs keep
// executing; callers that need them gone cancel them first.
func (s *RunService) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
	})
	s.manager.Stop()
}

func (s *RunService) janitor() {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			if removed := s.manager.PruneRuns(runRetention); removed > 0 {
				s.logger.Info("pruned finished runs", slog.Int("removed", removed))
			}
		}
	}
}

// sessionProvider resolves credentials at authentication time, so a
// credentials file sealed after the daemon started is picked up without
// a restart.
type sessionProvider struct {
	cfg    *config.Config
	logger *slog.Logger
}

func (p *sessionProvider) Authenticate(ctx context.Context) (*session.Session, error) {
	creds, err := ResolveCredentials(p.cfg)
	if err != nil {
		return nil, err
	}
	form := session.NewFormProvider(creds, session.Config{
		LoginURL:  p.cfg.Service.LoginURL,
		AuthURL:   p.cfg.Service.AuthURL,
		Timeout:   p.cfg.Fetch.Timeout,
		UserAgent: p.cfg.Fetch.UserAgent,
	}, p.logger)
	return form.Authenticate(ctx)
}

// ResolveCredentials returns the account to log in with. A sealed
// credentials file wins over the plaintext config pair; having neither
// is ErrCredentialsMissing.
func ResolveCredentials(cfg *config.Config) (session.Credentials, error) {
	if cfg.Auth.CredentialsFile != "" && config.FileExists(cfg.Auth.CredentialsFile) {
		sealed, err := security.OpenCredentials(cfg.Auth.CredentialsFile)
		if err != nil {
			return session.Credentials{}, fmt.Errorf("open credentials file: %w", err)
		}
		return session.Credentials{Username: sealed.Username, Password: sealed.Password}, nil
	}
	if cfg.Auth.Username != "" && cfg.Auth.Password != "" {
		return session.Credentials{Username: cfg.Auth.Username, Password: cfg.Auth.Password}, nil
	}
	return session.Credentials{}, runErrors.ErrCredentialsMissing
}
