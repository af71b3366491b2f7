package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"trendscli/internal/infrastructure"
)

// Manager executes runs against the registered step set. Completed runs
// stay queryable until PruneRuns removes them.
type Manager struct {
	registry    *Registry
	config      *Config
	broadcaster *StatusBroadcaster
	metrics     *infrastructure.BusinessMetrics
	logger      *slog.Logger

	mu      sync.RWMutex
	runs    map[string]*RunState
	cancels map[string]context.CancelFunc
}

// NewManager creates a manager that publishes run events to sink.
// Registry, config, and logger fall back to defaults when nil; metrics
// may be nil.
func NewManager(sink EventSink, registry *Registry, config *Config, metrics *infrastructure.BusinessMetrics, logger *slog.Logger) *Manager {
	if registry == nil {
		registry = NewRegistry()
	}
	if config == nil {
		config = NewConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		registry:    registry,
		config:      config,
		broadcaster: NewStatusBroadcaster(sink, logger),
		metrics:     metrics,
		logger:      logger,
		runs:        make(map[string]*RunState),
		cancels:     make(map[string]context.CancelFunc),
	}
}

// Execute runs the pipeline for one request and blocks until the run
// reaches a terminal state. The returned response reflects that state;
// err carries the step failure, if any.
func (m *Manager) Execute(ctx context.Context, req RunRequest) (*RunResponse, error) {
	state, steps, runCtx, err := m.register(ctx, &req)
	if err != nil {
		return nil, err
	}
	return m.run(runCtx, req, state, steps)
}

// Start registers the run and executes it on a background goroutine,
// detached from ctx's cancellation. It returns a pending snapshot once
// the run is visible to GetRun and cancellable through Cancel, so a
// caller can hand out the run ID before the first step fires. Request
// validation still happens synchronously.
func (m *Manager) Start(ctx context.Context, req RunRequest) (*RunState, error) {
	state, steps, runCtx, err := m.register(context.WithoutCancel(ctx), &req)
	if err != nil {
		return nil, err
	}
	pending := state.Clone()
	go func() {
		// the run records and broadcasts its own outcome
		_, _ = m.run(runCtx, req, state, steps)
	}()
	return pending, nil
}

// register validates the request and stores the pending run state. The
// cancel func is wired here, not in run, so Cancel works from the
// moment the run is queryable.
func (m *Manager) register(ctx context.Context, req *RunRequest) (*RunState, []Step, context.Context, error) {
	if err := validateRequest(req); err != nil {
		return nil, nil, nil, err
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	steps := m.registry.List()
	if len(steps) == 0 {
		return nil, nil, nil, NewValidationError("", "no steps registered")
	}

	runCtx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	if _, exists := m.runs[req.ID]; exists {
		m.mu.Unlock()
		cancel()
		return nil, nil, nil, fmt.Errorf("run %s already exists", req.ID)
	}
	state := NewRunState(req.ID)
	m.runs[req.ID] = state
	m.cancels[req.ID] = cancel
	m.mu.Unlock()

	seedConfig(state, *req)

	infos := make([]StepInfo, len(steps))
	for i, step := range steps {
		state.SetStep(NewStepState(step.ID(), step.Name()))
		infos[i] = StepInfo{ID: step.ID(), Name: step.Name()}
	}
	m.broadcaster.CreateRun(req.ID, req.Keywords, infos)

	return state, steps, runCtx, nil
}

func (m *Manager) run(ctx context.Context, req RunRequest, state *RunState, steps []Step) (*RunResponse, error) {
	defer func() {
		m.mu.Lock()
		if cancel, ok := m.cancels[req.ID]; ok {
			cancel()
			delete(m.cancels, req.ID)
		}
		m.mu.Unlock()
	}()

	logger := m.logger.With("run_id", req.ID, "mode", string(req.Mode))
	logger.Info("run started", "keywords", req.Keywords, "steps", len(steps))

	if m.metrics != nil {
		m.metrics.ActiveRuns.Add(ctx, 1)
		defer m.metrics.ActiveRuns.Add(ctx, -1)
	}
	start := time.Now()

	state.Start()
	m.broadcaster.StartRun(req.ID)

	err := m.executeSequential(ctx, state, steps)

	switch {
	case err == nil:
		state.Complete()
		m.broadcaster.CompleteRun(req.ID, "run completed")
		logger.Info("run completed", "duration", state.Duration())
	case isCancellation(err):
		state.Cancel()
		m.broadcaster.CancelRun(req.ID)
		logger.Warn("run cancelled", "duration", state.Duration())
	default:
		state.Fail(err)
		m.broadcaster.FailRun(req.ID, err)
		logger.Error("run failed", "error", err, "duration", state.Duration())
	}

	infrastructure.RecordRunMetrics(ctx, m.metrics, req.ID, string(req.Mode), time.Since(start), err)

	return m.buildResponse(state), err
}

func (m *Manager) executeSequential(ctx context.Context, state *RunState, steps []Step) error {
	for i, step := range steps {
		select {
		case <-ctx.Done():
			m.skipRemaining(state, steps[i:], "run cancelled")
			return NewCancellationError(step.ID())
		default:
		}

		if err := m.executeStep(ctx, state, step); err != nil {
			if m.config.ContinueOnError {
				m.logger.Warn("continuing after step failure", "run_id", state.ID, "step", step.ID(), "error", err)
				continue
			}
			if i+1 < len(steps) {
				m.skipRemaining(state, steps[i+1:], fmt.Sprintf("upstream step %s failed", step.ID()))
			}
			return err
		}
	}
	return nil
}

func (m *Manager) executeStep(ctx context.Context, state *RunState, step Step) error {
	stepState, ok := state.GetStep(step.ID())
	if !ok {
		return NewValidationError(step.ID(), "step state not initialized")
	}

	if err := step.Validate(state); err != nil {
		var verr *PipelineError
		if !errors.As(err, &verr) {
			verr = NewValidationError(step.ID(), err.Error())
		}
		stepState.Fail(verr)
		m.broadcaster.FailStep(state.ID, step.ID(), verr)
		return verr
	}

	timeout := m.config.GetStepTimeout(step.ID())
	maxAttempts := m.config.RetryConfig.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
attempts:
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		stepCtx, cancel := context.WithTimeout(ctx, timeout)

		stepState.Start()
		if attempt == 1 {
			m.broadcaster.UpdateStepProgress(state.ID, step.ID(), 0, "step started")
		} else {
			m.broadcaster.UpdateStepProgress(state.ID, step.ID(), 0, fmt.Sprintf("retrying (attempt %d of %d)", attempt, maxAttempts))
		}

		err := step.Execute(stepCtx, state)
		cancel()
		if err == nil {
			stepState.Complete()
			m.broadcaster.CompleteStep(state.ID, step.ID())
			m.logger.Info("step completed", "run_id", state.ID, "step", step.ID(), "duration", stepState.Duration())
			return nil
		}

		lastErr = err
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			lastErr = NewTimeoutError(step.ID(), timeout.String())
		}
		m.logger.Error("step failed",
			"run_id", state.ID,
			"step", step.ID(),
			"attempt", attempt,
			"error", lastErr)

		if !IsRetryable(lastErr) || attempt == maxAttempts {
			break
		}

		select {
		case <-time.After(retryDelay(m.config.RetryConfig, attempt)):
		case <-ctx.Done():
			lastErr = NewCancellationError(step.ID())
			break attempts
		}
	}

	werr := WrapError(lastErr, step.ID(), "step execution failed")
	stepState.Fail(werr)
	m.broadcaster.FailStep(state.ID, step.ID(), werr)
	return werr
}

func (m *Manager) skipRemaining(state *RunState, steps []Step, reason string) {
	for _, step := range steps {
		stepState, ok := state.GetStep(step.ID())
		if !ok || stepState.Status != StepStatusPending {
			continue
		}
		stepState.Skip(reason)
		m.broadcaster.SkipStep(state.ID, step.ID(), reason)
	}
}

// Cancel aborts a running run. The run's goroutine observes the
// cancellation, skips pending steps, and moves the run to cancelled.
func (m *Manager) Cancel(runID string) error {
	m.mu.RLock()
	state, ok := m.runs[runID]
	cancel := m.cancels[runID]
	m.mu.RUnlock()

	if !ok {
		return ErrRunNotFound
	}
	if state.IsTerminal() {
		return ErrRunFinished
	}
	if cancel != nil {
		cancel()
	}
	m.logger.Info("run cancellation requested", "run_id", runID)
	return nil
}

// GetRun returns a copy of a run's state.
func (m *Manager) GetRun(runID string) (*RunState, error) {
	m.mu.RLock()
	state, ok := m.runs[runID]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrRunNotFound
	}
	return state.Clone(), nil
}

// ListRuns returns copies of every tracked run.
func (m *Manager) ListRuns() []*RunState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*RunState, 0, len(m.runs))
	for _, state := range m.runs {
		out = append(out, state.Clone())
	}
	return out
}

// PruneRuns drops terminal runs older than maxAge from the manager and
// the broadcaster, returning how many the manager removed.
func (m *Manager) PruneRuns(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	removed := 0
	for id, state := range m.runs {
		if state.IsTerminal() && state.EndTime.Before(cutoff) {
			delete(m.runs, id)
			removed++
		}
	}
	m.mu.Unlock()

	m.broadcaster.CleanupOldRuns(maxAge)
	return removed
}

// GetBroadcaster exposes the broadcaster for snapshot queries.
func (m *Manager) GetBroadcaster() *StatusBroadcaster {
	return m.broadcaster
}

// GetRegistry exposes the step registry.
func (m *Manager) GetRegistry() *Registry {
	return m.registry
}

// Stop shuts down the broadcaster. In-flight runs keep executing but
// stop publishing events.
func (m *Manager) Stop() {
	m.broadcaster.Stop()
}

func (m *Manager) buildResponse(state *RunState) *RunResponse {
	clone := state.Clone()
	resp := &RunResponse{
		ID:       clone.ID,
		Status:   clone.Status,
		Duration: clone.Duration(),
		Steps:    clone.Steps,
	}
	if clone.Error != nil {
		resp.Error = clone.Error.Error()
	}
	return resp
}

func validateRequest(req *RunRequest) error {
	cleaned := make([]string, 0, len(req.Keywords))
	for _, kw := range req.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			cleaned = append(cleaned, kw)
		}
	}
	if len(cleaned) == 0 {
		return NewValidationError("", "run request has no keywords")
	}
	req.Keywords = cleaned

	if !req.Mode.IsValid() {
		return NewValidationError("", fmt.Sprintf("unknown run mode %q", req.Mode))
	}
	return nil
}

func seedConfig(state *RunState, req RunRequest) {
	state.SetConfig(ConfigKeyKeywords, req.Keywords)
	state.SetConfig(ConfigKeyMode, req.Mode)
	state.SetConfig(ConfigKeyStart, req.Start)
	state.SetConfig(ConfigKeyEnd, req.End)
	state.SetConfig(ConfigKeyAnchor, req.Anchor)
	state.SetConfig(ConfigKeyOptions, req.Options)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || GetErrorType(err) == ErrorTypeCancellation
}

// retryDelay is the backoff before the next attempt: the initial delay
// grown by Multiplier per completed attempt, capped at MaxDelay.
func retryDelay(cfg RetryConfig, attempt int) time.Duration {
	delay := cfg.InitialDelay
	if delay <= 0 {
		delay = time.Second
	}
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && delay >= cfg.MaxDelay {
			return cfg.MaxDelay
		}
	}
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay
}
