package pipeline

import (
	"log/slog"
	"sync"
	"time"
)

// EventSink receives run lifecycle events. The WebSocket hub implements
// it for the server; the CLI plugs in a line printer.
type EventSink interface {
	Publish(eventType string, payload interface{})
}

// StepInfo seeds a step entry in a run snapshot.
type StepInfo struct {
	ID   string
	Name string
}

// StepSnapshot is the broadcast view of one step.
type StepSnapshot struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Status   StepStatus `json:"status"`
	Progress int        `json:"progress"`
	Message  string     `json:"message,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// RunSnapshot is the broadcast view of one run. Snapshots are immutable
// copies; receivers may hold them across goroutines.
type RunSnapshot struct {
	RunID       string         `json:"run_id"`
	Keywords    []string       `json:"keywords"`
	Status      RunStatusValue `json:"status"`
	Progress    int            `json:"progress"`
	CurrentStep string         `json:"current_step,omitempty"`
	Steps       []StepSnapshot `json:"steps"`
	StartedAt   time.Time      `json:"started_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Message     string         `json:"message,omitempty"`
	Error       string         `json:"error,omitempty"`
}

type updateRequest struct {
	runID  string
	event  string
	create bool
	apply  func(*RunSnapshot)
	done   chan struct{}
}

// StatusBroadcaster serializes run state mutations through a single
// goroutine and publishes a fresh snapshot after each one. Serializing
// keeps event order consistent with mutation order, which per-update
// locking alone does not guarantee.
type StatusBroadcaster struct {
	mu       sync.RWMutex
	runs     map[string]*RunSnapshot
	sink     EventSink
	logger   *slog.Logger
	updates  chan updateRequest
	stop     chan struct{}
	stopOnce sync.Once
}

// NewStatusBroadcaster creates a broadcaster and starts its update
// loop. A nil sink disables publishing but keeps snapshots queryable.
func NewStatusBroadcaster(sink EventSink, logger *slog.Logger) *StatusBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	b := &StatusBroadcaster{
		runs:    make(map[string]*RunSnapshot),
		sink:    sink,
		logger:  logger,
		updates: make(chan updateRequest, 64),
		stop:    make(chan struct{}),
	}
	go b.processUpdates()
	return b
}

func (b *StatusBroadcaster) processUpdates() {
	for {
		select {
		case req := <-b.updates:
			b.handleUpdate(req)
		case <-b.stop:
			return
		}
	}
}

func (b *StatusBroadcaster) handleUpdate(req updateRequest) {
	defer close(req.done)

	b.mu.Lock()
	snap, ok := b.runs[req.runID]
	if !ok {
		if !req.create {
			b.mu.Unlock()
			b.logger.Debug("dropping update for unknown run", "run_id", req.runID)
			return
		}
		snap = &RunSnapshot{
			RunID:     req.runID,
			Status:    RunStatusPending,
			StartedAt: time.Now(),
		}
		b.runs[req.runID] = snap
	}

	req.apply(snap)
	snap.UpdatedAt = time.Now()
	snap.Progress = aggregateProgress(snap.Steps)

	switch snap.Status {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		if snap.CompletedAt == nil {
			now := time.Now()
			snap.CompletedAt = &now
		}
	}

	out := cloneSnapshot(snap)
	b.mu.Unlock()

	b.publish(req.event, out)
}

func (b *StatusBroadcaster) publish(event string, snap *RunSnapshot) {
	if b.sink == nil {
		return
	}
	b.sink.Publish(event, snap)
	b.logger.Debug("run event published",
		"event", event,
		"run_id", snap.RunID,
		"status", snap.Status,
		"progress", snap.Progress)
}

// update enqueues a mutation and waits for it to be applied, so callers
// observe their own writes in subsequent GetSnapshot calls.
func (b *StatusBroadcaster) update(runID, event string, create bool, apply func(*RunSnapshot)) {
	req := updateRequest{
		runID:  runID,
		event:  event,
		create: create,
		apply:  apply,
		done:   make(chan struct{}),
	}
	select {
	case b.updates <- req:
	case <-b.stop:
		return
	}
	select {
	case <-req.done:
	case <-b.stop:
	}
}

// CreateRun registers a run with its keyword set and step layout.
func (b *StatusBroadcaster) CreateRun(runID string, keywords []string, steps []StepInfo) {
	b.update(runID, EventRunStatus, true, func(snap *RunSnapshot) {
		snap.Keywords = append([]string(nil), keywords...)
		snap.Status = RunStatusPending
		snap.Steps = make([]StepSnapshot, len(steps))
		for i, info := range steps {
			snap.Steps[i] = StepSnapshot{
				ID:     info.ID,
				Name:   info.Name,
				Status: StepStatusPending,
			}
		}
	})
}

// StartRun marks the run running.
func (b *StatusBroadcaster) StartRun(runID string) {
	b.update(runID, EventRunStatus, false, func(snap *RunSnapshot) {
		snap.Status = RunStatusRunning
		snap.StartedAt = time.Now()
	})
}

// UpdateStepProgress marks a step active and advances its progress.
// Progress never moves backwards; late events cannot regress the bar.
func (b *StatusBroadcaster) UpdateStepProgress(runID, stepID string, progress int, message string) {
	b.update(runID, EventRunProgress, false, func(snap *RunSnapshot) {
		step := findStep(snap, stepID)
		if step == nil {
			return
		}
		step.Status = StepStatusActive
		if progress > step.Progress {
			step.Progress = minInt(progress, 100)
		}
		if message != "" {
			step.Message = message
		}
		snap.CurrentStep = stepID
		snap.Message = message
	})
}

// CompleteStep marks a step completed.
func (b *StatusBroadcaster) CompleteStep(runID, stepID string) {
	b.update(runID, EventRunProgress, false, func(snap *RunSnapshot) {
		step := findStep(snap, stepID)
		if step == nil {
			return
		}
		step.Status = StepStatusCompleted
		step.Progress = 100
	})
}

// FailStep marks a step failed and records the error.
func (b *StatusBroadcaster) FailStep(runID, stepID string, err error) {
	b.update(runID, EventRunProgress, false, func(snap *RunSnapshot) {
		step := findStep(snap, stepID)
		if step == nil {
			return
		}
		step.Status = StepStatusFailed
		if err != nil {
			step.Error = err.Error()
		}
	})
}

// SkipStep marks a step skipped with a reason.
func (b *StatusBroadcaster) SkipStep(runID, stepID, reason string) {
	b.update(runID, EventRunProgress, false, func(snap *RunSnapshot) {
		step := findStep(snap, stepID)
		if step == nil {
			return
		}
		step.Status = StepStatusSkipped
		step.Message = reason
	})
}

// CompleteRun marks the run completed.
func (b *StatusBroadcaster) CompleteRun(runID, message string) {
	b.update(runID, EventRunComplete, false, func(snap *RunSnapshot) {
		snap.Status = RunStatusCompleted
		snap.Message = message
	})
}

// FailRun marks the run failed and records the terminal error.
func (b *StatusBroadcaster) FailRun(runID string, err error) {
	b.update(runID, EventRunError, false, func(snap *RunSnapshot) {
		snap.Status = RunStatusFailed
		if err != nil {
			snap.Error = err.Error()
		}
	})
}

// CancelRun marks the run cancelled.
func (b *StatusBroadcaster) CancelRun(runID string) {
	b.update(runID, EventRunStatus, false, func(snap *RunSnapshot) {
		snap.Status = RunStatusCancelled
	})
}

// GetSnapshot returns a copy of the run's current snapshot.
func (b *StatusBroadcaster) GetSnapshot(runID string) (*RunSnapshot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snap, ok := b.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	return cloneSnapshot(snap), nil
}

// GetAllSnapshots returns copies of every tracked run.
func (b *StatusBroadcaster) GetAllSnapshots() []*RunSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*RunSnapshot, 0, len(b.runs))
	for _, snap := range b.runs {
		out = append(out, cloneSnapshot(snap))
	}
	return out
}

// CleanupOldRuns drops terminal runs whose completion is older than
// maxAge and returns how many were removed.
func (b *StatusBroadcaster) CleanupOldRuns(maxAge time.Duration) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, snap := range b.runs {
		if snap.CompletedAt != nil && snap.CompletedAt.Before(cutoff) {
			delete(b.runs, id)
			removed++
		}
	}
	return removed
}

// Stop terminates the update loop. Pending and subsequent updates are
// dropped.
func (b *StatusBroadcaster) Stop() {
	b.stopOnce.Do(func() {
		close(b.stop)
	})
}

func findStep(snap *RunSnapshot, stepID string) *StepSnapshot {
	for i := range snap.Steps {
		if snap.Steps[i].ID == stepID {
			return &snap.Steps[i]
		}
	}
	return nil
}

func aggregateProgress(steps []StepSnapshot) int {
	if len(steps) == 0 {
		return 0
	}
	total := 0
	for _, step := range steps {
		switch step.Status {
		case StepStatusCompleted, StepStatusSkipped:
			total += 100
		default:
			total += step.Progress
		}
	}
	return total / len(steps)
}

func cloneSnapshot(snap *RunSnapshot) *RunSnapshot {
	out := *snap
	out.Keywords = append([]string(nil), snap.Keywords...)
	out.Steps = append([]StepSnapshot(nil), snap.Steps...)
	if snap.CompletedAt != nil {
		completed := *snap.CompletedAt
		out.CompletedAt = &completed
	}
	return &out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
