package pipeline

import (
	"sync"
	"time"
)

// StepStatus tracks a single step's lifecycle within a run.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusActive    StepStatus = "active"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// RunStatusValue tracks the run as a whole.
type RunStatusValue string

const (
	RunStatusPending   RunStatusValue = "pending"
	RunStatusRunning   RunStatusValue = "running"
	RunStatusCompleted RunStatusValue = "completed"
	RunStatusFailed    RunStatusValue = "failed"
	RunStatusCancelled RunStatusValue = "cancelled"
)

// StepState holds the mutable execution state of one step.
type StepState struct {
	mu        sync.Mutex
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    StepStatus `json:"status"`
	Progress  int        `json:"progress"`
	StartTime time.Time  `json:"start_time,omitempty"`
	EndTime   time.Time  `json:"end_time,omitempty"`
	Error     string     `json:"error,omitempty"`
	Message   string     `json:"message,omitempty"`
}

// NewStepState creates a pending step state.
func NewStepState(id, name string) *StepState {
	return &StepState{
		ID:     id,
		Name:   name,
		Status: StepStatusPending,
	}
}

// Start marks the step active.
func (s *StepState) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = StepStatusActive
	s.StartTime = time.Now()
	s.Progress = 0
}

// Complete marks the step finished.
func (s *StepState) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = StepStatusCompleted
	s.EndTime = time.Now()
	s.Progress = 100
}

// Fail records the failure message and marks the step failed.
func (s *StepState) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = StepStatusFailed
	s.EndTime = time.Now()
	if err != nil {
		s.Error = err.Error()
	}
}

// Skip marks the step skipped with a reason.
func (s *StepState) Skip(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = StepStatusSkipped
	s.EndTime = time.Now()
	s.Message = reason
}

// UpdateProgress records progress (clamped to 0-100) and a message.
func (s *StepState) UpdateProgress(progress int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	s.Progress = progress
	if message != "" {
		s.Message = message
	}
}

// Duration returns elapsed time, live if the step is still active.
func (s *StepState) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.StartTime.IsZero() {
		return 0
	}
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// snapshot returns a copy safe to hand across goroutines.
func (s *StepState) snapshot() *StepState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &StepState{
		ID:        s.ID,
		Name:      s.Name,
		Status:    s.Status,
		Progress:  s.Progress,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		Error:     s.Error,
		Message:   s.Message,
	}
}

// RunState holds everything about one run: step states, the request
// configuration, and the artifacts steps hand to each other.
type RunState struct {
	mu        sync.RWMutex
	ID        string
	Status    RunStatusValue
	StartTime time.Time
	EndTime   time.Time
	Steps     map[string]*StepState
	Context   map[string]interface{}
	Config    map[string]interface{}
	Error     error
}

// NewRunState creates a pending run state.
func NewRunState(id string) *RunState {
	return &RunState{
		ID:      id,
		Status:  RunStatusPending,
		Steps:   make(map[string]*StepState),
		Context: make(map[string]interface{}),
		Config:  make(map[string]interface{}),
	}
}

// Start marks the run running.
func (r *RunState) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = RunStatusRunning
	r.StartTime = time.Now()
}

// Complete marks the run completed.
func (r *RunState) Complete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = RunStatusCompleted
	r.EndTime = time.Now()
}

// Fail marks the run failed and records the terminal error.
func (r *RunState) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = RunStatusFailed
	r.EndTime = time.Now()
	r.Error = err
}

// Cancel marks the run cancelled.
func (r *RunState) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = RunStatusCancelled
	r.EndTime = time.Now()
}

// GetStatus returns the current run status.
func (r *RunState) GetStatus() RunStatusValue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Status
}

// IsTerminal reports whether the run reached a final state.
func (r *RunState) IsTerminal() bool {
	switch r.GetStatus() {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// SetStep registers a step state under its ID.
func (r *RunState) SetStep(state *StepState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Steps[state.ID] = state
}

// GetStep looks up a step state by ID.
func (r *RunState) GetStep(id string) (*StepState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.Steps[id]
	return state, ok
}

// SetContext stores an artifact produced by a step.
func (r *RunState) SetContext(key string, value interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Context[key] = value
}

// GetContext retrieves an artifact stored by an earlier step.
func (r *RunState) GetContext(key string) (interface{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	value, ok := r.Context[key]
	return value, ok
}

// SetConfig stores a request parameter.
func (r *RunState) SetConfig(key string, value interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Config[key] = value
}

// GetConfig retrieves a request parameter.
func (r *RunState) GetConfig(key string) (interface{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	value, ok := r.Config[key]
	return value, ok
}

// Duration returns elapsed run time, live if still running.
func (r *RunState) Duration() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.StartTime.IsZero() {
		return 0
	}
	if r.EndTime.IsZero() {
		return time.Since(r.StartTime)
	}
	return r.EndTime.Sub(r.StartTime)
}

// HasFailures reports whether any step failed.
func (r *RunState) HasFailures() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, step := range r.Steps {
		if step.Status == StepStatusFailed {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of run and step state. Context and Config
// values are shared; they are written once and read-only afterwards.
func (r *RunState) Clone() *RunState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clone := &RunState{
		ID:        r.ID,
		Status:    r.Status,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		Steps:     make(map[string]*StepState, len(r.Steps)),
		Context:   make(map[string]interface{}, len(r.Context)),
		Config:    make(map[string]interface{}, len(r.Config)),
		Error:     r.Error,
	}
	for id, step := range r.Steps {
		clone.Steps[id] = step.snapshot()
	}
	for k, v := range r.Context {
		clone.Context[k] = v
	}
	for k, v := range r.Config {
		clone.Config[k] = v
	}
	return clone
}
