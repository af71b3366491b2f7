package pipeline

import (
	"time"

	"trendscli/internal/planner"
)

// Step IDs in canonical execution order.
const (
	StepIDAuth      = "authenticate"
	StepIDResolve   = "resolve"
	StepIDPlan      = "plan"
	StepIDFetch     = "fetch"
	StepIDReconcile = "reconcile"
	StepIDExport    = "export"
)

// Human-readable step names for progress events.
const (
	StepNameAuth      = "Session Login"
	StepNameResolve   = "Keyword Resolution"
	StepNamePlan      = "Window Planning"
	StepNameFetch     = "Window Fetching"
	StepNameReconcile = "Series Reconciliation"
	StepNameExport    = "Export"
)

// Config keys seeded into run state from the request.
const (
	ConfigKeyKeywords = "keywords"
	ConfigKeyMode     = "mode"
	ConfigKeyStart    = "start"
	ConfigKeyEnd      = "end"
	ConfigKeyAnchor   = "anchor"
	ConfigKeyOptions  = "options"
)

// Context keys for artifacts steps hand to each other.
const (
	ContextKeySession  = "session"
	ContextKeyTerms    = "terms"
	ContextKeyPlan     = "plan"
	ContextKeyBatches  = "batches"
	ContextKeyMerged   = "merged"
	ContextKeyDegraded = "degraded_zero_fill"
)

// Event types published through the broadcaster.
const (
	EventRunStatus   = "run:status"
	EventRunProgress = "run:progress"
	EventRunComplete = "run:complete"
	EventRunError    = "run:error"
)

// Default per-step timeouts. Fetch dominates: a year-scale anchored run
// holds dozens of windows behind a multi-second throttle.
const (
	DefaultStepTimeout      = 5 * time.Minute
	DefaultAuthTimeout      = 2 * time.Minute
	DefaultResolveTimeout   = 2 * time.Minute
	DefaultPlanTimeout      = 30 * time.Second
	DefaultFetchTimeout     = 60 * time.Minute
	DefaultReconcileTimeout = 5 * time.Minute
	DefaultExportTimeout    = 5 * time.Minute
)

// RetryConfig controls retry behavior for retryable step failures.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// NewRetryConfig returns the default retry configuration: a single
// attempt. The upstream service rate-limits aggressively, so repeating
// a failed fetch step is an explicit caller decision, not a default.
func NewRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  1,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// RunOptions carries the per-run switches that do not change the window
// plan itself.
type RunOptions struct {
	Category         string `json:"category,omitempty"`
	OutputName       string `json:"output_name,omitempty"`
	NoResolve        bool   `json:"no_resolve,omitempty"`
	QuietIO          bool   `json:"quiet_io,omitempty"`
	KeepRaw          bool   `json:"keep_raw,omitempty"`
	XLSX             bool   `json:"xlsx,omitempty"`
	DegradedZeroFill bool   `json:"degraded_zero_fill,omitempty"`
}

// RunRequest describes one collection run. All keywords are queried
// together in every window, so they share one quota budget and one
// normalization basis.
type RunRequest struct {
	ID       string       `json:"id"`
	Keywords []string     `json:"keywords"`
	Mode     planner.Mode `json:"mode"`
	Start    time.Time    `json:"start"`
	End      time.Time    `json:"end"`
	Anchor   time.Time    `json:"anchor,omitempty"`
	Options  RunOptions   `json:"options"`
}

// RunResponse reports the terminal state of a run.
type RunResponse struct {
	ID       string                `json:"id"`
	Status   RunStatusValue        `json:"status"`
	Duration time.Duration         `json:"duration"`
	Steps    map[string]*StepState `json:"steps,omitempty"`
	Error    string                `json:"error,omitempty"`
}
