package pipeline

import "time"

// Config controls manager execution behavior.
type Config struct {
	// StepTimeouts maps step ID to its execution deadline.
	StepTimeouts map[string]time.Duration

	// RetryConfig applies to steps that fail with a retryable error.
	RetryConfig RetryConfig

	// ContinueOnError keeps executing later steps after a failure.
	// The collection pipeline feeds each step from the previous one,
	// so this stays off outside of tests.
	ContinueOnError bool
}

// NewConfig returns the default manager configuration.
func NewConfig() *Config {
	return &Config{
		StepTimeouts: map[string]time.Duration{
			StepIDAuth:      DefaultAuthTimeout,
			StepIDResolve:   DefaultResolveTimeout,
			StepIDPlan:      DefaultPlanTimeout,
			StepIDFetch:     DefaultFetchTimeout,
			StepIDReconcile: DefaultReconcileTimeout,
			StepIDExport:    DefaultExportTimeout,
		},
		RetryConfig: NewRetryConfig(),
	}
}

// GetStepTimeout returns the timeout for a step, falling back to the
// package default when unset.
func (c *Config) GetStepTimeout(id string) time.Duration {
	if c.StepTimeouts != nil {
		if timeout, ok := c.StepTimeouts[id]; ok {
			return timeout
		}
	}
	return DefaultStepTimeout
}

// SetStepTimeout overrides the timeout for one step.
func (c *Config) SetStepTimeout(id string, timeout time.Duration) {
	if c.StepTimeouts == nil {
		c.StepTimeouts = make(map[string]time.Duration)
	}
	c.StepTimeouts[id] = timeout
}
