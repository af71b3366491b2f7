package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, DefaultFetchTimeout, cfg.GetStepTimeout(StepIDFetch))
	assert.Equal(t, DefaultAuthTimeout, cfg.GetStepTimeout(StepIDAuth))
	assert.Equal(t, DefaultStepTimeout, cfg.GetStepTimeout("unknown"))

	// one attempt by default: repeating queries against a rate-limited
	// remote is opt-in
	assert.Equal(t, 1, cfg.RetryConfig.MaxAttempts)
	assert.False(t, cfg.ContinueOnError)
}

func TestConfigSetStepTimeout(t *testing.T) {
	cfg := NewConfig()
	cfg.SetStepTimeout(StepIDFetch, 2*time.Hour)
	assert.Equal(t, 2*time.Hour, cfg.GetStepTimeout(StepIDFetch))

	var zero Config
	zero.SetStepTimeout("custom", time.Minute)
	assert.Equal(t, time.Minute, zero.GetStepTimeout("custom"))
	assert.Equal(t, DefaultStepTimeout, zero.GetStepTimeout("other"))
}
