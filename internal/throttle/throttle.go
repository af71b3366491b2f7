// Package throttle paces outbound queries. The remote tolerates only
// well-spaced traffic per session, so every run owns one Limiter and
// routes each query through Wait before touching the network.
package throttle

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Mode selects the pacing strategy.
type Mode string

const (
	// ModeFixed spaces requests by a constant configured delay.
	ModeFixed Mode = "fixed"
	// ModeJitter spaces requests by a fresh uniform random delay of
	// one to three seconds per request, making the traffic pattern
	// less mechanical.
	ModeJitter Mode = "jitter"
)

// IsValid reports whether the mode is one of the known strategies.
func (m Mode) IsValid() bool {
	return m == ModeFixed || m == ModeJitter
}

const (
	jitterMinSeconds = 1
	jitterMaxSeconds = 3
)

// Spec is the operator-facing throttle configuration.
type Spec struct {
	Mode  Mode          `json:"mode" yaml:"mode"`
	Delay time.Duration `json:"delay" yaml:"delay"`
}

// Validate rejects unknown modes and negative fixed delays.
func (s Spec) Validate() error {
	if !s.Mode.IsValid() {
		return fmt.Errorf("unknown throttle mode %q", s.Mode)
	}
	if s.Mode == ModeFixed && s.Delay < 0 {
		return fmt.Errorf("fixed throttle delay must be non-negative, got %s", s.Delay)
	}
	return nil
}

// Limiter enforces a minimum delay between events. It wraps a token
// bucket of depth one, so the first Wait returns immediately and every
// later Wait blocks until the configured interval has passed.
type Limiter struct {
	spec    Spec
	limiter *rate.Limiter

	mu  sync.Mutex
	rng *rand.Rand
}

// New builds a limiter for the spec. A fixed delay of zero disables
// pacing entirely.
func New(spec Spec) (*Limiter, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	interval := spec.Delay
	if spec.Mode == ModeJitter {
		interval = jitterMinSeconds * time.Second
	}

	return &Limiter{
		spec:    spec,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Wait blocks until the next request slot is available or ctx is done.
// In jitter mode the interval is re-drawn before each wait.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.spec.Mode == ModeJitter {
		l.limiter.SetLimit(rate.Every(l.jitterInterval()))
	}
	return l.limiter.Wait(ctx)
}

// Spec returns the configuration the limiter was built with.
func (l *Limiter) Spec() Spec {
	return l.spec
}

func (l *Limiter) jitterInterval() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	seconds := jitterMinSeconds + l.rng.Intn(jitterMaxSeconds-jitterMinSeconds+1)
	return time.Duration(seconds) * time.Second
}
