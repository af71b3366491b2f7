package pipeline

import (
	"fmt"
	"sync"
	"time"
)

// ProgressTracker converts a window-by-window fetch loop into percent
// progress and an ETA for status events.
type ProgressTracker struct {
	mu        sync.Mutex
	total     int
	current   int
	message   string
	startTime time.Time
}

// NewProgressTracker creates a tracker over total units of work.
func NewProgressTracker(total int) *ProgressTracker {
	if total < 1 {
		total = 1
	}
	return &ProgressTracker{
		total:     total,
		startTime: time.Now(),
	}
}

// Increment advances by one unit and records a message.
func (t *ProgressTracker) Increment(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current < t.total {
		t.current++
	}
	t.message = message
}

// Update sets the absolute position.
func (t *ProgressTracker) Update(current int, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if current < 0 {
		current = 0
	}
	if current > t.total {
		current = t.total
	}
	t.current = current
	t.message = message
}

// Progress returns completion as an integer percentage.
func (t *ProgressTracker) Progress() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current * 100 / t.total
}

// Message returns the latest progress message.
func (t *ProgressTracker) Message() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.message
}

// IsComplete reports whether all units finished.
func (t *ProgressTracker) IsComplete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current >= t.total
}

// ETA estimates remaining time from the average pace so far. It returns
// "unknown" before the first unit completes.
func (t *ProgressTracker) ETA() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == 0 {
		return "unknown"
	}
	if t.current >= t.total {
		return "0s"
	}
	elapsed := time.Since(t.startTime)
	perUnit := elapsed / time.Duration(t.current)
	remaining := perUnit * time.Duration(t.total-t.current)
	return formatETA(remaining)
}

func formatETA(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
