package domain

import "sync"

// QuotaState records that the remote signalled quota exhaustion during
// a run. It is owned by the run, never shared across runs, and once
// tripped every later query in that run fails fast until the owner
// decides to Reset.
type QuotaState struct {
	mu      sync.RWMutex
	tripped bool
	window  DateWindow
}

// Trip marks the quota as exhausted, remembering the window whose query
// tripped it. Only the first trip is recorded.
func (q *QuotaState) Trip(window DateWindow) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.tripped {
		return
	}
	q.tripped = true
	q.window = window
}

// Tripped reports whether the quota has been exhausted.
func (q *QuotaState) Tripped() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.tripped
}

// TrippedWindow returns the window that tripped the quota, if any.
func (q *QuotaState) TrippedWindow() (DateWindow, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.window, q.tripped
}

// Reset clears the flag; a deliberate operator decision, never automatic.
func (q *QuotaState) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tripped = false
	q.window = DateWindow{}
}
