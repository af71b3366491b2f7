package pipeline

import (
	"fmt"
	"sync"
)

// Registry holds the step set for a manager. Registration order is
// execution order: the pipeline is a straight line from authenticate to
// export, so there is no dependency resolution to do.
type Registry struct {
	mu    sync.RWMutex
	steps map[string]Step
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		steps: make(map[string]Step),
	}
}

// Register adds a step. Duplicate IDs are rejected.
func (r *Registry) Register(step Step) error {
	if step == nil {
		return fmt.Errorf("cannot register nil step")
	}
	if step.ID() == "" {
		return fmt.Errorf("cannot register step with empty ID")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.steps[step.ID()]; exists {
		return fmt.Errorf("step %s already registered", step.ID())
	}
	r.steps[step.ID()] = step
	r.order = append(r.order, step.ID())
	return nil
}

// Get returns a step by ID.
func (r *Registry) Get(id string) (Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	step, ok := r.steps[id]
	if !ok {
		return nil, fmt.Errorf("step %s not found", id)
	}
	return step, nil
}

// Has reports whether a step is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.steps[id]
	return ok
}

// List returns the steps in execution order.
func (r *Registry) List() []Step {
	r.mu.RLock()
	defer r.mu.RUnlock()

	steps := make([]Step, 0, len(r.order))
	for _, id := range r.order {
		steps = append(steps, r.steps[id])
	}
	return steps
}

// ListIDs returns the step IDs in execution order.
func (r *Registry) ListIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Count returns the number of registered steps.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.steps)
}
