package pipeline

import "context"

// Step is one unit of the collection pipeline. Implementations are
// stateless across runs: everything run-scoped lives in RunState or is
// constructed inside Execute.
type Step interface {
	// ID returns the unique step identifier.
	ID() string

	// Name returns the human-readable step name.
	Name() string

	// Validate checks that the step can run against the given state.
	// A validation failure skips the step and fails the run.
	Validate(state *RunState) error

	// Execute performs the step's work. It must honor ctx cancellation
	// and report failures as PipelineError for classification.
	Execute(ctx context.Context, state *RunState) error
}

// BaseStep provides the identity boilerplate steps embed.
type BaseStep struct {
	id   string
	name string
}

// NewBaseStep creates a BaseStep with the given identity.
func NewBaseStep(id, name string) BaseStep {
	return BaseStep{id: id, name: name}
}

func (b BaseStep) ID() string {
	return b.id
}

func (b BaseStep) Name() string {
	return b.name
}

// Validate passes by default; steps with preconditions override it.
func (b BaseStep) Validate(_ *RunState) error {
	return nil
}
