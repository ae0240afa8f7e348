package workflow

// Definition is a typed workflow definition with a handler function.
// T is the input type (must be JSON-serializable for Run.Input storage).
type Definition[T any] struct {
	// Name is the unique identifier for this workflow kind.
	Name string

	// Handler is the function that executes the workflow logic. It receives
	// a *Workflow which provides Step, StepWithResult, and Sleep. The
	// returned value, if non-nil, is JSON-marshaled into Run.Output when
	// the run completes.
	Handler func(wf *Workflow, input T) (any, error)

	// CorrelationKey extracts the business identifier used to deduplicate
	// runs and route cancellations. Nil means the workflow is neither
	// deduplicated nor cancellable.
	CorrelationKey func(input T) string
}

// New creates a typed workflow definition.
func New[T any](name string, handler func(wf *Workflow, input T) (any, error)) *Definition[T] {
	return &Definition[T]{
		Name:    name,
		Handler: handler,
	}
}
