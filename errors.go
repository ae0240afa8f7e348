package jobs

import "errors"

var (
	// ErrNoStore is returned when the engine is built without a store.
	ErrNoStore = errors.New("jobs: no store configured")

	// ErrRunNotFound is returned when a run lookup finds nothing.
	ErrRunNotFound = errors.New("jobs: run not found")

	// ErrDuplicateRun is returned when a trigger would create a second
	// non-terminal run for the same workflow kind and correlation key.
	ErrDuplicateRun = errors.New("jobs: active run already exists for correlation key")
)
