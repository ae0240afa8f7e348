package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/eric2umeh/techignite-jobs/backoff"
	"github.com/eric2umeh/techignite-jobs/id"
)

// SleepScheduler is the narrow clock interface the workflow context uses
// to persist wakeups. Implemented by clock.Scheduler; defined here to
// break the import cycle between workflow and clock.
type SleepScheduler interface {
	// Schedule idempotently persists a wakeup for the given run and sleep
	// step. Scheduling the same (run, step) twice keeps the earlier FireAt.
	Schedule(ctx context.Context, runID id.RunID, stepName string, fireAt time.Time) error
}

// StepEmitter is called by the Workflow to emit step lifecycle events.
type StepEmitter interface {
	EmitStepCompleted(ctx context.Context, run *Run, stepName string, elapsed time.Duration)
	EmitStepFailed(ctx context.Context, run *Run, stepName string, err error)
}

// Workflow is the execution context passed to workflow handler functions.
// It provides durable action steps and durable sleep. Each method records
// completions in the step ledger to enable crash recovery.
type Workflow struct {
	ctx       context.Context
	run       *Run
	store     Store
	clock     SleepScheduler
	emitter   StepEmitter
	logger    *slog.Logger
	cancelled func() bool
	attempts  int
	bo        backoff.Strategy
}

// NewContext creates a new Workflow execution context.
// This is called by the Runner, not by users.
func NewContext(
	ctx context.Context,
	run *Run,
	store Store,
	clock SleepScheduler,
	emitter StepEmitter,
	logger *slog.Logger,
	cancelled func() bool,
	attempts int,
	bo backoff.Strategy,
) *Workflow {
	return &Workflow{
		ctx:       ctx,
		run:       run,
		store:     store,
		clock:     clock,
		emitter:   emitter,
		logger:    logger,
		cancelled: cancelled,
		attempts:  attempts,
		bo:        bo,
	}
}

// Context returns the underlying context.Context.
func (w *Workflow) Context() context.Context { return w.ctx }

// RunID returns the workflow run ID.
func (w *Workflow) RunID() id.RunID { return w.run.ID }

// Run returns the workflow run.
func (w *Workflow) Run() *Run { return w.run }
