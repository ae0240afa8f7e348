package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	jobs "github.com/eric2umeh/techignite-jobs"
	"github.com/eric2umeh/techignite-jobs/backoff"
	"github.com/eric2umeh/techignite-jobs/id"
)

// Clock is the clock surface the Runner needs: scheduling wakeups for
// sleeps, telling whether a run still has one pending, and dropping the
// wakeups of a run cancelled at its suspension point.
type Clock interface {
	SleepScheduler

	// Pending reports whether the run has a wakeup waiting to fire.
	Pending(ctx context.Context, runID id.RunID) (bool, error)

	// CancelRun removes every wakeup owned by the run.
	CancelRun(ctx context.Context, runID id.RunID) error
}

// RunEmitter emits run-level lifecycle events.
type RunEmitter interface {
	StepEmitter
	EmitRunStarted(ctx context.Context, run *Run)
	EmitRunCompleted(ctx context.Context, run *Run, elapsed time.Duration)
	EmitRunCancelled(ctx context.Context, run *Run)
	EmitRunFailed(ctx context.Context, run *Run, err error)
}

// NopEmitter is a RunEmitter that does nothing.
type NopEmitter struct{}

func (NopEmitter) EmitStepCompleted(context.Context, *Run, string, time.Duration) {}
func (NopEmitter) EmitStepFailed(context.Context, *Run, string, error)            {}
func (NopEmitter) EmitRunStarted(context.Context, *Run)                           {}
func (NopEmitter) EmitRunCompleted(context.Context, *Run, time.Duration)          {}
func (NopEmitter) EmitRunCancelled(context.Context, *Run)                         {}
func (NopEmitter) EmitRunFailed(context.Context, *Run, error)                     {}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMaxStepAttempts sets the number of attempts per action step.
func WithMaxStepAttempts(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.attempts = n
		}
	}
}

// WithBackoff sets the retry delay strategy for action steps.
func WithBackoff(b backoff.Strategy) RunnerOption {
	return func(r *Runner) { r.bo = b }
}

// WithResumeConcurrency bounds the parallelism of ResumeAll.
func WithResumeConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.resumeLimit = n
		}
	}
}

// Runner orchestrates workflow execution: creating runs, building the
// Workflow context, invoking handlers, and settling terminal states.
type Runner struct {
	registry *Registry
	store    Store
	clock    Clock
	emitter  RunEmitter
	logger   *slog.Logger

	attempts    int
	bo          backoff.Strategy
	resumeLimit int

	// inflight maps runID string -> *inflightFlag for runs whose handler
	// is currently executing on this process.
	inflight sync.Map
}

// inflightFlag carries a cancellation request to an executing handler.
// The mutex orders RequestCancel against the runner's final read: once
// detach runs, set refuses the request and the caller settles against
// the store instead, so a request accepted here is never dropped.
type inflightFlag struct {
	mu        sync.Mutex
	cancelled bool
	detached  bool
}

// set marks the flag. Reports false once the runner has detached.
func (f *inflightFlag) set() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.detached {
		return false
	}
	f.cancelled = true
	return true
}

func (f *inflightFlag) get() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

// detach closes the flag to new requests and returns whether one landed
// before the close.
func (f *inflightFlag) detach() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detached = true
	return f.cancelled
}

// NewRunner creates a workflow runner.
func NewRunner(
	registry *Registry,
	store Store,
	clock Clock,
	emitter RunEmitter,
	logger *slog.Logger,
	opts ...RunnerOption,
) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if emitter == nil {
		emitter = NopEmitter{}
	}
	r := &Runner{
		registry:    registry,
		store:       store,
		clock:       clock,
		emitter:     emitter,
		logger:      logger,
		attempts:    3,
		bo:          backoff.DefaultStrategy(),
		resumeLimit: 8,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns the workflow registry.
func (r *Runner) Registry() *Registry { return r.registry }

// Start starts a new workflow run with a typed input.
// The input is JSON-marshaled and stored on the Run.
func Start[T any](ctx context.Context, runner *Runner, kind string, input T) (*Run, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal input for workflow %q: %w", kind, err)
	}
	return runner.StartRaw(ctx, kind, data)
}

// StartRaw starts a workflow run with pre-serialized JSON input.
//
// When the workflow declares a correlation key and a non-terminal run
// already holds it, StartRaw is an idempotent no-op: it logs, leaves the
// existing run untouched, and returns it. This is what keeps two
// concurrent triggers from arming duplicate expiration timers.
func (r *Runner) StartRaw(ctx context.Context, kind string, input []byte) (*Run, error) {
	runnerFn, ok := r.registry.Get(kind)
	if !ok {
		return nil, fmt.Errorf("no workflow registered for %q", kind)
	}

	key, err := r.registry.CorrelationKey(kind, input)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	run := &Run{
		ID:             id.NewRunID(),
		Kind:           kind,
		State:          RunStateRunning,
		Input:          input,
		CorrelationKey: key,
		StartedAt:      now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := r.store.CreateRun(ctx, run); err != nil {
		if errors.Is(err, jobs.ErrDuplicateRun) {
			existing, findErr := r.store.FindActiveRun(ctx, kind, key)
			if findErr != nil {
				return nil, fmt.Errorf("find existing run for workflow %q: %w", kind, findErr)
			}
			r.logger.Info("duplicate trigger ignored",
				slog.String("workflow", kind),
				slog.String("correlation_key", key),
				slog.String("run_id", existing.ID.String()),
			)
			return existing, nil
		}
		return nil, fmt.Errorf("create run for workflow %q: %w", kind, err)
	}

	r.emitter.EmitRunStarted(ctx, run)

	// Execute synchronously until the first suspension or a terminal state.
	r.executeRun(ctx, run, runnerFn)

	return run, nil
}

// Resume re-enters a run's handler, replaying completed steps from the
// ledger. Resuming a terminal run is a no-op: a wakeup can outlive its
// run when a cancellation won the race.
func (r *Runner) Resume(ctx context.Context, runID id.RunID) error {
	run, err := r.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("get run %s: %w", runID, err)
	}
	if run.State.Terminal() {
		r.logger.Debug("stale resume ignored",
			slog.String("run_id", runID.String()),
			slog.String("state", string(run.State)),
		)
		return nil
	}

	runnerFn, ok := r.registry.Get(run.Kind)
	if !ok {
		return fmt.Errorf("no workflow registered for %q (run %s)", run.Kind, runID)
	}

	r.executeRun(ctx, run, runnerFn)
	return nil
}

// ResumeAll finds runs in the running state without a pending wakeup and
// resumes them. Called at startup: such runs were executing an action when
// the process died, or their wakeup fired but the resume never finished.
// Runs suspended at a sleep are left to the clock.
func (r *Runner) ResumeAll(ctx context.Context) error {
	runs, err := r.store.ListRuns(ctx, ListOpts{State: RunStateRunning})
	if err != nil {
		return fmt.Errorf("list running workflow runs: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.resumeLimit)

	for _, run := range runs {
		pending, pendErr := r.clock.Pending(ctx, run.ID)
		if pendErr != nil {
			return fmt.Errorf("check pending wakeup for run %s: %w", run.ID, pendErr)
		}
		if pending {
			continue
		}

		runID := run.ID
		kind := run.Kind
		g.Go(func() error {
			r.logger.Info("recovering workflow run",
				slog.String("run_id", runID.String()),
				slog.String("workflow", kind),
			)
			if resumeErr := r.Resume(gctx, runID); resumeErr != nil {
				r.logger.Error("failed to recover workflow run",
					slog.String("run_id", runID.String()),
					slog.String("error", resumeErr.Error()),
				)
			}
			return nil
		})
	}

	return g.Wait()
}

// RequestCancel flags an in-flight run for cancellation at its next step
// boundary, or at its suspension point if the handler is already
// unwinding into a sleep. Reports false when the run is not currently
// executing on this process (it is suspended, or terminal), in which
// case the caller settles the cancellation against the store directly.
func (r *Runner) RequestCancel(runID id.RunID) bool {
	v, ok := r.inflight.Load(runID.String())
	if !ok {
		return false
	}
	return v.(*inflightFlag).set()
}

// executeRun invokes the handler and settles the outcome. All terminal
// transitions are compare-and-swap from running, so a concurrent
// cancellation and a completion can never both win.
func (r *Runner) executeRun(ctx context.Context, run *Run, runnerFn RunnerFunc) {
	flag := &inflightFlag{}
	r.inflight.Store(run.ID.String(), flag)
	defer r.inflight.Delete(run.ID.String())

	start := time.Now()
	wf := NewContext(ctx, run, r.store, r.clock, r.emitter, r.logger, flag.get, r.attempts, r.bo)

	result, err := runnerFn(wf, run.Input)
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, ErrSuspended):
		// A cancellation can land after the sleep step armed its wakeup
		// but before the handler finished unwinding. The request is
		// delivered at most once, so it must be consumed here or the
		// run would sleep on to its wakeup as if never cancelled.
		if flag.detach() {
			r.cancelAtSuspension(ctx, run)
			return
		}
		// Still running; the clock owns the next move.
		return

	case errors.Is(err, ErrCancelled):
		r.settle(ctx, run, RunStateCancelled, nil, "cancelled")
		r.emitter.EmitRunCancelled(ctx, run)
		return

	case err != nil:
		r.settle(ctx, run, RunStateFailed, nil, err.Error())
		r.emitter.EmitRunFailed(ctx, run, err)
		return
	}

	var output []byte
	if result != nil {
		output, err = json.Marshal(result)
		if err != nil {
			r.logger.Error("failed to marshal run output",
				slog.String("run_id", run.ID.String()),
				slog.String("error", err.Error()),
			)
			r.settle(ctx, run, RunStateFailed, nil, err.Error())
			r.emitter.EmitRunFailed(ctx, run, err)
			return
		}
	}

	if r.settle(ctx, run, RunStateCompleted, output, "") {
		r.emitter.EmitRunCompleted(ctx, run, elapsed)
	}
}

// cancelAtSuspension settles a cancellation that arrived while the
// handler was unwinding into a sleep: CAS the run to cancelled, then
// drop its wakeups so the clock never resumes it.
func (r *Runner) cancelAtSuspension(ctx context.Context, run *Run) {
	if !r.settle(ctx, run, RunStateCancelled, nil, "cancelled") {
		return
	}
	if err := r.clock.CancelRun(ctx, run.ID); err != nil {
		r.logger.Error("failed to drop wakeups for cancelled run",
			slog.String("run_id", run.ID.String()),
			slog.String("error", err.Error()),
		)
	}
	r.emitter.EmitRunCancelled(ctx, run)
	r.logger.Info("run cancelled at suspension",
		slog.String("run_id", run.ID.String()),
		slog.String("correlation_key", run.CorrelationKey),
	)
}

// settle CASes the run from running into a terminal state. A false return
// means another path (cancellation, usually) got there first.
func (r *Runner) settle(ctx context.Context, run *Run, to RunState, output []byte, errText string) bool {
	ok, err := r.store.TransitionRun(ctx, run.ID, RunStateRunning, to, output, errText)
	if err != nil {
		r.logger.Error("failed to settle run",
			slog.String("run_id", run.ID.String()),
			slog.String("to", string(to)),
			slog.String("error", err.Error()),
		)
		return false
	}
	if !ok {
		r.logger.Debug("terminal transition lost race",
			slog.String("run_id", run.ID.String()),
			slog.String("to", string(to)),
		)
		return false
	}

	now := time.Now().UTC()
	run.State = to
	run.Output = output
	run.Error = errText
	run.CompletedAt = &now
	return true
}
