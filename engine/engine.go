// Package engine wires the workflow core together: the run store and step
// ledger, the durable clock, the cancellation bus, and the workflow
// runner. It exposes start and cancel operations to the trigger layer.
//
// This package sits above all subsystem packages and below the
// application layer, which keeps the subsystems free of import cycles:
// the clock resumes runs through a callback the engine provides, and the
// runner schedules sleeps through the clock interface.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	jobs "github.com/eric2umeh/techignite-jobs"
	"github.com/eric2umeh/techignite-jobs/backoff"
	"github.com/eric2umeh/techignite-jobs/clock"
	"github.com/eric2umeh/techignite-jobs/id"
	"github.com/eric2umeh/techignite-jobs/signal"
	"github.com/eric2umeh/techignite-jobs/store"
	"github.com/eric2umeh/techignite-jobs/workflow"
)

// Engine is the workflow engine: it owns run lifecycle from trigger event
// to terminal state.
type Engine struct {
	store    store.Store
	registry *workflow.Registry
	runner   *workflow.Runner
	sched    *clock.Scheduler
	bus      *signal.Bus
	emitter  workflow.RunEmitter
	logger   *slog.Logger
	cfg      jobs.Config

	unsubscribe func()
	started     bool
}

// Option configures an Engine.
type Option func(*settings)

type settings struct {
	logger  *slog.Logger
	cfg     jobs.Config
	bo      backoff.Strategy
	emitter workflow.RunEmitter
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithConfig sets the engine configuration.
func WithConfig(cfg jobs.Config) Option {
	return func(s *settings) { s.cfg = cfg }
}

// WithBackoff sets the retry backoff strategy for action steps.
// If not set, backoff.DefaultStrategy() (exponential with jitter) is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(s *settings) { s.bo = b }
}

// WithEmitter sets the run lifecycle emitter (metrics, alerting).
func WithEmitter(e workflow.RunEmitter) Option {
	return func(s *settings) { s.emitter = e }
}

// Build creates an Engine on top of the given store.
func Build(st store.Store, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, jobs.ErrNoStore
	}

	s := &settings{
		logger:  slog.Default(),
		cfg:     jobs.DefaultConfig(),
		bo:      backoff.DefaultStrategy(),
		emitter: workflow.NopEmitter{},
	}
	for _, opt := range opts {
		opt(s)
	}

	registry := workflow.NewRegistry()

	// The scheduler resumes runs through the runner, and the runner
	// schedules sleeps through the scheduler. The closure breaks the
	// construction cycle.
	var runner *workflow.Runner
	sched := clock.NewScheduler(st, st, func(ctx context.Context, runID id.RunID) error {
		return runner.Resume(ctx, runID)
	}, s.logger,
		clock.WithTickInterval(s.cfg.TickInterval),
		clock.WithResumeConcurrency(s.cfg.ResumeConcurrency),
	)

	runner = workflow.NewRunner(registry, st, sched, s.emitter, s.logger,
		workflow.WithMaxStepAttempts(s.cfg.MaxStepAttempts),
		workflow.WithBackoff(s.bo),
		workflow.WithResumeConcurrency(s.cfg.ResumeConcurrency),
	)

	return &Engine{
		store:    st,
		registry: registry,
		runner:   runner,
		sched:    sched,
		bus:      signal.NewBus(),
		emitter:  s.emitter,
		logger:   s.logger,
		cfg:      s.cfg,
	}, nil
}

// Registry returns the workflow registry.
func (e *Engine) Registry() *workflow.Registry { return e.registry }

// Runner returns the workflow runner.
func (e *Engine) Runner() *workflow.Runner { return e.runner }

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Clock returns the durable clock scheduler.
func (e *Engine) Clock() *clock.Scheduler { return e.sched }

// Bus returns the cancellation bus.
func (e *Engine) Bus() *signal.Bus { return e.bus }

// RegisterWorkflow registers a typed workflow definition with the engine.
func RegisterWorkflow[T any](e *Engine, def *workflow.Definition[T]) {
	workflow.Register(e.registry, def)
}

// Start subscribes to cancellations, starts the durable clock, and
// recovers runs interrupted mid-action by a previous crash. Wakeups that
// came due while the process was down fire on the clock's first scan.
func (e *Engine) Start(ctx context.Context) error {
	if e.started {
		return fmt.Errorf("engine: already started")
	}
	e.started = true

	e.unsubscribe = e.bus.Subscribe(e.onCancellation)

	if err := e.sched.Start(ctx); err != nil {
		return fmt.Errorf("engine: start clock: %w", err)
	}

	if err := e.runner.ResumeAll(ctx); err != nil {
		return fmt.Errorf("engine: recover runs: %w", err)
	}

	e.logger.Info("workflow engine started",
		slog.Any("workflows", e.registry.Names()),
	)
	return nil
}

// Stop stops the clock and detaches from the cancellation bus. In-flight
// runs finish their current step; suspended runs stay suspended and
// resume on the next Start.
func (e *Engine) Stop(ctx context.Context) error {
	if !e.started {
		return nil
	}
	e.started = false

	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}

	stopCtx, cancel := context.WithTimeout(ctx, e.cfg.ShutdownTimeout)
	defer cancel()

	if err := e.sched.Stop(stopCtx); err != nil {
		return fmt.Errorf("engine: stop clock: %w", err)
	}

	e.logger.Info("workflow engine stopped")
	return nil
}

// StartWorkflow starts a run with a typed input. Duplicate triggers for a
// deduplicated workflow return the existing run.
func StartWorkflow[T any](ctx context.Context, e *Engine, kind string, input T) (*workflow.Run, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("engine: marshal input for workflow %q: %w", kind, err)
	}
	return e.StartWorkflowRaw(ctx, kind, data)
}

// StartWorkflowRaw starts a run with pre-serialized JSON input.
func (e *Engine) StartWorkflowRaw(ctx context.Context, kind string, input []byte) (*workflow.Run, error) {
	return e.runner.StartRaw(ctx, kind, input)
}

// Cancel publishes a cancellation request for the given correlation key.
// It lands on whichever running run of a cancellable workflow holds the
// key; with no such run it is dropped.
func (e *Engine) Cancel(ctx context.Context, correlationKey string) {
	e.bus.Publish(ctx, correlationKey)
}

// onCancellation settles a cancellation request against the matching run.
//
// A run executing on this process is flagged and stops at its next step
// boundary. A suspended run is settled directly: compare-and-swap to
// cancelled, then drop its wakeups so the clock never resumes it. The CAS
// settles the race with a concurrently completing run: whoever
// transitions first wins, and the loser's write is a no-op.
func (e *Engine) onCancellation(ctx context.Context, c signal.Cancellation) {
	for _, kind := range e.registry.CancellableKinds() {
		run, err := e.store.FindActiveRun(ctx, kind, c.CorrelationKey)
		if errors.Is(err, jobs.ErrRunNotFound) {
			continue
		}
		if err != nil {
			e.logger.Error("cancellation lookup error",
				slog.String("workflow", kind),
				slog.String("correlation_key", c.CorrelationKey),
				slog.String("error", err.Error()),
			)
			continue
		}

		if e.runner.RequestCancel(run.ID) {
			e.logger.Info("cancellation flagged for in-flight run",
				slog.String("run_id", run.ID.String()),
				slog.String("correlation_key", c.CorrelationKey),
			)
			continue
		}

		ok, trErr := e.store.TransitionRun(ctx, run.ID, workflow.RunStateRunning, workflow.RunStateCancelled, nil, "cancelled")
		if trErr != nil {
			e.logger.Error("cancel transition error",
				slog.String("run_id", run.ID.String()),
				slog.String("error", trErr.Error()),
			)
			continue
		}
		if !ok {
			continue // completed or failed first
		}

		if dropErr := e.sched.CancelRun(ctx, run.ID); dropErr != nil {
			e.logger.Error("drop wakeups error",
				slog.String("run_id", run.ID.String()),
				slog.String("error", dropErr.Error()),
			)
		}

		now := time.Now().UTC()
		run.State = workflow.RunStateCancelled
		run.CompletedAt = &now
		e.emitter.EmitRunCancelled(ctx, run)

		e.logger.Info("suspended run cancelled",
			slog.String("run_id", run.ID.String()),
			slog.String("correlation_key", c.CorrelationKey),
		)
	}
}
