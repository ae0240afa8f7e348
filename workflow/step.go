package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/eric2umeh/techignite-jobs/id"
)

// ErrSuspended unwinds a handler when a sleep step has scheduled its wakeup.
// The runner leaves the run in the running state; the durable clock resumes
// it when the wakeup fires. Handlers must propagate this error unchanged.
var ErrSuspended = errors.New("workflow: run suspended until wakeup")

// ErrCancelled unwinds a handler when a matching cancellation request was
// observed at a resume boundary. The runner marks the run cancelled.
var ErrCancelled = errors.New("workflow: run cancelled")

// Step executes a named action step. If a ledger record exists for this
// step name, the step is skipped (idempotent replay). Otherwise the
// function is executed with bounded retries and a record is written on
// success, before control returns to the handler.
func (w *Workflow) Step(name string, fn func(ctx context.Context) error) error {
	rec, err := w.store.GetStep(w.ctx, w.run.ID, name)
	if err != nil {
		return fmt.Errorf("workflow %s: get step %q: %w", w.run.Kind, name, err)
	}
	if rec != nil {
		w.logger.Debug("skipping recorded step",
			slog.String("run_id", w.run.ID.String()),
			slog.String("step", name),
		)
		return nil
	}

	if err := w.checkCancelled(name); err != nil {
		return err
	}

	start := time.Now()
	stepErr := w.retry(name, fn)
	elapsed := time.Since(start)

	if stepErr != nil {
		w.emitter.EmitStepFailed(w.ctx, w.run, name, stepErr)
		return fmt.Errorf("workflow %s step %q: %w", w.run.Kind, name, stepErr)
	}

	if saveErr := w.record(name, StepKindAction, nil); saveErr != nil {
		return saveErr
	}

	w.emitter.EmitStepCompleted(w.ctx, w.run, name, elapsed)
	return nil
}

// StepWithResult executes a named action step that returns a typed value.
// The result is serialized via msgpack and saved in the step ledger. On
// replay, the recorded result is deserialized and returned without
// re-executing the step function.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func StepWithResult[T any](w *Workflow, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	rec, err := w.store.GetStep(w.ctx, w.run.ID, name)
	if err != nil {
		return zero, fmt.Errorf("workflow %s: get step %q: %w", w.run.Kind, name, err)
	}
	if rec != nil {
		var result T
		if decErr := msgpack.Unmarshal(rec.Result, &result); decErr != nil {
			return zero, fmt.Errorf("workflow %s: decode step %q: %w", w.run.Kind, name, decErr)
		}
		w.logger.Debug("returning recorded step result",
			slog.String("run_id", w.run.ID.String()),
			slog.String("step", name),
		)
		return result, nil
	}

	if err := w.checkCancelled(name); err != nil {
		return zero, err
	}

	start := time.Now()
	var result T
	stepErr := w.retry(name, func(ctx context.Context) error {
		var fnErr error
		result, fnErr = fn(ctx)
		return fnErr
	})
	elapsed := time.Since(start)

	if stepErr != nil {
		w.emitter.EmitStepFailed(w.ctx, w.run, name, stepErr)
		return zero, fmt.Errorf("workflow %s step %q: %w", w.run.Kind, name, stepErr)
	}

	data, encErr := msgpack.Marshal(result)
	if encErr != nil {
		return zero, fmt.Errorf("workflow %s: encode step %q: %w", w.run.Kind, name, encErr)
	}

	if saveErr := w.record(name, StepKindAction, data); saveErr != nil {
		return zero, saveErr
	}

	w.emitter.EmitStepCompleted(w.ctx, w.run, name, elapsed)
	return result, nil
}

// Sleep suspends the workflow for the specified duration. If a ledger
// record exists for this sleep step, it already elapsed and the handler
// continues immediately. Otherwise a durable wakeup is persisted and the
// handler unwinds with ErrSuspended; the clock records the sleep as
// complete and resumes the run when the wakeup fires, surviving process
// restarts of arbitrary length.
func (w *Workflow) Sleep(name string, d time.Duration) error {
	rec, err := w.store.GetStep(w.ctx, w.run.ID, name)
	if err != nil {
		return fmt.Errorf("workflow %s: get sleep %q: %w", w.run.Kind, name, err)
	}
	if rec != nil {
		w.logger.Debug("skipping elapsed sleep",
			slog.String("run_id", w.run.ID.String()),
			slog.String("step", name),
		)
		return nil
	}

	if err := w.checkCancelled(name); err != nil {
		return err
	}

	fireAt := time.Now().UTC().Add(d)
	if schedErr := w.clock.Schedule(w.ctx, w.run.ID, name, fireAt); schedErr != nil {
		return fmt.Errorf("workflow %s: schedule wakeup %q: %w", w.run.Kind, name, schedErr)
	}

	w.logger.Debug("run suspended",
		slog.String("run_id", w.run.ID.String()),
		slog.String("step", name),
		slog.Time("fire_at", fireAt),
	)
	return fmt.Errorf("workflow %s sleep %q: %w", w.run.Kind, name, ErrSuspended)
}

// record writes a step completion to the ledger.
func (w *Workflow) record(name string, kind StepKind, result []byte) error {
	rec := &StepRecord{
		ID:          id.NewStepID(),
		RunID:       w.run.ID,
		StepName:    name,
		Kind:        kind,
		Result:      result,
		CompletedAt: time.Now().UTC(),
	}
	if err := w.store.RecordStep(w.ctx, rec); err != nil {
		return fmt.Errorf("workflow %s: record step %q: %w", w.run.Kind, name, err)
	}
	return nil
}

// checkCancelled returns ErrCancelled when a cancellation request for this
// run arrived. Called only before a step executes for real, never on
// replay, so a committed terminal step always beats a late cancellation.
func (w *Workflow) checkCancelled(name string) error {
	if w.cancelled != nil && w.cancelled() {
		return fmt.Errorf("workflow %s at %q: %w", w.run.Kind, name, ErrCancelled)
	}
	return nil
}

// retry runs fn up to the configured attempt budget, waiting out the
// backoff strategy between attempts. Context cancellation aborts the wait.
func (w *Workflow) retry(name string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= w.attempts; attempt++ {
		lastErr = fn(w.ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == w.attempts {
			break
		}

		delay := w.bo.Delay(attempt)
		w.logger.Warn("step failed, retrying",
			slog.String("run_id", w.run.ID.String()),
			slog.String("step", name),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", lastErr.Error()),
		)

		select {
		case <-time.After(delay):
		case <-w.ctx.Done():
			return w.ctx.Err()
		}
	}
	return fmt.Errorf("%w: %w", ErrRetriesExhausted, lastErr)
}

// ErrRetriesExhausted wraps the final attempt error once the retry budget
// for an action step is spent.
var ErrRetriesExhausted = errors.New("workflow: step retries exhausted")
