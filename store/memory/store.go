// Package memory provides a fully in-memory store implementation.
// Safe for concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	jobs "github.com/eric2umeh/techignite-jobs"
	"github.com/eric2umeh/techignite-jobs/clock"
	"github.com/eric2umeh/techignite-jobs/id"
	"github.com/eric2umeh/techignite-jobs/workflow"
)

// Ensure Store implements every subsystem interface at compile time.
var (
	_ workflow.Store = (*Store)(nil)
	_ clock.Store    = (*Store)(nil)
)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	runs    map[string]*workflow.Run
	steps   map[string]*workflow.StepRecord // key: "runID:stepName"
	wakeups map[string]*clock.Wakeup        // key: "runID:stepName"
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		runs:    make(map[string]*workflow.Run),
		steps:   make(map[string]*workflow.StepRecord),
		wakeups: make(map[string]*clock.Wakeup),
	}
}

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Workflow runs
// ──────────────────────────────────────────────────

// CreateRun persists a new workflow run. The duplicate-correlation check
// and the insert happen under one lock, which is what makes two
// simultaneous starts for the same key collapse to one run.
func (m *Store) CreateRun(_ context.Context, run *workflow.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if run.CorrelationKey != "" {
		for _, r := range m.runs {
			if r.Kind == run.Kind && r.CorrelationKey == run.CorrelationKey && !r.State.Terminal() {
				return jobs.ErrDuplicateRun
			}
		}
	}

	cp := *run
	m.runs[run.ID.String()] = &cp
	return nil
}

// GetRun retrieves a workflow run by ID.
func (m *Store) GetRun(_ context.Context, runID id.RunID) (*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.runs[runID.String()]
	if !ok {
		return nil, jobs.ErrRunNotFound
	}
	cp := *r
	return &cp, nil
}

// FindActiveRun returns the non-terminal run of the given kind holding
// the correlation key.
func (m *Store) FindActiveRun(_ context.Context, kind, correlationKey string) (*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.runs {
		if r.Kind == kind && r.CorrelationKey == correlationKey && !r.State.Terminal() {
			cp := *r
			return &cp, nil
		}
	}
	return nil, jobs.ErrRunNotFound
}

// TransitionRun atomically moves a run between states.
func (m *Store) TransitionRun(_ context.Context, runID id.RunID, from, to workflow.RunState, output []byte, errText string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.runs[runID.String()]
	if !ok {
		return false, jobs.ErrRunNotFound
	}
	if r.State != from {
		return false, nil
	}

	now := time.Now().UTC()
	r.State = to
	r.Output = output
	r.Error = errText
	r.UpdatedAt = now
	if to.Terminal() {
		r.CompletedAt = &now
	}
	return true, nil
}

// ListRuns returns workflow runs matching the given options.
func (m *Store) ListRuns(_ context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*workflow.Run, 0, len(m.runs))
	for _, r := range m.runs {
		if opts.State != "" && r.State != opts.State {
			continue
		}
		if opts.Kind != "" && r.Kind != opts.Kind {
			continue
		}
		if !opts.CompletedBefore.IsZero() {
			if r.CompletedAt == nil || !r.CompletedAt.Before(opts.CompletedBefore) {
				continue
			}
		}
		cp := *r
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// ──────────────────────────────────────────────────
// Step ledger
// ──────────────────────────────────────────────────

// stepKey builds a composite map key for a step record.
func stepKey(runID id.RunID, stepName string) string {
	return runID.String() + ":" + stepName
}

// RecordStep persists a completed step, replacing any earlier record for
// the same run and step name.
func (m *Store) RecordStep(_ context.Context, rec *workflow.StepRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *rec
	m.steps[stepKey(rec.RunID, rec.StepName)] = &cp
	return nil
}

// GetStep retrieves the record for a specific step of a run.
func (m *Store) GetStep(_ context.Context, runID id.RunID, stepName string) (*workflow.StepRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.steps[stepKey(runID, stepName)]
	if !ok {
		return nil, nil // no record is not an error
	}
	cp := *rec
	return &cp, nil
}

// ListSteps returns all step records of a run in completion order.
func (m *Store) ListSteps(_ context.Context, runID id.RunID) ([]*workflow.StepRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := runID.String() + ":"
	var result []*workflow.StepRecord
	for k, rec := range m.steps {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			cp := *rec
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CompletedAt.Before(result[k].CompletedAt)
	})

	return result, nil
}

// DeleteSteps removes all step records of a run.
func (m *Store) DeleteSteps(_ context.Context, runID id.RunID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := runID.String() + ":"
	for k := range m.steps {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			delete(m.steps, k)
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Durable wakeups
// ──────────────────────────────────────────────────

// ScheduleWakeup persists a wakeup, keeping an existing one for the same
// (run, step) untouched.
func (m *Store) ScheduleWakeup(_ context.Context, w *clock.Wakeup) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := stepKey(w.RunID, w.StepName)
	if _, exists := m.wakeups[key]; exists {
		return nil
	}
	cp := *w
	m.wakeups[key] = &cp
	return nil
}

// DueWakeups returns up to limit wakeups with FireAt <= now, oldest first.
func (m *Store) DueWakeups(_ context.Context, now time.Time, limit int) ([]*clock.Wakeup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*clock.Wakeup
	for _, w := range m.wakeups {
		if w.FireAt.After(now) {
			continue
		}
		cp := *w
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].FireAt.Before(result[k].FireAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// DeleteWakeup removes the wakeup for a specific sleep step.
func (m *Store) DeleteWakeup(_ context.Context, runID id.RunID, stepName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.wakeups, stepKey(runID, stepName))
	return nil
}

// DeleteWakeupsForRun removes every wakeup owned by a run.
func (m *Store) DeleteWakeupsForRun(_ context.Context, runID id.RunID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := runID.String() + ":"
	for k := range m.wakeups {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			delete(m.wakeups, k)
		}
	}
	return nil
}

// HasWakeup reports whether the run has any wakeup pending.
func (m *Store) HasWakeup(_ context.Context, runID id.RunID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := runID.String() + ":"
	for k := range m.wakeups {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			return true, nil
		}
	}
	return false, nil
}
