package workflow_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eric2umeh/techignite-jobs/backoff"
	"github.com/eric2umeh/techignite-jobs/clock"
	"github.com/eric2umeh/techignite-jobs/id"
	"github.com/eric2umeh/techignite-jobs/store/memory"
	"github.com/eric2umeh/techignite-jobs/workflow"
)

// storeClock implements workflow.Clock over the memory store's wakeup
// table, without the tick loop of the real scheduler.
type storeClock struct {
	store *memory.Store
}

func (c *storeClock) Schedule(ctx context.Context, runID id.RunID, stepName string, fireAt time.Time) error {
	return c.store.ScheduleWakeup(ctx, &clock.Wakeup{
		ID:        id.NewWakeupID(),
		RunID:     runID,
		StepName:  stepName,
		FireAt:    fireAt,
		CreatedAt: time.Now().UTC(),
	})
}

func (c *storeClock) Pending(ctx context.Context, runID id.RunID) (bool, error) {
	return c.store.HasWakeup(ctx, runID)
}

func (c *storeClock) CancelRun(ctx context.Context, runID id.RunID) error {
	return c.store.DeleteWakeupsForRun(ctx, runID)
}

type testInput struct {
	Key   string `json:"key"`
	Value int    `json:"value"`
}

type testOutput struct {
	Key  string `json:"key"`
	Done bool   `json:"done"`
}

func newTestRunner(t *testing.T, s *memory.Store, opts ...workflow.RunnerOption) *workflow.Runner {
	t.Helper()
	base := []workflow.RunnerOption{
		workflow.WithBackoff(backoff.NewConstant(0)),
	}
	return workflow.NewRunner(
		workflow.NewRegistry(), s, &storeClock{store: s}, workflow.NopEmitter{},
		discardLogger(), append(base, opts...)...,
	)
}

// ──────────────────────────────────────────────────
// Start and suspension
// ──────────────────────────────────────────────────

func TestRunner_StartSuspendsAtSleep(t *testing.T) {
	s := memory.New()
	r := newTestRunner(t, s)

	def := workflow.New("suspend-flow", func(wf *workflow.Workflow, in testInput) (any, error) {
		if err := wf.Sleep("wait", time.Hour); err != nil {
			return nil, err
		}
		return testOutput{Key: in.Key, Done: true}, nil
	})
	workflow.Register(r.Registry(), def)

	run, err := workflow.Start(context.Background(), r, "suspend-flow", testInput{Key: "a"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	got, err := s.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.State != workflow.RunStateRunning {
		t.Errorf("run.State = %q, want running", got.State)
	}

	pending, err := s.HasWakeup(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("HasWakeup: %v", err)
	}
	if !pending {
		t.Error("suspended run must have a pending wakeup")
	}
}

func TestRunner_ResumeCompletesAfterSleepRecorded(t *testing.T) {
	s := memory.New()
	r := newTestRunner(t, s)

	actions := 0
	def := workflow.New("resume-flow", func(wf *workflow.Workflow, in testInput) (any, error) {
		if err := wf.Sleep("wait", time.Hour); err != nil {
			return nil, err
		}
		err := wf.Step("act", func(ctx context.Context) error {
			actions++
			return nil
		})
		if err != nil {
			return nil, err
		}
		return testOutput{Key: in.Key, Done: true}, nil
	})
	workflow.Register(r.Registry(), def)

	run, err := workflow.Start(context.Background(), r, "resume-flow", testInput{Key: "a"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Model the clock firing: record the sleep, drop the wakeup, resume.
	recErr := s.RecordStep(context.Background(), &workflow.StepRecord{
		ID:          id.NewStepID(),
		RunID:       run.ID,
		StepName:    "wait",
		Kind:        workflow.StepKindSleep,
		CompletedAt: time.Now().UTC(),
	})
	if recErr != nil {
		t.Fatalf("RecordStep: %v", recErr)
	}
	if err := s.DeleteWakeup(context.Background(), run.ID, "wait"); err != nil {
		t.Fatalf("DeleteWakeup: %v", err)
	}
	if err := r.Resume(context.Background(), run.ID); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	got, err := s.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.State != workflow.RunStateCompleted {
		t.Fatalf("run.State = %q, want completed", got.State)
	}
	if actions != 1 {
		t.Errorf("actions = %d, want 1", actions)
	}

	var out testOutput
	if err := json.Unmarshal(got.Output, &out); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if out.Key != "a" || !out.Done {
		t.Errorf("output = %+v, want {a true}", out)
	}
}

func TestRunner_ResumeIsIdempotent(t *testing.T) {
	s := memory.New()
	r := newTestRunner(t, s)

	actions := 0
	def := workflow.New("idem-flow", func(wf *workflow.Workflow, in testInput) (any, error) {
		err := wf.Step("act", func(ctx context.Context) error {
			actions++
			return nil
		})
		if err != nil {
			return nil, err
		}
		return testOutput{Key: in.Key, Done: true}, nil
	})
	workflow.Register(r.Registry(), def)

	run, err := workflow.Start(context.Background(), r, "idem-flow", testInput{Key: "a"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Resuming a terminal run any number of times must not re-execute
	// steps or change the outcome.
	for i := 0; i < 3; i++ {
		if err := r.Resume(context.Background(), run.ID); err != nil {
			t.Fatalf("Resume #%d: %v", i+1, err)
		}
	}

	got, _ := s.GetRun(context.Background(), run.ID)
	if got.State != workflow.RunStateCompleted {
		t.Fatalf("run.State = %q, want completed", got.State)
	}
	if actions != 1 {
		t.Errorf("actions = %d, want 1", actions)
	}
}

// ──────────────────────────────────────────────────
// Trigger dedup
// ──────────────────────────────────────────────────

func TestRunner_DuplicateTriggerReturnsExistingRun(t *testing.T) {
	s := memory.New()
	r := newTestRunner(t, s)

	def := workflow.New("dedup-flow", func(wf *workflow.Workflow, in testInput) (any, error) {
		if err := wf.Sleep("wait", time.Hour); err != nil {
			return nil, err
		}
		return nil, nil
	})
	def.CorrelationKey = func(in testInput) string { return in.Key }
	workflow.Register(r.Registry(), def)

	first, err := workflow.Start(context.Background(), r, "dedup-flow", testInput{Key: "J1"})
	if err != nil {
		t.Fatalf("first Start: %v", err)
	}
	second, err := workflow.Start(context.Background(), r, "dedup-flow", testInput{Key: "J1"})
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("duplicate trigger created run %s, want existing %s", second.ID, first.ID)
	}

	runs, err := s.ListRuns(context.Background(), workflow.ListOpts{Kind: "dedup-flow"})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("len(runs) = %d, want 1", len(runs))
	}
}

func TestRunner_ConcurrentTriggersCreateOneRun(t *testing.T) {
	s := memory.New()
	r := newTestRunner(t, s)

	def := workflow.New("race-flow", func(wf *workflow.Workflow, in testInput) (any, error) {
		if err := wf.Sleep("wait", time.Hour); err != nil {
			return nil, err
		}
		return nil, nil
	})
	def.CorrelationKey = func(in testInput) string { return in.Key }
	workflow.Register(r.Registry(), def)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := workflow.Start(context.Background(), r, "race-flow", testInput{Key: "J1"})
			if err != nil {
				t.Errorf("Start: %v", err)
			}
		}()
	}
	wg.Wait()

	runs, err := s.ListRuns(context.Background(), workflow.ListOpts{Kind: "race-flow", State: workflow.RunStateRunning})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("running runs = %d, want exactly 1", len(runs))
	}
}

// ──────────────────────────────────────────────────
// Failure path
// ──────────────────────────────────────────────────

func TestRunner_ExhaustedStepFailsRun(t *testing.T) {
	s := memory.New()
	r := newTestRunner(t, s, workflow.WithMaxStepAttempts(2))

	def := workflow.New("fail-flow", func(wf *workflow.Workflow, in testInput) (any, error) {
		err := wf.Step("act", func(ctx context.Context) error {
			return errors.New("provider down")
		})
		if err != nil {
			return nil, err
		}
		return nil, nil
	})
	workflow.Register(r.Registry(), def)

	run, err := workflow.Start(context.Background(), r, "fail-flow", testInput{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	got, _ := s.GetRun(context.Background(), run.ID)
	if got.State != workflow.RunStateFailed {
		t.Fatalf("run.State = %q, want failed", got.State)
	}
	if got.Error == "" {
		t.Error("failed run must carry an error message")
	}
}

// ──────────────────────────────────────────────────
// Recovery
// ──────────────────────────────────────────────────

func TestRunner_ResumeAllSkipsSuspendedRuns(t *testing.T) {
	s := memory.New()
	r := newTestRunner(t, s)

	resumedActions := 0
	def := workflow.New("recover-flow", func(wf *workflow.Workflow, in testInput) (any, error) {
		if err := wf.Sleep("wait", time.Hour); err != nil {
			return nil, err
		}
		err := wf.Step("act", func(ctx context.Context) error {
			resumedActions++
			return nil
		})
		if err != nil {
			return nil, err
		}
		return nil, nil
	})
	workflow.Register(r.Registry(), def)

	// suspended: wakeup still pending, the clock owns it.
	suspended, err := workflow.Start(context.Background(), r, "recover-flow", testInput{Key: "sleeping"})
	if err != nil {
		t.Fatalf("Start suspended: %v", err)
	}

	// interrupted: sleep elapsed and its wakeup was consumed, but the
	// process died before the handler finished.
	interrupted, err := workflow.Start(context.Background(), r, "recover-flow", testInput{Key: "cut-off"})
	if err != nil {
		t.Fatalf("Start interrupted: %v", err)
	}
	recErr := s.RecordStep(context.Background(), &workflow.StepRecord{
		ID:          id.NewStepID(),
		RunID:       interrupted.ID,
		StepName:    "wait",
		Kind:        workflow.StepKindSleep,
		CompletedAt: time.Now().UTC(),
	})
	if recErr != nil {
		t.Fatalf("RecordStep: %v", recErr)
	}
	if err := s.DeleteWakeup(context.Background(), interrupted.ID, "wait"); err != nil {
		t.Fatalf("DeleteWakeup: %v", err)
	}

	if err := r.ResumeAll(context.Background()); err != nil {
		t.Fatalf("ResumeAll: %v", err)
	}

	gotSuspended, _ := s.GetRun(context.Background(), suspended.ID)
	if gotSuspended.State != workflow.RunStateRunning {
		t.Errorf("suspended run state = %q, want running", gotSuspended.State)
	}
	gotInterrupted, _ := s.GetRun(context.Background(), interrupted.ID)
	if gotInterrupted.State != workflow.RunStateCompleted {
		t.Errorf("interrupted run state = %q, want completed", gotInterrupted.State)
	}
	if resumedActions != 1 {
		t.Errorf("resumed actions = %d, want 1", resumedActions)
	}
}

func TestRunner_RequestCancelReportsInflightOnly(t *testing.T) {
	s := memory.New()
	r := newTestRunner(t, s)

	if r.RequestCancel(id.NewRunID()) {
		t.Error("RequestCancel on unknown run = true, want false")
	}
}

// A cancellation accepted while the handler is unwinding into its sleep
// must settle the run; the request is delivered at most once and nothing
// would ever re-check it after the suspension completes.
func TestRunner_CancelWhileUnwindingIntoSleep(t *testing.T) {
	s := memory.New()
	r := newTestRunner(t, s)

	suspending := make(chan struct{})
	release := make(chan struct{})
	actions := 0
	def := workflow.New("handoff-flow", func(wf *workflow.Workflow, in testInput) (any, error) {
		err := wf.Sleep("wait", time.Hour)
		if err != nil {
			// Hold the unwind open so the cancellation lands while the
			// handler is still in flight.
			close(suspending)
			<-release
			return nil, err
		}
		stepErr := wf.Step("act", func(ctx context.Context) error {
			actions++
			return nil
		})
		if stepErr != nil {
			return nil, stepErr
		}
		return nil, nil
	})
	def.CorrelationKey = func(in testInput) string { return in.Key }
	workflow.Register(r.Registry(), def)

	started := make(chan struct{})
	go func() {
		defer close(started)
		if _, err := workflow.Start(context.Background(), r, "handoff-flow", testInput{Key: "K1"}); err != nil {
			t.Errorf("Start: %v", err)
		}
	}()

	<-suspending
	run, err := s.FindActiveRun(context.Background(), "handoff-flow", "K1")
	if err != nil {
		t.Fatalf("FindActiveRun: %v", err)
	}
	if !r.RequestCancel(run.ID) {
		t.Fatal("RequestCancel = false, want true while the handler is in flight")
	}
	close(release)
	<-started

	got, err := s.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.State != workflow.RunStateCancelled {
		t.Fatalf("run.State = %q, want cancelled", got.State)
	}
	pending, err := s.HasWakeup(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("HasWakeup: %v", err)
	}
	if pending {
		t.Error("cancelled run still has a pending wakeup")
	}

	// A stale wakeup firing anyway must not revive the run.
	if err := r.Resume(context.Background(), run.ID); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if actions != 0 {
		t.Errorf("actions = %d, want 0 after cancellation", actions)
	}
}

// Once the runner has detached from a suspending run, a late cancel
// request is refused so the caller settles it against the store.
func TestRunner_RequestCancelRefusedAfterSuspension(t *testing.T) {
	s := memory.New()
	r := newTestRunner(t, s)

	def := workflow.New("detached-flow", func(wf *workflow.Workflow, in testInput) (any, error) {
		if err := wf.Sleep("wait", time.Hour); err != nil {
			return nil, err
		}
		return nil, nil
	})
	def.CorrelationKey = func(in testInput) string { return in.Key }
	workflow.Register(r.Registry(), def)

	run, err := workflow.Start(context.Background(), r, "detached-flow", testInput{Key: "K2"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if r.RequestCancel(run.ID) {
		t.Error("RequestCancel on a suspended run = true, want false")
	}
	got, _ := s.GetRun(context.Background(), run.ID)
	if got.State != workflow.RunStateRunning {
		t.Errorf("run.State = %q, want running (caller owns the settle)", got.State)
	}
}
