package clock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eric2umeh/techignite-jobs/id"
	"github.com/eric2umeh/techignite-jobs/workflow"
)

// ResumeFunc is the callback the scheduler uses to resume a run whose
// wakeup fired. This breaks the import cycle: the engine provides the
// workflow runner's Resume as the implementation.
type ResumeFunc func(ctx context.Context, runID id.RunID) error

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval sets how often the scheduler scans for due wakeups.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithBatchLimit caps how many due wakeups a single tick consumes.
func WithBatchLimit(n int) SchedulerOption {
	return func(s *Scheduler) { s.batchLimit = n }
}

// WithResumeConcurrency bounds how many fired runs resume in parallel.
func WithResumeConcurrency(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.resumeLimit = n
		}
	}
}

// Scheduler is the durable clock. It persists wakeups for sleeping runs
// and fires them from a tick loop. It also implements workflow.Clock, so
// the runner schedules sleeps straight through it.
type Scheduler struct {
	store  Store
	ledger workflow.Store
	resume ResumeFunc
	logger *slog.Logger

	tickInterval time.Duration
	batchLimit   int
	resumeLimit  int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

var _ workflow.Clock = (*Scheduler)(nil)

// NewScheduler creates a Scheduler.
func NewScheduler(
	store Store,
	ledger workflow.Store,
	resume ResumeFunc,
	logger *slog.Logger,
	opts ...SchedulerOption,
) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		store:        store,
		ledger:       ledger,
		resume:       resume,
		logger:       logger,
		tickInterval: 1 * time.Second,
		batchLimit:   100,
		resumeLimit:  8,
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule implements workflow.SleepScheduler: it persists a wakeup for a
// sleeping run. Scheduling an already-pending (run, step) keeps the
// original fire time.
func (s *Scheduler) Schedule(ctx context.Context, runID id.RunID, stepName string, fireAt time.Time) error {
	w := &Wakeup{
		ID:        id.NewWakeupID(),
		RunID:     runID,
		StepName:  stepName,
		FireAt:    fireAt.UTC(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.ScheduleWakeup(ctx, w); err != nil {
		return fmt.Errorf("clock: schedule wakeup for run %s step %q: %w", runID, stepName, err)
	}
	return nil
}

// Pending implements workflow.Clock.
func (s *Scheduler) Pending(ctx context.Context, runID id.RunID) (bool, error) {
	return s.store.HasWakeup(ctx, runID)
}

// CancelRun drops every pending wakeup of a run. Called when a suspended
// run is cancelled.
func (s *Scheduler) CancelRun(ctx context.Context, runID id.RunID) error {
	return s.store.DeleteWakeupsForRun(ctx, runID)
}

// Start launches the tick loop. The first tick runs immediately, so
// wakeups that came due while the process was down fire right away.
func (s *Scheduler) Start(_ context.Context) error {
	s.wg.Add(1)
	go s.tickLoop()
	s.logger.Info("durable clock started",
		slog.Duration("tick_interval", s.tickInterval),
	)
	return nil
}

// Stop signals the scheduler to stop and waits for the loop to finish.
func (s *Scheduler) Stop(_ context.Context) error {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("durable clock stopped")
	return nil
}

func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	// Startup scan: fire anything missed while the process was down.
	s.tick()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	ctx := context.Background()

	due, err := s.store.DueWakeups(ctx, time.Now().UTC(), s.batchLimit)
	if err != nil {
		s.logger.Error("due wakeups scan error", slog.String("error", err.Error()))
		return
	}
	if len(due) == 0 {
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(s.resumeLimit)
	for _, w := range due {
		wakeup := w
		g.Go(func() error {
			s.fire(ctx, wakeup)
			return nil
		})
	}
	//nolint:errcheck // fire never returns an error through the group
	g.Wait()
}

// fire marks the sleep step complete, consumes the wakeup, and resumes the
// run. The ledger write happens before the delete: a crash in between
// leaves a consumed sleep plus a due wakeup, and the next tick's resume
// finds the step recorded and is a harmless replay.
func (s *Scheduler) fire(ctx context.Context, w *Wakeup) {
	rec := &workflow.StepRecord{
		ID:          id.NewStepID(),
		RunID:       w.RunID,
		StepName:    w.StepName,
		Kind:        workflow.StepKindSleep,
		CompletedAt: time.Now().UTC(),
	}
	if err := s.ledger.RecordStep(ctx, rec); err != nil {
		s.logger.Error("record sleep completion error",
			slog.String("run_id", w.RunID.String()),
			slog.String("step", w.StepName),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := s.store.DeleteWakeup(ctx, w.RunID, w.StepName); err != nil {
		s.logger.Error("consume wakeup error",
			slog.String("run_id", w.RunID.String()),
			slog.String("step", w.StepName),
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Debug("wakeup fired",
		slog.String("run_id", w.RunID.String()),
		slog.String("step", w.StepName),
		slog.Time("fire_at", w.FireAt),
	)

	if err := s.resume(ctx, w.RunID); err != nil {
		s.logger.Error("resume after wakeup error",
			slog.String("run_id", w.RunID.String()),
			slog.String("error", err.Error()),
		)
	}
}
