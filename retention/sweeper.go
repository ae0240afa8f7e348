// Package retention prunes ledger state left behind by finished workflow
// runs. Terminal runs keep their row for audit, but their step records
// and any stray wakeups are deleted once the retention window passes.
package retention

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/eric2umeh/techignite-jobs/clock"
	"github.com/eric2umeh/techignite-jobs/workflow"
)

// cronParser supports standard 5-field cron and descriptors like "@every 1h".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithSchedule sets the sweep cron expression. Default "@every 1h".
func WithSchedule(expr string) Option {
	return func(s *Sweeper) { s.scheduleExpr = expr }
}

// WithRetention sets how long terminal runs keep their step records.
// Default 30 days.
func WithRetention(d time.Duration) Option {
	return func(s *Sweeper) { s.retention = d }
}

// WithBatchSize sets how many runs one sweep pass prunes. Default 500.
func WithBatchSize(n int) Option {
	return func(s *Sweeper) { s.batchSize = n }
}

// Sweeper deletes step records and leftover wakeups of terminal runs
// older than the retention window, on a cron schedule.
type Sweeper struct {
	ledger  workflow.Store
	wakeups clock.Store
	logger  *slog.Logger

	scheduleExpr string
	retention    time.Duration
	batchSize    int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewSweeper creates a Sweeper over the given stores.
func NewSweeper(ledger workflow.Store, wakeups clock.Store, logger *slog.Logger, opts ...Option) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sweeper{
		ledger:       ledger,
		wakeups:      wakeups,
		logger:       logger,
		scheduleExpr: "@every 1h",
		retention:    30 * 24 * time.Hour,
		batchSize:    500,
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the sweep loop.
func (s *Sweeper) Start(_ context.Context) error {
	sched, err := cronParser.Parse(s.scheduleExpr)
	if err != nil {
		return err
	}

	s.wg.Add(1)
	go s.loop(sched)

	s.logger.Info("retention sweeper started",
		slog.String("schedule", s.scheduleExpr),
		slog.Duration("retention", s.retention),
	)
	return nil
}

// Stop signals the sweeper to stop and waits for the loop to finish.
func (s *Sweeper) Stop(_ context.Context) error {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("retention sweeper stopped")
	return nil
}

func (s *Sweeper) loop(sched cronlib.Schedule) {
	defer s.wg.Done()

	for {
		next := sched.Next(time.Now().UTC())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-s.stopCh:
			timer.Stop()
			return
		case <-timer.C:
			s.Sweep(context.Background())
		}
	}
}

// Sweep runs one prune pass. It is exported so operators can trigger a
// pass outside the schedule.
func (s *Sweeper) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.retention)
	pruned := 0

	for _, state := range []workflow.RunState{
		workflow.RunStateCompleted,
		workflow.RunStateCancelled,
		workflow.RunStateFailed,
	} {
		runs, err := s.ledger.ListRuns(ctx, workflow.ListOpts{
			State:           state,
			CompletedBefore: cutoff,
			Limit:           s.batchSize,
		})
		if err != nil {
			s.logger.Error("retention list runs error",
				slog.String("state", string(state)),
				slog.String("error", err.Error()),
			)
			continue
		}

		for _, run := range runs {
			if err := s.ledger.DeleteSteps(ctx, run.ID); err != nil {
				s.logger.Error("retention delete steps error",
					slog.String("run_id", run.ID.String()),
					slog.String("error", err.Error()),
				)
				continue
			}
			// A cancelled run can leave its wakeup behind if the process
			// crashed between the state transition and the wakeup delete.
			if err := s.wakeups.DeleteWakeupsForRun(ctx, run.ID); err != nil {
				s.logger.Error("retention delete wakeups error",
					slog.String("run_id", run.ID.String()),
					slog.String("error", err.Error()),
				)
				continue
			}
			pruned++
		}
	}

	if pruned > 0 {
		s.logger.Info("retention sweep complete", slog.Int("runs_pruned", pruned))
	}
}
