package clock

import (
	"context"
	"time"

	"github.com/eric2umeh/techignite-jobs/id"
)

// Store defines the persistence contract for durable wakeups.
type Store interface {
	// ScheduleWakeup persists a wakeup. A wakeup already present for the
	// same (run, step) is left untouched: replays of a sleep step must not
	// push the fire time out.
	ScheduleWakeup(ctx context.Context, w *Wakeup) error

	// DueWakeups returns up to limit wakeups with FireAt <= now, oldest
	// first. Zero limit means no limit.
	DueWakeups(ctx context.Context, now time.Time, limit int) ([]*Wakeup, error)

	// DeleteWakeup removes the wakeup for a specific sleep step.
	// Deleting an absent wakeup is not an error.
	DeleteWakeup(ctx context.Context, runID id.RunID, stepName string) error

	// DeleteWakeupsForRun removes every wakeup owned by a run. Used when
	// a run is cancelled while suspended.
	DeleteWakeupsForRun(ctx context.Context, runID id.RunID) error

	// HasWakeup reports whether the run has any wakeup pending.
	HasWakeup(ctx context.Context, runID id.RunID) (bool, error)
}
