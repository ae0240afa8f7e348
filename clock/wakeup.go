// Package clock implements the durable clock: resumable delays of
// arbitrary length that survive process restarts.
//
// A sleep step persists a Wakeup row and suspends its run. The Scheduler
// polls for due wakeups on a tick loop, marks the sleep complete in the
// step ledger, deletes the wakeup, and resumes the run. Firing is a pure
// read of wall-clock time against persisted entries, so a wakeup missed
// while the process was down fires on the first scan after startup.
// Resume delivery is at-least-once.
package clock

import (
	"time"

	"github.com/eric2umeh/techignite-jobs/id"
)

// Wakeup is a durable timer entry owned exclusively by the clock.
// It is consumed (deleted) when the run resumes at or after FireAt,
// or when the run is cancelled first.
type Wakeup struct {
	ID       id.WakeupID `json:"id"`
	RunID    id.RunID    `json:"run_id"`
	StepName string      `json:"step_name"`
	FireAt   time.Time   `json:"fire_at"`

	CreatedAt time.Time `json:"created_at"`
}
