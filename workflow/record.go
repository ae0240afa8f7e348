package workflow

import (
	"time"

	"github.com/eric2umeh/techignite-jobs/id"
)

// StepKind distinguishes the two kinds of durable steps.
type StepKind string

const (
	// StepKindSleep is a suspension point backed by a durable wakeup.
	StepKindSleep StepKind = "sleep"
	// StepKindAction is a unit of work with an externally visible effect.
	StepKindAction StepKind = "action"
)

// StepRecord is one durably-remembered unit of work inside a run.
// Records are immutable once written and read-only on every replay;
// the retention sweeper removes them after the owning run is terminal.
type StepRecord struct {
	ID       id.StepID `json:"id"`
	RunID    id.RunID  `json:"run_id"`
	StepName string    `json:"step_name"`
	Kind     StepKind  `json:"kind"`

	// Result holds the msgpack-encoded step result for action steps.
	// Empty for sleep steps.
	Result []byte `json:"result,omitempty"`

	CompletedAt time.Time `json:"completed_at"`
}
