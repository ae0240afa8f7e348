package workflow

import (
	"time"

	"github.com/eric2umeh/techignite-jobs/id"
)

// RunState represents the lifecycle state of a workflow run.
type RunState string

const (
	// RunStateRunning means the workflow is executing or suspended at a sleep.
	RunStateRunning RunState = "running"
	// RunStateCompleted means the workflow finished successfully.
	RunStateCompleted RunState = "completed"
	// RunStateCancelled means a matching cancellation arrived while running.
	RunStateCancelled RunState = "cancelled"
	// RunStateFailed means the workflow failed terminally after exhausting
	// step retries. Failed runs require manual intervention.
	RunStateFailed RunState = "failed"
)

// Terminal reports whether the state is one no run ever leaves.
func (s RunState) Terminal() bool {
	switch s {
	case RunStateCompleted, RunStateCancelled, RunStateFailed:
		return true
	default:
		return false
	}
}

// Run represents a single durable execution of a workflow.
type Run struct {
	ID    id.RunID `json:"id"`
	Kind  string   `json:"kind"`
	State RunState `json:"state"`

	// Input is the JSON trigger payload captured at start time.
	Input []byte `json:"input,omitempty"`

	// Output is the JSON terminal result, set when the run completes.
	Output []byte `json:"output,omitempty"`

	Error string `json:"error,omitempty"`

	// CorrelationKey is the business identifier used to deduplicate runs
	// and route cancellations. Empty when the workflow declares none.
	CorrelationKey string `json:"correlation_key,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
