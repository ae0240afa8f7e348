package workflow

import (
	"context"
	"time"

	"github.com/eric2umeh/techignite-jobs/id"
)

// ListOpts controls filtering and pagination for run list queries.
type ListOpts struct {
	// State filters by run state. Empty means all states.
	State RunState
	// Kind filters by workflow kind. Empty means all kinds.
	Kind string
	// CompletedBefore, when non-zero, restricts to runs whose CompletedAt
	// is set and earlier than the given time.
	CompletedBefore time.Time
	// Limit is the maximum number of runs to return. Zero means no limit.
	Limit int
	// Offset is the number of runs to skip.
	Offset int
}

// Store defines the persistence contract for workflow runs and the
// step ledger.
type Store interface {
	// CreateRun persists a new workflow run. When the run carries a
	// non-empty CorrelationKey and another non-terminal run of the same
	// kind already holds that key, CreateRun returns jobs.ErrDuplicateRun
	// without persisting anything. The check-and-insert is atomic.
	CreateRun(ctx context.Context, run *Run) error

	// GetRun retrieves a workflow run by ID.
	GetRun(ctx context.Context, runID id.RunID) (*Run, error)

	// FindActiveRun returns the non-terminal run of the given kind holding
	// the correlation key, or jobs.ErrRunNotFound when none exists.
	FindActiveRun(ctx context.Context, kind, correlationKey string) (*Run, error)

	// TransitionRun atomically moves a run from one state to another,
	// recording output and error text on the way. It reports false when
	// the run was not in the expected state, which is how concurrent
	// completion and cancellation settle their race.
	TransitionRun(ctx context.Context, runID id.RunID, from, to RunState, output []byte, errText string) (bool, error)

	// ListRuns returns workflow runs matching the given options.
	ListRuns(ctx context.Context, opts ListOpts) ([]*Run, error)

	// RecordStep persists a completed step. If a record already exists for
	// the same run and step name it is replaced; the at-least-once side
	// effect contract makes the overwrite equivalent to the original write.
	RecordStep(ctx context.Context, rec *StepRecord) error

	// GetStep retrieves the record for a specific step of a run.
	// Returns (nil, nil) when no record exists.
	GetStep(ctx context.Context, runID id.RunID, stepName string) (*StepRecord, error)

	// ListSteps returns all step records of a run in completion order.
	ListSteps(ctx context.Context, runID id.RunID) ([]*StepRecord, error)

	// DeleteSteps removes all step records of a run. Only the retention
	// sweeper calls this, and only for terminal runs.
	DeleteSteps(ctx context.Context, runID id.RunID) error
}
