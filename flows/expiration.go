// Package flows holds the business workflows of the job board: listing
// expiration and the periodic job digest. Each workflow is a plain
// handler over the workflow package's step primitives; all durability
// comes from the step ledger and the durable clock underneath.
package flows

import (
	"context"
	"time"

	"github.com/eric2umeh/techignite-jobs/board"
	"github.com/eric2umeh/techignite-jobs/workflow"
)

// WorkflowJobExpiration is the registered kind of the expiration workflow.
const WorkflowJobExpiration = "job-expiration"

// DayLength is the wall-clock length of one configured "day". Tests
// compress it so a thirty-day workflow finishes in milliseconds.
var DayLength = 24 * time.Hour

// ExpirationInput triggers an expiration countdown for one listing.
type ExpirationInput struct {
	JobID          string `json:"jobId"`
	ExpirationDays int    `json:"expirationDays"`
}

// ExpirationResult is the output of a completed expiration run.
type ExpirationResult struct {
	JobID   string `json:"jobId"`
	Message string `json:"message"`
}

// NewExpiration builds the job-expiration workflow: sleep out the
// listing's lifetime, then flip it to EXPIRED. The run's correlation key
// is the job ID, so a second trigger for the same listing is a no-op and
// a cancellation by job ID finds exactly this run.
func NewExpiration(posts board.PostStore) *workflow.Definition[ExpirationInput] {
	def := workflow.New(WorkflowJobExpiration, func(wf *workflow.Workflow, input ExpirationInput) (any, error) {
		lifetime := time.Duration(input.ExpirationDays) * DayLength

		if err := wf.Sleep("wait-for-expiration", lifetime); err != nil {
			return nil, err
		}

		err := wf.Step("update-job-status", func(ctx context.Context) error {
			return posts.UpdatePostStatus(ctx, input.JobID, board.PostStatusExpired)
		})
		if err != nil {
			return nil, err
		}

		return ExpirationResult{JobID: input.JobID, Message: "expired"}, nil
	})
	def.CorrelationKey = func(input ExpirationInput) string { return input.JobID }
	return def
}
