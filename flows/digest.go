package flows

import (
	"context"
	"fmt"

	"github.com/eric2umeh/techignite-jobs/board"
	"github.com/eric2umeh/techignite-jobs/workflow"
)

// WorkflowPeriodicDigest is the registered kind of the digest workflow.
const WorkflowPeriodicDigest = "periodic-digest"

const (
	// DigestIterations is how many digest cycles one run performs before
	// completing. With a two-day interval that covers thirty days.
	DigestIterations = 15

	// DigestMaxListings caps how many listings one digest email carries.
	DigestMaxListings = 10
)

// DigestIntervalDays is the number of days between digest emails.
const DigestIntervalDays = 2

// DigestInput starts a digest campaign for one job seeker.
type DigestInput struct {
	UserID string `json:"userId"`
}

// DigestResult is the output of a completed digest run.
type DigestResult struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

// NewDigest builds the periodic-digest workflow: fifteen iterations of
// sleep two days, fetch recent active listings, email them to the user.
// Step names carry the iteration index so each cycle replays
// independently; a restart mid-campaign resumes at the exact iteration
// and phase it stopped in.
//
// An iteration that fetches zero listings skips its send entirely: no
// email, no send step record.
func NewDigest(posts board.PostStore, sender board.Sender, dir board.Directory) *workflow.Definition[DigestInput] {
	return workflow.New(WorkflowPeriodicDigest, func(wf *workflow.Workflow, input DigestInput) (any, error) {
		for i := 1; i <= DigestIterations; i++ {
			if err := wf.Sleep(fmt.Sprintf("wait-interval-%d", i), DigestIntervalDays*DayLength); err != nil {
				return nil, err
			}

			listings, err := workflow.StepWithResult(wf, fmt.Sprintf("fetch-recent-%d", i), func(ctx context.Context) ([]*board.Post, error) {
				return posts.ListRecentActive(ctx, DigestMaxListings)
			})
			if err != nil {
				return nil, err
			}

			if len(listings) == 0 {
				continue
			}

			err = wf.Step(fmt.Sprintf("send-email-%d", i), func(ctx context.Context) error {
				to, err := dir.EmailsFor(ctx, input.UserID)
				if err != nil {
					return err
				}
				return sender.Send(ctx, to, DigestSubject, RenderDigest(listings))
			})
			if err != nil {
				return nil, err
			}
		}

		return DigestResult{UserID: input.UserID, Message: "digest cycle complete"}, nil
	})
}
