package flows

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/eric2umeh/techignite-jobs/board"
	"github.com/eric2umeh/techignite-jobs/engine"
	"github.com/eric2umeh/techignite-jobs/workflow"
)

// Event names on the trigger surface. The outer application publishes
// these when listings and job-seeker accounts are created.
const (
	EventJobCreated          = "job/created"
	EventJobSeekerCreated    = "jobseeker/created"
	EventJobCancelExpiration = "job/cancel.expiration"
)

// JobCreated announces a new published listing.
type JobCreated struct {
	JobID          string `json:"jobId"`
	ExpirationDays int    `json:"expirationDays"`
}

// JobSeekerCreated announces a new job-seeker account.
type JobSeekerCreated struct {
	UserID string `json:"userId"`
}

// JobCancelExpiration asks the engine to stop the expiration countdown
// for one listing, typically because the listing was filled or deleted.
type JobCancelExpiration struct {
	JobID string `json:"jobId"`
}

// Deps are the external collaborators the workflows call into.
type Deps struct {
	Posts     board.PostStore
	Sender    board.Sender
	Directory board.Directory
}

// Register registers both business workflows with the engine and returns
// a Router that maps trigger events onto them.
func Register(eng *engine.Engine, deps Deps, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	engine.RegisterWorkflow(eng, NewExpiration(deps.Posts))
	engine.RegisterWorkflow(eng, NewDigest(deps.Posts, deps.Sender, deps.Directory))
	return &Router{eng: eng, logger: logger}
}

// Router dispatches trigger events to workflow starts and cancellations.
type Router struct {
	eng    *engine.Engine
	logger *slog.Logger
}

// HandleJobCreated starts an expiration countdown for the listing.
func (r *Router) HandleJobCreated(ctx context.Context, ev JobCreated) (*workflow.Run, error) {
	return engine.StartWorkflow(ctx, r.eng, WorkflowJobExpiration, ExpirationInput{
		JobID:          ev.JobID,
		ExpirationDays: ev.ExpirationDays,
	})
}

// HandleJobSeekerCreated starts a digest campaign for the new account.
func (r *Router) HandleJobSeekerCreated(ctx context.Context, ev JobSeekerCreated) (*workflow.Run, error) {
	return engine.StartWorkflow(ctx, r.eng, WorkflowPeriodicDigest, DigestInput{
		UserID: ev.UserID,
	})
}

// HandleCancelExpiration cancels the running expiration countdown for the
// listing, if one exists. A cancel with no matching run is dropped.
func (r *Router) HandleCancelExpiration(ctx context.Context, ev JobCancelExpiration) {
	r.eng.Cancel(ctx, ev.JobID)
}

// HandleEvent routes a named event with a raw JSON payload. It is the
// single entry point for transports that deliver events generically, such
// as a webhook receiver or a queue consumer.
func (r *Router) HandleEvent(ctx context.Context, name string, payload []byte) error {
	switch name {
	case EventJobCreated:
		var ev JobCreated
		if err := json.Unmarshal(payload, &ev); err != nil {
			return fmt.Errorf("flows: decode %s: %w", name, err)
		}
		_, err := r.HandleJobCreated(ctx, ev)
		return err

	case EventJobSeekerCreated:
		var ev JobSeekerCreated
		if err := json.Unmarshal(payload, &ev); err != nil {
			return fmt.Errorf("flows: decode %s: %w", name, err)
		}
		_, err := r.HandleJobSeekerCreated(ctx, ev)
		return err

	case EventJobCancelExpiration:
		var ev JobCancelExpiration
		if err := json.Unmarshal(payload, &ev); err != nil {
			return fmt.Errorf("flows: decode %s: %w", name, err)
		}
		r.HandleCancelExpiration(ctx, ev)
		return nil

	default:
		r.logger.Warn("unrouted event", slog.String("event", name))
		return nil
	}
}
