package flows_test

import (
	"context"
	"testing"
	"time"

	"github.com/eric2umeh/techignite-jobs/board"
	"github.com/eric2umeh/techignite-jobs/flows"
	"github.com/eric2umeh/techignite-jobs/workflow"
)

func TestRouter_HandleEvent(t *testing.T) {
	compressDays(t, time.Hour)

	posts := newFakePostStore(&board.Post{ID: "J1", Status: board.PostStatusActive})
	h := newFlowHarness(t, posts)
	ctx := context.Background()

	err := h.router.HandleEvent(ctx, flows.EventJobCreated, []byte(`{"jobId":"J1","expirationDays":7}`))
	if err != nil {
		t.Fatalf("job/created: %v", err)
	}
	err = h.router.HandleEvent(ctx, flows.EventJobSeekerCreated, []byte(`{"userId":"U1"}`))
	if err != nil {
		t.Fatalf("jobseeker/created: %v", err)
	}

	runs, err := h.store.ListRuns(ctx, workflow.ListOpts{})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}

	exp, err := h.store.FindActiveRun(ctx, flows.WorkflowJobExpiration, "J1")
	if err != nil {
		t.Fatalf("FindActiveRun: %v", err)
	}

	err = h.router.HandleEvent(ctx, flows.EventJobCancelExpiration, []byte(`{"jobId":"J1"}`))
	if err != nil {
		t.Fatalf("job/cancel.expiration: %v", err)
	}
	h.waitForState(t, exp, workflow.RunStateCancelled)
}

func TestRouter_HandleEvent_BadPayload(t *testing.T) {
	posts := newFakePostStore()
	h := newFlowHarness(t, posts)

	err := h.router.HandleEvent(context.Background(), flows.EventJobCreated, []byte(`{`))
	if err == nil {
		t.Fatal("expected decode error for malformed payload")
	}
}

func TestRouter_HandleEvent_UnknownEventIsDropped(t *testing.T) {
	posts := newFakePostStore()
	h := newFlowHarness(t, posts)

	err := h.router.HandleEvent(context.Background(), "payments/settled", []byte(`{}`))
	if err != nil {
		t.Fatalf("unknown event: %v", err)
	}
	runs, err := h.store.ListRuns(context.Background(), workflow.ListOpts{})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("runs = %d, want 0", len(runs))
	}
}
