package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jobs "github.com/eric2umeh/techignite-jobs"
	"github.com/eric2umeh/techignite-jobs/api"
	"github.com/eric2umeh/techignite-jobs/backoff"
	"github.com/eric2umeh/techignite-jobs/board"
	"github.com/eric2umeh/techignite-jobs/engine"
	"github.com/eric2umeh/techignite-jobs/flows"
	"github.com/eric2umeh/techignite-jobs/store/memory"
	"github.com/eric2umeh/techignite-jobs/workflow"
)

type stubPosts struct{}

func (stubPosts) GetPost(ctx context.Context, jobID string) (*board.Post, error) {
	return &board.Post{ID: jobID, Status: board.PostStatusActive}, nil
}

func (stubPosts) UpdatePostStatus(ctx context.Context, jobID string, status board.PostStatus) error {
	return nil
}

func (stubPosts) ListRecentActive(ctx context.Context, limit int) ([]*board.Post, error) {
	return nil, nil
}

type stubSender struct{}

func (stubSender) Send(ctx context.Context, to []string, subject, body string) error { return nil }

type stubDirectory struct{}

func (stubDirectory) EmailsFor(ctx context.Context, userID string) ([]string, error) {
	return []string{userID + "@example.com"}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := jobs.DefaultConfig()
	cfg.TickInterval = 10 * time.Millisecond

	s := memory.New()
	eng, err := engine.Build(s,
		engine.WithLogger(logger),
		engine.WithConfig(cfg),
		engine.WithBackoff(backoff.NewConstant(0)),
	)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}
	router := flows.Register(eng, flows.Deps{
		Posts:     stubPosts{},
		Sender:    stubSender{},
		Directory: stubDirectory{},
	}, logger)

	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { eng.Stop(context.Background()) })

	srv := httptest.NewServer(api.NewServer(eng, router, api.WithLogger(logger)).Handler())
	t.Cleanup(srv.Close)
	return srv, s
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	var body map[string]string
	resp := getJSON(t, srv.URL+"/health", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v, want status ok", body)
	}
}

func TestServer_EventStartsRun(t *testing.T) {
	srv, s := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/events", api.EventRequest{
		Name: flows.EventJobCreated,
		Data: json.RawMessage(`{"jobId":"J1","expirationDays":7}`),
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	run, err := s.FindActiveRun(context.Background(), flows.WorkflowJobExpiration, "J1")
	if err != nil {
		t.Fatalf("FindActiveRun: %v", err)
	}
	if run.State != workflow.RunStateRunning {
		t.Errorf("run state = %q, want running", run.State)
	}
}

func TestServer_EventValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/events", map[string]string{"data": "{}"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing name: status = %d, want 400", resp.StatusCode)
	}

	resp, err := http.Post(srv.URL+"/v1/events", "application/json", bytes.NewReader([]byte(`{`)))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d, want 400", resp.StatusCode)
	}
}

func TestServer_CancellationEndpoint(t *testing.T) {
	srv, s := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/events", api.EventRequest{
		Name: flows.EventJobCreated,
		Data: json.RawMessage(`{"jobId":"J2","expirationDays":7}`),
	})
	resp.Body.Close()

	run, err := s.FindActiveRun(context.Background(), flows.WorkflowJobExpiration, "J2")
	if err != nil {
		t.Fatalf("FindActiveRun: %v", err)
	}

	resp = postJSON(t, srv.URL+"/v1/cancellations", api.CancelRequest{CorrelationKey: "J2"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := s.GetRun(context.Background(), run.ID)
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		if got.State == workflow.RunStateCancelled {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("run never reached cancelled")
}

func TestServer_RunInspection(t *testing.T) {
	srv, s := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/events", api.EventRequest{
		Name: flows.EventJobCreated,
		Data: json.RawMessage(`{"jobId":"J3","expirationDays":7}`),
	})
	resp.Body.Close()

	run, err := s.FindActiveRun(context.Background(), flows.WorkflowJobExpiration, "J3")
	if err != nil {
		t.Fatalf("FindActiveRun: %v", err)
	}

	var kinds api.ListWorkflowsResponse
	resp = getJSON(t, srv.URL+"/v1/workflows", &kinds)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("workflows: status = %d", resp.StatusCode)
	}
	if len(kinds.Workflows) != 2 {
		t.Errorf("workflows = %v, want both kinds", kinds.Workflows)
	}

	var runs []*workflow.Run
	resp = getJSON(t, srv.URL+"/v1/runs?kind="+flows.WorkflowJobExpiration, &runs)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list runs: status = %d", resp.StatusCode)
	}
	if len(runs) != 1 || runs[0].ID != run.ID {
		t.Errorf("runs = %d entries, want the J3 run", len(runs))
	}

	var got workflow.Run
	resp = getJSON(t, srv.URL+"/v1/runs/"+run.ID.String(), &got)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get run: status = %d", resp.StatusCode)
	}
	if got.CorrelationKey != "J3" {
		t.Errorf("correlation key = %q, want J3", got.CorrelationKey)
	}

	var steps []*workflow.StepRecord
	resp = getJSON(t, srv.URL+"/v1/runs/"+run.ID.String()+"/steps", &steps)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list steps: status = %d", resp.StatusCode)
	}

	resp = getJSON(t, srv.URL+"/v1/runs/not-an-id", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id: status = %d, want 400", resp.StatusCode)
	}
}
