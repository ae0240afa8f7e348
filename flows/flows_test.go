package flows_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	jobs "github.com/eric2umeh/techignite-jobs"
	"github.com/eric2umeh/techignite-jobs/backoff"
	"github.com/eric2umeh/techignite-jobs/board"
	"github.com/eric2umeh/techignite-jobs/engine"
	"github.com/eric2umeh/techignite-jobs/flows"
	"github.com/eric2umeh/techignite-jobs/store/memory"
	"github.com/eric2umeh/techignite-jobs/workflow"
)

// ──────────────────────────────────────────────────
// Fakes
// ──────────────────────────────────────────────────

type fakePostStore struct {
	mu    sync.Mutex
	posts map[string]*board.Post
}

func newFakePostStore(posts ...*board.Post) *fakePostStore {
	s := &fakePostStore{posts: make(map[string]*board.Post)}
	for _, p := range posts {
		s.posts[p.ID] = p
	}
	return s
}

func (s *fakePostStore) GetPost(ctx context.Context, jobID string) (*board.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[jobID]
	if !ok {
		return nil, fmt.Errorf("post %s not found", jobID)
	}
	cp := *p
	return &cp, nil
}

func (s *fakePostStore) UpdatePostStatus(ctx context.Context, jobID string, status board.PostStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[jobID]
	if !ok {
		return fmt.Errorf("post %s not found", jobID)
	}
	p.Status = status
	return nil
}

func (s *fakePostStore) ListRecentActive(ctx context.Context, limit int) ([]*board.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*board.Post
	for _, p := range s.posts {
		if p.Status != board.PostStatusActive {
			continue
		}
		cp := *p
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakePostStore) status(t *testing.T, jobID string) board.PostStatus {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[jobID]
	if !ok {
		t.Fatalf("post %s not found", jobID)
	}
	return p.Status
}

type sentMail struct {
	To      []string
	Subject string
	Body    string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMail
}

func (s *fakeSender) Send(ctx context.Context, to []string, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *fakeSender) last(t *testing.T) sentMail {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		t.Fatal("no mail sent")
	}
	return s.sent[len(s.sent)-1]
}

type fakeDirectory struct {
	emails map[string][]string
}

func (d *fakeDirectory) EmailsFor(ctx context.Context, userID string) ([]string, error) {
	to, ok := d.emails[userID]
	if !ok {
		return nil, fmt.Errorf("user %s not found", userID)
	}
	return to, nil
}

// ──────────────────────────────────────────────────
// Harness
// ──────────────────────────────────────────────────

type flowHarness struct {
	store  *memory.Store
	eng    *engine.Engine
	router *flows.Router
	posts  *fakePostStore
	sender *fakeSender
}

// compressDays shrinks the configured day so multi-day workflows finish
// within the test deadline.
func compressDays(t *testing.T, d time.Duration) {
	t.Helper()
	orig := flows.DayLength
	flows.DayLength = d
	t.Cleanup(func() { flows.DayLength = orig })
}

func newFlowHarness(t *testing.T, posts *fakePostStore) *flowHarness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := jobs.DefaultConfig()
	cfg.TickInterval = 5 * time.Millisecond

	s := memory.New()
	eng, err := engine.Build(s,
		engine.WithLogger(logger),
		engine.WithConfig(cfg),
		engine.WithBackoff(backoff.NewConstant(0)),
	)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	sender := &fakeSender{}
	dir := &fakeDirectory{emails: map[string][]string{"U1": {"u1@example.com"}}}
	router := flows.Register(eng, flows.Deps{Posts: posts, Sender: sender, Directory: dir}, logger)

	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { eng.Stop(context.Background()) })

	return &flowHarness{store: s, eng: eng, router: router, posts: posts, sender: sender}
}

func (h *flowHarness) waitForState(t *testing.T, run *workflow.Run, want workflow.RunState) *workflow.Run {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := h.store.GetRun(context.Background(), run.ID)
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		if got.State == want {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	got, _ := h.store.GetRun(context.Background(), run.ID)
	t.Fatalf("run state = %q, want %q", got.State, want)
	return nil
}
