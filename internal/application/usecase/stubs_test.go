package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tesso57/feedtree/internal/domain/reading"
	"github.com/tesso57/feedtree/internal/domain/subscription"
)

type stubHierarchyRepo struct {
	mu      sync.Mutex
	root    subscription.Node
	saved   []subscription.Node
	loadErr error
	saveErr error
}

func (r *stubHierarchyRepo) Load() (subscription.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.root, r.loadErr
}

func (r *stubHierarchyRepo) Save(root subscription.Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, root)
	if r.saveErr != nil {
		return r.saveErr
	}
	r.root = root
	return nil
}

func (r *stubHierarchyRepo) saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saved)
}

func (r *stubHierarchyRepo) last() subscription.Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.root
}

type mockFeedFetcher struct {
	mock.Mock
}

func (m *mockFeedFetcher) Fetch(_ context.Context, url string) (*reading.Feed, error) {
	args := m.Called(url)
	feed, _ := args.Get(0).(*reading.Feed)
	return feed, args.Error(1)
}

// pendingFetch is a fetch held by manualFetcher until the test answers it.
type pendingFetch struct {
	url   string
	reply chan fetchResult
}

type fetchResult struct {
	feed *reading.Feed
	err  error
}

func (p pendingFetch) answer(feed *reading.Feed, err error) {
	p.reply <- fetchResult{feed: feed, err: err}
}

// manualFetcher lets a test decide when, and in which order, fetches complete.
type manualFetcher struct {
	calls chan pendingFetch
}

func newManualFetcher() *manualFetcher {
	return &manualFetcher{calls: make(chan pendingFetch, 16)}
}

func (f *manualFetcher) Fetch(ctx context.Context, url string) (*reading.Feed, error) {
	p := pendingFetch{url: url, reply: make(chan fetchResult, 1)}
	f.calls <- p
	select {
	case res := <-p.reply:
		return res.feed, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *manualFetcher) next(t *testing.T) pendingFetch {
	t.Helper()
	select {
	case p := <-f.calls:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a fetch")
		return pendingFetch{}
	}
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *eventRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func sampleFeed(titles ...string) *reading.Feed {
	feed := &reading.Feed{Title: "Example"}
	for _, title := range titles {
		feed.Items = append(feed.Items, reading.Item{Title: title, Link: "https://example.com/" + title})
	}
	return feed
}

type harness struct {
	svc    *HierarchyService
	repo   *stubHierarchyRepo
	events *eventRecorder
	cancel context.CancelFunc
	runErr chan error
}

func startService(t *testing.T, repo *stubHierarchyRepo, fetcher FeedFetcher, opts Options) *harness {
	t.Helper()
	svc, err := NewHierarchyService(repo, fetcher, opts)
	require.NoError(t, err)

	h := &harness{svc: svc, repo: repo, events: &eventRecorder{}, runErr: make(chan error, 1)}
	svc.Subscribe(h.events.record)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.runErr <- svc.Run(ctx) }()
	t.Cleanup(func() { h.stop(t) })
	return h
}

// stop cancels Run and waits for it. It is safe to call more than once.
func (h *harness) stop(t *testing.T) error {
	t.Helper()
	h.cancel()
	select {
	case err, ok := <-h.runErr:
		if ok {
			close(h.runErr)
		}
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
		return nil
	}
}

func waitIdle(t *testing.T, svc *HierarchyService) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, svc.WaitIdle(ctx))
}
