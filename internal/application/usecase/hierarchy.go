package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tesso57/feedtree/internal/domain/hierarchy"
	"github.com/tesso57/feedtree/internal/domain/reading"
	"github.com/tesso57/feedtree/internal/domain/subscription"
)

// Options tunes a HierarchyService.
type Options struct {
	// Retention caps the articles kept per stream. Zero keeps everything.
	Retention int
	// FetchTimeout bounds a single fetch. Zero means no timeout.
	FetchTimeout time.Duration
	Logger       *logrus.Entry
}

// HierarchyService owns the feed hierarchy. Every operation is executed on the
// goroutine running Run, so the tree is never touched concurrently.
type HierarchyService struct {
	repo    HierarchyRepository
	fetcher FeedFetcher
	opts    Options
	log     *logrus.Entry

	ops  chan func()
	done chan struct{}

	mu           sync.Mutex
	listeners    []listenerEntry
	nextListener int

	// Owned by the Run goroutine.
	tree     *hierarchy.Tree
	runCtx   context.Context
	inflight map[string]hierarchy.NodeID
	pending  int
	waiters  []chan struct{}
}

// NewHierarchyService loads the persisted hierarchy and constructs the service.
// Call Run to start processing operations.
func NewHierarchyService(repo HierarchyRepository, fetcher FeedFetcher, opts Options) (*HierarchyService, error) {
	root, err := repo.Load()
	if err != nil {
		return nil, fmt.Errorf("load hierarchy: %w", err)
	}
	tree, err := hierarchy.Import(root)
	if err != nil {
		return nil, fmt.Errorf("load hierarchy: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	logger.WithField("streams", tree.StreamCount()).Debug("hierarchy loaded")
	return &HierarchyService{
		repo:     repo,
		fetcher:  fetcher,
		opts:     opts,
		log:      logger,
		ops:      make(chan func()),
		done:     make(chan struct{}),
		tree:     tree,
		runCtx:   context.Background(),
		inflight: make(map[string]hierarchy.NodeID),
	}, nil
}

// Run processes operations until ctx is cancelled, then saves the hierarchy
// one last time. Fetches still in flight are abandoned.
func (s *HierarchyService) Run(ctx context.Context) error {
	s.runCtx = ctx
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			if err := s.persist(); err != nil {
				s.log.WithError(err).Error("final save failed")
				return err
			}
			s.log.Debug("hierarchy service stopped")
			return nil
		case op := <-s.ops:
			op()
		}
	}
}

// do runs fn on the service goroutine and waits for it to finish.
func (s *HierarchyService) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	op := func() {
		defer close(finished)
		fn()
	}
	select {
	case s.ops <- op:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// post queues op without waiting. It is dropped once Run has returned.
func (s *HierarchyService) post(op func()) {
	select {
	case s.ops <- op:
	case <-s.done:
	}
}

func (s *HierarchyService) persist() error {
	if err := s.repo.Save(s.tree.Export()); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

// AddStream subscribes to url inside the existing folder at parent and starts
// its first refresh.
func (s *HierarchyService) AddStream(ctx context.Context, parent hierarchy.Path, url string) (hierarchy.NodeInfo, error) {
	trimmed, err := normalizeURL(url)
	if err != nil {
		return hierarchy.NodeInfo{}, err
	}
	var info hierarchy.NodeInfo
	var opErr error
	err = s.do(ctx, func() {
		id, err := s.tree.AddStream(parent, trimmed)
		if err != nil {
			opErr = err
			return
		}
		s.log.WithFields(logrus.Fields{"url": trimmed, "parent": parent.String()}).Info("stream added")
		opErr = s.persist()
		s.emitInfo(id, nil)
		s.dispatch(id)
		info, _ = s.tree.Info(id)
	})
	if err != nil {
		return hierarchy.NodeInfo{}, err
	}
	return info, opErr
}

// AddFolder creates the folder at path together with any missing ancestors.
func (s *HierarchyService) AddFolder(ctx context.Context, path hierarchy.Path) (hierarchy.NodeInfo, error) {
	var info hierarchy.NodeInfo
	var opErr error
	err := s.do(ctx, func() {
		existed := false
		if _, ok := s.tree.Lookup(path); ok {
			existed = true
		}
		id, err := s.tree.AddFolder(path)
		if err != nil {
			opErr = err
			return
		}
		info, _ = s.tree.Info(id)
		if !existed {
			s.log.WithField("path", path.String()).Info("folder added")
			opErr = s.persist()
		}
	})
	if err != nil {
		return hierarchy.NodeInfo{}, err
	}
	return info, opErr
}

// RemoveNode deletes the node at path and everything below it.
func (s *HierarchyService) RemoveNode(ctx context.Context, path hierarchy.Path) error {
	var opErr error
	err := s.do(ctx, func() {
		urls, err := s.tree.Remove(path)
		if err != nil {
			opErr = err
			return
		}
		for _, url := range urls {
			delete(s.inflight, url)
		}
		s.log.WithFields(logrus.Fields{"path": path.String(), "streams": len(urls)}).Info("node removed")
		opErr = s.persist()
		for _, url := range urls {
			s.emit(Event{Kind: FeedRemoved, URL: url})
		}
	})
	if err != nil {
		return err
	}
	return opErr
}

// Rename gives the node at path a new name. Descendant paths follow; stream
// URLs and read flags are untouched.
func (s *HierarchyService) Rename(ctx context.Context, path hierarchy.Path, name string) error {
	var opErr error
	err := s.do(ctx, func() {
		changed, err := s.tree.Rename(path, name)
		if err != nil || !changed {
			opErr = err
			return
		}
		renamed := path.Parent().Child(name)
		s.log.WithFields(logrus.Fields{"from": path.String(), "to": renamed.String()}).Info("node renamed")
		opErr = s.persist()
		if id, ok := s.tree.Lookup(renamed); ok {
			if info, _ := s.tree.Info(id); info.IsStream() {
				s.emit(infoEvent(info, nil))
			}
		}
	})
	if err != nil {
		return err
	}
	return opErr
}

// Refresh fetches every stream at or below path. Streams that are already
// being fetched are skipped.
func (s *HierarchyService) Refresh(ctx context.Context, path hierarchy.Path) error {
	var opErr error
	err := s.do(ctx, func() {
		ids, err := s.tree.Streams(path)
		if err != nil {
			opErr = err
			return
		}
		for _, id := range ids {
			s.dispatch(id)
		}
	})
	if err != nil {
		return err
	}
	return opErr
}

// RefreshAll fetches every stream in the hierarchy.
func (s *HierarchyService) RefreshAll(ctx context.Context) error {
	return s.Refresh(ctx, hierarchy.Path{})
}

// MarkAllAsRead marks every article at or below path as read.
func (s *HierarchyService) MarkAllAsRead(ctx context.Context, path hierarchy.Path) error {
	var opErr error
	err := s.do(ctx, func() {
		changed, err := s.tree.MarkAllRead(path)
		if err != nil {
			opErr = err
			return
		}
		for _, id := range changed {
			s.emitInfo(id, nil)
		}
	})
	if err != nil {
		return err
	}
	return opErr
}

// MarkArticleRead marks the article at index of the stream with url as read.
func (s *HierarchyService) MarkArticleRead(ctx context.Context, url string, index int) error {
	var opErr error
	err := s.do(ctx, func() {
		id, ok := s.tree.LookupURL(url)
		if !ok {
			opErr = fmt.Errorf("%w: %s", hierarchy.ErrNotFound, url)
			return
		}
		changed, err := s.tree.MarkRead(id, index)
		if err != nil {
			opErr = err
			return
		}
		if changed {
			s.emitInfo(id, nil)
		}
	})
	if err != nil {
		return err
	}
	return opErr
}

// GetNode returns the node at path.
func (s *HierarchyService) GetNode(ctx context.Context, path hierarchy.Path) (hierarchy.NodeInfo, bool) {
	var info hierarchy.NodeInfo
	var ok bool
	_ = s.do(ctx, func() {
		var id hierarchy.NodeID
		if id, ok = s.tree.Lookup(path); ok {
			info, ok = s.tree.Info(id)
		}
	})
	return info, ok
}

// GetChildren lists the children of the folder at path.
func (s *HierarchyService) GetChildren(ctx context.Context, path hierarchy.Path) []hierarchy.NodeInfo {
	var children []hierarchy.NodeInfo
	_ = s.do(ctx, func() {
		children = s.tree.Children(path)
	})
	return children
}

// LookupURL returns the stream subscribed to url.
func (s *HierarchyService) LookupURL(ctx context.Context, url string) (hierarchy.NodeInfo, bool) {
	var info hierarchy.NodeInfo
	var ok bool
	_ = s.do(ctx, func() {
		var id hierarchy.NodeID
		if id, ok = s.tree.LookupURL(url); ok {
			info, ok = s.tree.Info(id)
		}
	})
	return info, ok
}

// Articles returns a copy of the articles of the stream subscribed to url.
func (s *HierarchyService) Articles(ctx context.Context, url string) []reading.Article {
	var articles []reading.Article
	_ = s.do(ctx, func() {
		if id, ok := s.tree.LookupURL(url); ok {
			articles = s.tree.Articles(id)
		}
	})
	return articles
}

// URLs returns the URLs of every stream at or below path.
func (s *HierarchyService) URLs(ctx context.Context, path hierarchy.Path) []string {
	var urls []string
	_ = s.do(ctx, func() {
		urls, _ = s.tree.URLs(path)
	})
	return urls
}

// Snapshot exports the current hierarchy in its persisted layout.
func (s *HierarchyService) Snapshot(ctx context.Context) (subscription.Node, error) {
	var root subscription.Node
	err := s.do(ctx, func() {
		root = s.tree.Export()
	})
	return root, err
}

// Save writes the hierarchy, including read flags, to the repository.
func (s *HierarchyService) Save(ctx context.Context) error {
	var opErr error
	if err := s.do(ctx, func() { opErr = s.persist() }); err != nil {
		return err
	}
	return opErr
}

// WaitIdle blocks until no fetch is in flight.
func (s *HierarchyService) WaitIdle(ctx context.Context) error {
	var ch chan struct{}
	err := s.do(ctx, func() {
		if s.pending == 0 {
			return
		}
		ch = make(chan struct{})
		s.waiters = append(s.waiters, ch)
	})
	if err != nil || ch == nil {
		return err
	}
	select {
	case <-ch:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
