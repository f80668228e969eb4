package usecase

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/tesso57/feedtree/internal/domain/hierarchy"
	"github.com/tesso57/feedtree/internal/domain/reading"
)

// dispatch marks the stream as refreshing and fetches it in the background.
// The completion is posted back to the service goroutine.
func (s *HierarchyService) dispatch(id hierarchy.NodeID) {
	info, ok := s.tree.Info(id)
	if !ok || !info.IsStream() {
		return
	}
	if _, busy := s.inflight[info.URL]; busy {
		return
	}
	s.inflight[info.URL] = id
	s.pending++
	_ = s.tree.SetState(id, hierarchy.Refreshing)

	ctx := s.runCtx
	timeout := s.opts.FetchTimeout
	url := info.URL
	go func() {
		fetchCtx, cancel := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			fetchCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		defer cancel()
		feed, err := s.fetcher.Fetch(fetchCtx, url)
		s.post(func() { s.complete(id, url, feed, err) })
	}()
}

// complete applies a fetch result. Results for streams that were removed, or
// removed and added again, since the fetch started are dropped.
func (s *HierarchyService) complete(id hierarchy.NodeID, url string, feed *reading.Feed, fetchErr error) {
	defer s.settle()
	if cur, ok := s.inflight[url]; ok && cur == id {
		delete(s.inflight, url)
	}
	log := s.log.WithField("url", url)
	if cur, ok := s.tree.LookupURL(url); !ok || cur != id {
		log.Debug("dropping refresh result for removed stream")
		return
	}

	if fetchErr != nil {
		_ = s.tree.SetState(id, hierarchy.Failed)
		log.WithError(fetchErr).Warn("refresh failed")
		s.emitInfo(id, fetchErr)
		return
	}
	if feed == nil {
		feed = &reading.Feed{}
	}

	stats, err := s.tree.Merge(id, feed.Items, s.opts.Retention)
	if err != nil {
		log.WithError(err).Error("merge failed")
		return
	}
	_ = s.tree.SetState(id, hierarchy.Idle)
	s.tree.SetTitle(id, feed.Title)
	iconChanged := feed.Icon != "" && s.tree.SetIcon(id, feed.Icon)

	log.WithFields(logrus.Fields{
		"added":   stats.Added,
		"updated": stats.Updated,
		"dropped": stats.Dropped,
	}).Debug("stream refreshed")

	info, _ := s.tree.Info(id)
	s.emit(infoEvent(info, nil))
	if iconChanged {
		s.emit(Event{Kind: FeedIconChanged, URL: url, Path: info.Path, Icon: feed.Icon})
	}
}

// settle releases WaitIdle callers once the last fetch has completed.
func (s *HierarchyService) settle() {
	s.pending--
	if s.pending > 0 {
		return
	}
	for _, ch := range s.waiters {
		close(ch)
	}
	s.waiters = nil
}
