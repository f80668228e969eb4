package usecase

import (
	"github.com/tesso57/feedtree/internal/domain/hierarchy"
)

// EventKind identifies a hierarchy notification.
type EventKind int

const (
	// FeedInfoChanged reports a new alias, unread count or refresh state of a stream.
	FeedInfoChanged EventKind = iota
	// FeedIconChanged reports a new icon for a stream.
	FeedIconChanged
	// FeedRemoved reports that a stream left the hierarchy.
	FeedRemoved
)

func (k EventKind) String() string {
	switch k {
	case FeedInfoChanged:
		return "feed-info-changed"
	case FeedIconChanged:
		return "feed-icon-changed"
	case FeedRemoved:
		return "feed-removed"
	default:
		return "unknown"
	}
}

// Event is delivered to listeners after the hierarchy is consistent again.
type Event struct {
	Kind   EventKind
	URL    string
	Path   hierarchy.Path
	Alias  string
	Unread int
	State  hierarchy.State
	Icon   string
	// Err is set when a refresh failed.
	Err error
}

// Listener receives hierarchy events on the service goroutine. It must not
// call back into the service synchronously.
type Listener func(Event)

type listenerEntry struct {
	id int
	fn Listener
}

func infoEvent(info hierarchy.NodeInfo, err error) Event {
	return Event{
		Kind:   FeedInfoChanged,
		URL:    info.URL,
		Path:   info.Path,
		Alias:  info.DisplayName(),
		Unread: info.Unread,
		State:  info.State,
		Icon:   info.Icon,
		Err:    err,
	}
}

// Subscribe registers l and returns a function that removes it again.
func (s *HierarchyService) Subscribe(l Listener) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextListener
	s.nextListener++
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: l})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, entry := range s.listeners {
			if entry.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

func (s *HierarchyService) emit(ev Event) {
	s.mu.Lock()
	listeners := make([]listenerEntry, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, entry := range listeners {
		entry.fn(ev)
	}
}

func (s *HierarchyService) emitInfo(id hierarchy.NodeID, err error) {
	info, ok := s.tree.Info(id)
	if !ok {
		return
	}
	s.emit(infoEvent(info, err))
}
