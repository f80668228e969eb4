// Package usecase contains application-level services.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tesso57/feedtree/internal/domain/reading"
	"github.com/tesso57/feedtree/internal/domain/subscription"
)

// FeedFetcher abstracts RSS/Atom fetching.
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) (*reading.Feed, error)
}

// HierarchyRepository abstracts persistence of the feed hierarchy.
type HierarchyRepository interface {
	Load() (subscription.Node, error)
	Save(root subscription.Node) error
}

var (
	// ErrInvalidURL is returned for empty or malformed stream URLs.
	ErrInvalidURL = errors.New("invalid feed url")
	// ErrPersist wraps repository failures that happened after the in-memory
	// change was applied.
	ErrPersist = errors.New("failed to persist hierarchy")
	// ErrClosed is returned once the service loop has stopped.
	ErrClosed = errors.New("hierarchy service is closed")
)

func normalizeURL(url string) (string, error) {
	trimmed := strings.TrimSpace(url)
	if trimmed == "" {
		return "", fmt.Errorf("%w: feed url is empty", ErrInvalidURL)
	}
	if strings.ContainsAny(trimmed, " \t\r\n") {
		return "", fmt.Errorf("%w: feed url contains whitespace", ErrInvalidURL)
	}
	return trimmed, nil
}
