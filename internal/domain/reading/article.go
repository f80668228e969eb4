package reading

import (
	"time"

	"github.com/samber/lo"
)

// Article is a stored feed item together with its read state.
type Article struct {
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Author      string    `json:"author,omitempty"`
	Published   string    `json:"published,omitempty"`
	Date        time.Time `json:"date"`
	Description string    `json:"description,omitempty"`
	Read        bool      `json:"read"`
}

// Key identifies an article across refreshes.
type Key struct {
	Link  string
	Title string
}

// KeyOf returns the identity key of a fetched item.
func KeyOf(it Item) Key {
	return Key{Link: it.Link, Title: it.Title}
}

// Key returns the identity key of the article.
func (a Article) Key() Key {
	return Key{Link: a.Link, Title: a.Title}
}

// NewArticle builds an unread article from a fetched item.
func NewArticle(it Item) Article {
	return Article{
		Title:       it.Title,
		Link:        it.Link,
		Author:      it.Author,
		Published:   it.Published,
		Date:        it.Date,
		Description: it.Description,
	}
}

// CountUnread returns the number of unread articles.
func CountUnread(articles []Article) int {
	return lo.CountBy(articles, func(a Article) bool { return !a.Read })
}

// MergeStats describes the outcome of Merge.
type MergeStats struct {
	Added   int
	Updated int
	Dropped int
}

// Merge reconciles freshly fetched items with the existing articles of a stream.
//
// The result follows the fetched order (newest first), followed by existing
// articles that the fetch no longer carries, in their previous order. Known
// articles keep their read flag; new ones start unread. When limit is positive
// the oldest articles beyond it are dropped.
func Merge(existing []Article, fetched []Item, limit int) ([]Article, MergeStats) {
	var stats MergeStats

	known := make(map[Key]int, len(existing))
	for i, a := range existing {
		if _, dup := known[a.Key()]; !dup {
			known[a.Key()] = i
		}
	}

	merged := make([]Article, 0, len(existing)+len(fetched))
	seen := make(map[Key]struct{}, len(fetched))
	used := make(map[int]struct{}, len(fetched))
	for _, it := range fetched {
		key := KeyOf(it)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		idx, ok := known[key]
		if !ok {
			merged = append(merged, NewArticle(it))
			stats.Added++
			continue
		}
		used[idx] = struct{}{}
		a := existing[idx]
		if refreshMetadata(&a, it) {
			stats.Updated++
		}
		merged = append(merged, a)
	}

	for i, a := range existing {
		if _, ok := used[i]; ok {
			continue
		}
		if _, dup := seen[a.Key()]; dup {
			continue
		}
		seen[a.Key()] = struct{}{}
		merged = append(merged, a)
	}

	if limit > 0 && len(merged) > limit {
		stats.Dropped = len(merged) - limit
		merged = merged[:limit:limit]
	}
	return merged, stats
}

func refreshMetadata(a *Article, it Item) bool {
	changed := false
	if it.Description != "" && it.Description != a.Description {
		a.Description = it.Description
		changed = true
	}
	if it.Author != "" && it.Author != a.Author {
		a.Author = it.Author
		changed = true
	}
	if !it.Date.IsZero() && !it.Date.Equal(a.Date) {
		a.Date = it.Date
		a.Published = it.Published
		changed = true
	}
	return changed
}
