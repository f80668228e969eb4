// Package reading defines core reading models.
package reading

import "time"

// Item represents a single article as delivered by a feed fetch.
type Item struct {
	Title       string
	Link        string
	Author      string
	Published   string
	Description string
	Date        time.Time
}

// Feed represents a parsed RSS/Atom feed.
type Feed struct {
	Title string
	Items []Item
	URL   string
	// Icon is a discovered icon reference for the feed, if any.
	Icon string
}
