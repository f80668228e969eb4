// Package subscription defines the persisted layout of the feed hierarchy.
package subscription

import "github.com/tesso57/feedtree/internal/domain/reading"

// Kind values used in the persisted layout.
const (
	FolderKind = "folder"
	StreamKind = "stream"
)

// Node is one persisted folder or stream. The root is a folder with an empty name.
type Node struct {
	Name     string            `json:"name"`
	Kind     string            `json:"kind"`
	URL      string            `json:"url,omitempty"`
	Title    string            `json:"title,omitempty"`
	Icon     string            `json:"icon,omitempty"`
	Articles []reading.Article `json:"articles,omitempty"`
	Children []Node            `json:"children,omitempty"`
}

// IsFolder reports whether the node is a folder.
func (n Node) IsFolder() bool {
	return n.Kind == FolderKind
}

// StreamCount returns the number of streams in the subtree.
func (n Node) StreamCount() int {
	if n.Kind == StreamKind {
		return 1
	}
	total := 0
	for _, child := range n.Children {
		total += child.StreamCount()
	}
	return total
}
