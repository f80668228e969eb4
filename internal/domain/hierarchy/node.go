// Package hierarchy implements the folder/stream tree with its path and URL indices.
package hierarchy

import "github.com/tesso57/feedtree/internal/domain/reading"

// NodeID identifies a node inside a Tree. IDs are never reused within a Tree.
type NodeID int

const noParent NodeID = -1

// Kind discriminates folder and stream nodes.
type Kind int

const (
	Folder Kind = iota
	Stream
)

func (k Kind) String() string {
	switch k {
	case Folder:
		return "folder"
	case Stream:
		return "stream"
	default:
		return "unknown"
	}
}

// State is the refresh state of a stream.
type State int

const (
	Idle State = iota
	Refreshing
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Refreshing:
		return "refreshing"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

type folderData struct {
	children []NodeID
}

type streamData struct {
	url      string
	title    string
	icon     string
	state    State
	articles []reading.Article
}

// node is a tagged variant: exactly one of folder or stream is set, matching kind.
type node struct {
	kind   Kind
	name   string
	parent NodeID
	unread int
	folder *folderData
	stream *streamData
}

// NodeInfo is a read-only view of a node.
type NodeInfo struct {
	ID       NodeID
	Kind     Kind
	Name     string
	Path     Path
	URL      string
	Title    string
	Icon     string
	State    State
	Unread   int
	Children int
	Articles int
}

// DisplayName returns the name shown for the node. Streams that were never
// renamed fall back to their feed title, then to the URL.
func (n NodeInfo) DisplayName() string {
	if n.Kind != Stream || n.Name != n.URL {
		return n.Name
	}
	if n.Title != "" {
		return n.Title
	}
	return n.URL
}

// IsStream reports whether the node is a stream.
func (n NodeInfo) IsStream() bool {
	return n.Kind == Stream
}
