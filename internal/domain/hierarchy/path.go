package hierarchy

import (
	"slices"
	"strings"
)

// pathSep joins segments into index keys. Names may contain "/" (a stream is
// named after its URL until renamed), so a control character is used instead.
const pathSep = "\x00"

// Path addresses a node by the names leading to it from the root.
// The empty path is the root folder.
type Path []string

// NewPath builds a Path from segments.
func NewPath(segments ...string) Path {
	return Path(slices.Clone(segments))
}

// IsRoot reports whether p addresses the root folder.
func (p Path) IsRoot() bool {
	return len(p) == 0
}

// Parent returns the path of the containing folder. The root is its own parent.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return p
	}
	return p[: len(p)-1 : len(p)-1]
}

// Child returns a new path with name appended.
func (p Path) Child(name string) Path {
	out := make(Path, 0, len(p)+1)
	out = append(out, p...)
	return append(out, name)
}

// String renders the path for humans.
func (p Path) String() string {
	if len(p) == 0 {
		return "/"
	}
	return "/" + strings.Join(p, " / ")
}

func (p Path) key() string {
	return strings.Join(p, pathSep)
}
