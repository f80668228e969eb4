package hierarchy

import "errors"

var (
	// ErrDuplicate is returned when a stream URL already exists in the tree.
	ErrDuplicate = errors.New("stream url already exists")
	// ErrNotFound is returned when no node exists at the addressed path or URL.
	ErrNotFound = errors.New("node not found")
	// ErrConflict is returned when a name collides with an existing sibling.
	ErrConflict = errors.New("name conflicts with an existing sibling")
	// ErrInvalidPath is returned for operations that cannot apply to the addressed node.
	ErrInvalidPath = errors.New("invalid path")
	// ErrInvalidName is returned for empty or malformed node names.
	ErrInvalidName = errors.New("invalid name")
)
