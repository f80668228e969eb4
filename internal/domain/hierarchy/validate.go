package hierarchy

import (
	"errors"
	"fmt"

	"github.com/tesso57/feedtree/internal/domain/reading"
)

// Validate checks the structural invariants of the tree: unique stream URLs,
// unique sibling names, a single parent per node, consistent indices and
// unread counts that match the articles below each node.
func (t *Tree) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	root, ok := t.nodes[t.root]
	if !ok || root.kind != Folder || root.parent != noParent {
		return errors.New("root folder is missing or malformed")
	}

	visited := make(map[NodeID]bool, len(t.nodes))
	streams := 0
	var check func(NodeID, Path) int
	check = func(id NodeID, p Path) int {
		if visited[id] {
			fail("node %d reachable twice", id)
			return 0
		}
		visited[id] = true
		n := t.nodes[id]

		if got, ok := t.byPath[p.key()]; !ok || got != id {
			fail("path index mismatch at %s", p)
		}

		switch n.kind {
		case Stream:
			streams++
			if n.stream == nil || n.folder != nil {
				fail("stream %s has a folder payload", p)
				return n.unread
			}
			if got, ok := t.byURL[n.stream.url]; !ok || got != id {
				fail("url index mismatch for %s", n.stream.url)
			}
			if want := reading.CountUnread(n.stream.articles); n.unread != want {
				fail("stream %s unread = %d, want %d", p, n.unread, want)
			}
			return n.unread
		case Folder:
			if n.folder == nil || n.stream != nil {
				fail("folder %s has a stream payload", p)
				return n.unread
			}
			names := make(map[string]struct{}, len(n.folder.children))
			sum := 0
			for _, child := range n.folder.children {
				cn, ok := t.nodes[child]
				if !ok {
					fail("folder %s references missing node %d", p, child)
					continue
				}
				if cn.parent != id {
					fail("node %d under %s has parent %d", child, p, cn.parent)
				}
				if _, dup := names[cn.name]; dup {
					fail("duplicate name %q in %s", cn.name, p)
				}
				names[cn.name] = struct{}{}
				sum += check(child, p.Child(cn.name))
			}
			if n.unread != sum {
				fail("folder %s unread = %d, want %d", p, n.unread, sum)
			}
			return sum
		default:
			fail("node %d has unknown kind", id)
			return 0
		}
	}
	check(t.root, Path{})

	if len(visited) != len(t.nodes) {
		fail("%d nodes unreachable from the root", len(t.nodes)-len(visited))
	}
	if len(t.byPath) != len(visited) {
		fail("path index holds %d entries for %d nodes", len(t.byPath), len(visited))
	}
	if len(t.byURL) != streams {
		fail("url index holds %d entries for %d streams", len(t.byURL), streams)
	}
	return errors.Join(errs...)
}
