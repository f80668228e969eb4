package hierarchy

import (
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"
	"github.com/tesso57/feedtree/internal/domain/reading"
)

// Tree owns the folder/stream hierarchy and its path and URL indices.
// It is not safe for concurrent use; callers serialize access.
type Tree struct {
	nodes  map[NodeID]*node
	next   NodeID
	root   NodeID
	byPath map[string]NodeID
	byURL  map[string]NodeID
}

// New returns a tree holding only an empty root folder.
func New() *Tree {
	t := &Tree{
		nodes:  make(map[NodeID]*node),
		byPath: make(map[string]NodeID),
		byURL:  make(map[string]NodeID),
	}
	t.root = t.alloc(&node{kind: Folder, parent: noParent, folder: &folderData{}})
	t.byPath[Path{}.key()] = t.root
	return t
}

func (t *Tree) alloc(n *node) NodeID {
	id := t.next
	t.next++
	t.nodes[id] = n
	return id
}

// Root returns the ID of the root folder.
func (t *Tree) Root() NodeID {
	return t.root
}

// StreamCount returns the number of streams in the tree.
func (t *Tree) StreamCount() int {
	return len(t.byURL)
}

// Lookup resolves a path to a node ID.
func (t *Tree) Lookup(p Path) (NodeID, bool) {
	id, ok := t.byPath[p.key()]
	return id, ok
}

// LookupURL resolves a stream URL to a node ID.
func (t *Tree) LookupURL(url string) (NodeID, bool) {
	id, ok := t.byURL[url]
	return id, ok
}

// PathOf rebuilds the path of a node from its parent chain.
func (t *Tree) PathOf(id NodeID) Path {
	var rev []string
	for cur := id; cur != t.root; {
		n, ok := t.nodes[cur]
		if !ok {
			return nil
		}
		rev = append(rev, n.name)
		cur = n.parent
	}
	slices.Reverse(rev)
	return Path(rev)
}

// Info returns a snapshot of the node.
func (t *Tree) Info(id NodeID) (NodeInfo, bool) {
	n, ok := t.nodes[id]
	if !ok {
		return NodeInfo{}, false
	}
	info := NodeInfo{
		ID:     id,
		Kind:   n.kind,
		Name:   n.name,
		Path:   t.PathOf(id),
		Unread: n.unread,
	}
	switch n.kind {
	case Folder:
		info.Children = len(n.folder.children)
	case Stream:
		info.URL = n.stream.url
		info.Title = n.stream.title
		info.Icon = n.stream.icon
		info.State = n.stream.state
		info.Articles = len(n.stream.articles)
	}
	return info, true
}

// Children returns the direct children of the folder at p in display order.
// A missing path or a stream yields nil.
func (t *Tree) Children(p Path) []NodeInfo {
	id, ok := t.Lookup(p)
	if !ok {
		return nil
	}
	n := t.nodes[id]
	if n.kind != Folder {
		return nil
	}
	return lo.FilterMap(n.folder.children, func(child NodeID, _ int) (NodeInfo, bool) {
		return t.Info(child)
	})
}

// Streams returns the streams at or below p, in display order.
func (t *Tree) Streams(p Path) ([]NodeID, error) {
	id, ok := t.Lookup(p)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	var out []NodeID
	t.walk(id, func(cur NodeID, n *node) {
		if n.kind == Stream {
			out = append(out, cur)
		}
	})
	return out, nil
}

// URLs returns the URLs of the streams at or below p.
func (t *Tree) URLs(p Path) ([]string, error) {
	ids, err := t.Streams(p)
	if err != nil {
		return nil, err
	}
	return lo.Map(ids, func(id NodeID, _ int) string {
		return t.nodes[id].stream.url
	}), nil
}

// walk visits id and its descendants depth first, parents before children.
func (t *Tree) walk(id NodeID, fn func(NodeID, *node)) {
	n := t.nodes[id]
	fn(id, n)
	if n.kind == Folder {
		for _, child := range n.folder.children {
			t.walk(child, fn)
		}
	}
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	if strings.Contains(name, pathSep) {
		return fmt.Errorf("%w: name contains a NUL byte", ErrInvalidName)
	}
	return nil
}

func (t *Tree) folderAt(p Path) (NodeID, error) {
	id, ok := t.Lookup(p)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	if t.nodes[id].kind != Folder {
		return 0, fmt.Errorf("%w: %s is not a folder", ErrInvalidPath, p)
	}
	return id, nil
}

// attach links a freshly allocated node under parent and indexes it.
func (t *Tree) attach(parent NodeID, parentPath Path, id NodeID) {
	n := t.nodes[id]
	pn := t.nodes[parent]
	pn.folder.children = append(pn.folder.children, id)
	t.byPath[parentPath.Child(n.name).key()] = id
	if n.kind == Stream {
		t.byURL[n.stream.url] = id
	}
}

// AddFolder creates the folder at p along with any missing ancestors.
// Existing folders along the way are reused.
func (t *Tree) AddFolder(p Path) (NodeID, error) {
	for _, name := range p {
		if err := validateName(name); err != nil {
			return 0, err
		}
	}
	// Check the whole path first so a failure leaves the tree untouched.
	for i := range p {
		if id, ok := t.Lookup(p[:i+1]); ok && t.nodes[id].kind != Folder {
			return 0, fmt.Errorf("%w: %s is a stream", ErrConflict, p[:i+1])
		}
	}

	cur := t.root
	for i, name := range p {
		if id, ok := t.Lookup(p[:i+1]); ok {
			cur = id
			continue
		}
		id := t.alloc(&node{kind: Folder, name: name, parent: cur, folder: &folderData{}})
		t.attach(cur, p[:i], id)
		cur = id
	}
	return cur, nil
}

// AddStream creates a stream named after url inside the existing folder at parent.
func (t *Tree) AddStream(parent Path, url string) (NodeID, error) {
	return t.addStream(parent, url, url)
}

func (t *Tree) addStream(parent Path, name, url string) (NodeID, error) {
	if err := validateName(name); err != nil {
		return 0, err
	}
	if strings.TrimSpace(url) == "" {
		return 0, fmt.Errorf("%w: stream url is empty", ErrInvalidName)
	}
	pid, err := t.folderAt(parent)
	if err != nil {
		return 0, err
	}
	if _, dup := t.byURL[url]; dup {
		return 0, fmt.Errorf("%w: %s", ErrDuplicate, url)
	}
	if _, taken := t.byPath[parent.Child(name).key()]; taken {
		return 0, fmt.Errorf("%w: %q in %s", ErrConflict, name, parent)
	}
	id := t.alloc(&node{kind: Stream, name: name, parent: pid, stream: &streamData{url: url}})
	t.attach(pid, parent, id)
	return id, nil
}

// Remove deletes the node at p and its descendants. It returns the URLs of
// the removed streams.
func (t *Tree) Remove(p Path) ([]string, error) {
	if p.IsRoot() {
		return nil, fmt.Errorf("%w: cannot remove the root folder", ErrInvalidPath)
	}
	id, ok := t.Lookup(p)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	n := t.nodes[id]

	var urls []string
	var drop func(NodeID, Path)
	drop = func(cur NodeID, cp Path) {
		cn := t.nodes[cur]
		if cn.kind == Folder {
			for _, child := range cn.folder.children {
				drop(child, cp.Child(t.nodes[child].name))
			}
		} else {
			urls = append(urls, cn.stream.url)
			delete(t.byURL, cn.stream.url)
		}
		delete(t.byPath, cp.key())
		delete(t.nodes, cur)
	}

	t.propagate(n.parent, -n.unread)
	parent := t.nodes[n.parent]
	parent.folder.children = slices.DeleteFunc(parent.folder.children, func(c NodeID) bool { return c == id })
	drop(id, p)
	return urls, nil
}

// Rename changes the name of the node at p. Paths of all descendants change
// with it; URLs and read flags do not. It reports whether the name changed.
func (t *Tree) Rename(p Path, name string) (bool, error) {
	if p.IsRoot() {
		return false, fmt.Errorf("%w: cannot rename the root folder", ErrInvalidPath)
	}
	if err := validateName(name); err != nil {
		return false, err
	}
	id, ok := t.Lookup(p)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	n := t.nodes[id]
	if n.name == name {
		return false, nil
	}
	target := p.Parent().Child(name)
	if _, taken := t.byPath[target.key()]; taken {
		return false, fmt.Errorf("%w: %q in %s", ErrConflict, name, p.Parent())
	}

	type entry struct {
		id  NodeID
		rel Path
	}
	var subtree []entry
	var collect func(NodeID, Path)
	collect = func(cur NodeID, rel Path) {
		subtree = append(subtree, entry{id: cur, rel: rel})
		if cn := t.nodes[cur]; cn.kind == Folder {
			for _, child := range cn.folder.children {
				collect(child, rel.Child(t.nodes[child].name))
			}
		}
	}
	collect(id, Path{})

	for _, e := range subtree {
		delete(t.byPath, append(slices.Clone(p), e.rel...).key())
	}
	for _, e := range subtree {
		t.byPath[append(slices.Clone(target), e.rel...).key()] = e.id
	}
	n.name = name
	return true, nil
}

// propagate adds delta to the unread count of from and all of its ancestors.
func (t *Tree) propagate(from NodeID, delta int) {
	if delta == 0 {
		return
	}
	for cur := from; cur != noParent; cur = t.nodes[cur].parent {
		t.nodes[cur].unread += delta
	}
}

func (t *Tree) streamNode(id NodeID) (*node, error) {
	n, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: node %d", ErrNotFound, id)
	}
	if n.kind != Stream {
		return nil, fmt.Errorf("%w: node %d is not a stream", ErrInvalidPath, id)
	}
	return n, nil
}

// setArticles replaces the articles of a stream and propagates the unread delta.
func (t *Tree) setArticles(id NodeID, n *node, articles []reading.Article) {
	n.stream.articles = articles
	unread := reading.CountUnread(articles)
	delta := unread - n.unread
	n.unread = unread
	t.propagate(n.parent, delta)
}

// Merge reconciles fetched items into the stream and updates unread counts.
func (t *Tree) Merge(id NodeID, items []reading.Item, limit int) (reading.MergeStats, error) {
	n, err := t.streamNode(id)
	if err != nil {
		return reading.MergeStats{}, err
	}
	merged, stats := reading.Merge(n.stream.articles, items, limit)
	t.setArticles(id, n, merged)
	return stats, nil
}

// Articles returns a copy of the stream's articles, newest first.
func (t *Tree) Articles(id NodeID) []reading.Article {
	n, err := t.streamNode(id)
	if err != nil {
		return nil
	}
	return slices.Clone(n.stream.articles)
}

// MarkAllRead marks every article at or below p as read and returns the
// streams whose unread count changed.
func (t *Tree) MarkAllRead(p Path) ([]NodeID, error) {
	ids, err := t.Streams(p)
	if err != nil {
		return nil, err
	}
	var changed []NodeID
	for _, id := range ids {
		n := t.nodes[id]
		if n.unread == 0 {
			continue
		}
		for i := range n.stream.articles {
			n.stream.articles[i].Read = true
		}
		t.setArticles(id, n, n.stream.articles)
		changed = append(changed, id)
	}
	return changed, nil
}

// MarkRead marks a single article of a stream as read. It reports whether the
// article was previously unread.
func (t *Tree) MarkRead(id NodeID, index int) (bool, error) {
	n, err := t.streamNode(id)
	if err != nil {
		return false, err
	}
	if index < 0 || index >= len(n.stream.articles) {
		return false, fmt.Errorf("%w: article %d", ErrNotFound, index)
	}
	if n.stream.articles[index].Read {
		return false, nil
	}
	n.stream.articles[index].Read = true
	t.setArticles(id, n, n.stream.articles)
	return true, nil
}

// SetState records the refresh state of a stream.
func (t *Tree) SetState(id NodeID, state State) error {
	n, err := t.streamNode(id)
	if err != nil {
		return err
	}
	n.stream.state = state
	return nil
}

// SetIcon records the icon of a stream and reports whether it changed.
func (t *Tree) SetIcon(id NodeID, icon string) bool {
	n, err := t.streamNode(id)
	if err != nil || n.stream.icon == icon {
		return false
	}
	n.stream.icon = icon
	return true
}

// SetTitle records the feed title of a stream and reports whether it changed.
func (t *Tree) SetTitle(id NodeID, title string) bool {
	n, err := t.streamNode(id)
	if err != nil || n.stream.title == title {
		return false
	}
	n.stream.title = title
	return true
}
