package hierarchy

import (
	"fmt"
	"slices"

	"github.com/tesso57/feedtree/internal/domain/subscription"
)

// Export serializes the tree into the persisted layout.
func (t *Tree) Export() subscription.Node {
	return t.export(t.root)
}

func (t *Tree) export(id NodeID) subscription.Node {
	n := t.nodes[id]
	if n.kind == Stream {
		return subscription.Node{
			Name:     n.name,
			Kind:     subscription.StreamKind,
			URL:      n.stream.url,
			Title:    n.stream.title,
			Icon:     n.stream.icon,
			Articles: slices.Clone(n.stream.articles),
		}
	}
	out := subscription.Node{Name: n.name, Kind: subscription.FolderKind}
	for _, child := range n.folder.children {
		out.Children = append(out.Children, t.export(child))
	}
	return out
}

// Import rebuilds a tree from the persisted layout. The input must describe a
// valid hierarchy: unique URLs, unique sibling names and a folder root.
func Import(root subscription.Node) (*Tree, error) {
	if root.Kind != "" && !root.IsFolder() {
		return nil, fmt.Errorf("%w: root must be a folder", ErrInvalidPath)
	}
	t := New()
	if err := t.importChildren(Path{}, root.Children); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("imported hierarchy is inconsistent: %w", err)
	}
	return t, nil
}

func (t *Tree) importChildren(parent Path, children []subscription.Node) error {
	for _, child := range children {
		p := parent.Child(child.Name)
		switch child.Kind {
		case subscription.FolderKind:
			if _, exists := t.Lookup(p); exists {
				return fmt.Errorf("%w: %q in %s", ErrConflict, child.Name, parent)
			}
			if _, err := t.AddFolder(p); err != nil {
				return err
			}
			if err := t.importChildren(p, child.Children); err != nil {
				return err
			}
		case subscription.StreamKind:
			id, err := t.addStream(parent, child.Name, child.URL)
			if err != nil {
				return err
			}
			n := t.nodes[id]
			n.stream.title = child.Title
			n.stream.icon = child.Icon
			t.setArticles(id, n, slices.Clone(child.Articles))
		default:
			return fmt.Errorf("%w: unknown kind %q at %s", ErrInvalidPath, child.Kind, p)
		}
	}
	return nil
}
