package hierarchy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tesso57/feedtree/internal/domain/reading"
)

func mustFolder(t *testing.T, tree *Tree, segments ...string) NodeID {
	t.Helper()
	id, err := tree.AddFolder(NewPath(segments...))
	require.NoError(t, err)
	return id
}

func mustStream(t *testing.T, tree *Tree, parent Path, url string) NodeID {
	t.Helper()
	id, err := tree.AddStream(parent, url)
	require.NoError(t, err)
	return id
}

func items(titles ...string) []reading.Item {
	out := make([]reading.Item, 0, len(titles))
	for _, title := range titles {
		out = append(out, reading.Item{Title: title, Link: "https://example.com/" + title})
	}
	return out
}

func TestAddStreamAtRoot(t *testing.T) {
	tree := New()

	id, err := tree.AddStream(Path{}, "http://example.com/feed")
	require.NoError(t, err)

	info, ok := tree.Info(id)
	require.True(t, ok)
	assert.Equal(t, Stream, info.Kind)
	assert.Equal(t, "http://example.com/feed", info.Name)
	assert.Equal(t, NewPath("http://example.com/feed"), info.Path)
	assert.Equal(t, 0, info.Unread)
	assert.Equal(t, Idle, info.State)

	got, ok := tree.LookupURL("http://example.com/feed")
	require.True(t, ok)
	assert.Equal(t, id, got)
	require.NoError(t, tree.Validate())
}

func TestAddStreamDuplicateURLLeavesTreeUnchanged(t *testing.T) {
	tree := New()
	mustFolder(t, tree, "Tech")
	mustStream(t, tree, NewPath("Tech"), "https://example.com/rss")
	before := tree.Export()

	_, err := tree.AddStream(Path{}, "https://example.com/rss")
	require.ErrorIs(t, err, ErrDuplicate)

	assert.Equal(t, before, tree.Export())
	assert.Equal(t, 1, tree.StreamCount())
	require.NoError(t, tree.Validate())
}

func TestAddStreamErrors(t *testing.T) {
	tree := New()
	mustStream(t, tree, Path{}, "https://example.com/a")
	_, err := tree.Rename(NewPath("https://example.com/a"), "https://example.com/b")
	require.NoError(t, err)

	tests := []struct {
		name    string
		parent  Path
		url     string
		wantErr error
	}{
		{name: "missing parent", parent: NewPath("Nope"), url: "https://example.com/x", wantErr: ErrNotFound},
		{name: "parent is stream", parent: NewPath("https://example.com/b"), url: "https://example.com/x", wantErr: ErrInvalidPath},
		{name: "sibling name taken", parent: Path{}, url: "https://example.com/b", wantErr: ErrConflict},
		{name: "empty url", parent: Path{}, url: " ", wantErr: ErrInvalidName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tree.Export()
			_, err := tree.AddStream(tt.parent, tt.url)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, before, tree.Export())
		})
	}
}

func TestAddFolderCreatesMissingSegments(t *testing.T) {
	tree := New()

	id, err := tree.AddFolder(NewPath("News", "World", "Europe"))
	require.NoError(t, err)

	info, _ := tree.Info(id)
	assert.Equal(t, NewPath("News", "World", "Europe"), info.Path)
	require.Len(t, tree.Children(NewPath("News")), 1)

	again, err := tree.AddFolder(NewPath("News", "World"))
	require.NoError(t, err)
	world, _ := tree.Lookup(NewPath("News", "World"))
	assert.Equal(t, world, again)
	require.NoError(t, tree.Validate())
}

func TestAddFolderThroughStreamConflicts(t *testing.T) {
	tree := New()
	mustStream(t, tree, Path{}, "feed")
	before := tree.Export()

	_, err := tree.AddFolder(NewPath("feed", "sub"))
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, before, tree.Export())
}

func TestRemoveFolderReleasesIndices(t *testing.T) {
	tree := New()
	mustFolder(t, tree, "A", "B")
	a1 := mustStream(t, tree, NewPath("A"), "https://a/1")
	b1 := mustStream(t, tree, NewPath("A", "B"), "https://b/1")
	mustStream(t, tree, Path{}, "https://root/1")
	_, err := tree.Merge(a1, items("x", "y"), 0)
	require.NoError(t, err)
	_, err = tree.Merge(b1, items("z"), 0)
	require.NoError(t, err)

	root, _ := tree.Info(tree.Root())
	require.Equal(t, 3, root.Unread)

	urls, err := tree.Remove(NewPath("A"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"https://a/1", "https://b/1"}, urls)

	_, ok := tree.LookupURL("https://a/1")
	assert.False(t, ok)
	_, ok = tree.Lookup(NewPath("A", "B"))
	assert.False(t, ok)
	root, _ = tree.Info(tree.Root())
	assert.Equal(t, 0, root.Unread)
	assert.Equal(t, 1, tree.StreamCount())
	require.NoError(t, tree.Validate())
}

func TestRemoveErrors(t *testing.T) {
	tree := New()

	_, err := tree.Remove(Path{})
	require.ErrorIs(t, err, ErrInvalidPath)

	_, err = tree.Remove(NewPath("missing"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRenameFolderMovesDescendantPaths(t *testing.T) {
	tree := New()
	mustFolder(t, tree, "Tech", "Go")
	id := mustStream(t, tree, NewPath("Tech", "Go"), "https://go.dev/blog/feed.atom")
	_, err := tree.Merge(id, items("one", "two"), 0)
	require.NoError(t, err)
	_, err = tree.MarkRead(id, 0)
	require.NoError(t, err)

	changed, err := tree.Rename(NewPath("Tech"), "Programming")
	require.NoError(t, err)
	assert.True(t, changed)

	_, ok := tree.Lookup(NewPath("Tech", "Go"))
	assert.False(t, ok)
	got, ok := tree.Lookup(NewPath("Programming", "Go", "https://go.dev/blog/feed.atom"))
	require.True(t, ok)
	assert.Equal(t, id, got)

	info, _ := tree.Info(id)
	assert.Equal(t, "https://go.dev/blog/feed.atom", info.URL)
	assert.Equal(t, NewPath("Programming", "Go", "https://go.dev/blog/feed.atom"), info.Path)
	articles := tree.Articles(id)
	assert.True(t, articles[0].Read)
	assert.False(t, articles[1].Read)
	require.NoError(t, tree.Validate())
}

func TestRenameErrors(t *testing.T) {
	tree := New()
	mustFolder(t, tree, "A")
	mustFolder(t, tree, "B")

	rename := func(p Path, name string) error {
		changed, err := tree.Rename(p, name)
		if err != nil && changed {
			t.Fatalf("Rename(%s, %q) reported a change alongside %v", p, name, err)
		}
		return err
	}
	require.ErrorIs(t, rename(NewPath("A"), "B"), ErrConflict)
	require.ErrorIs(t, rename(NewPath("C"), "D"), ErrNotFound)
	require.ErrorIs(t, rename(Path{}, "D"), ErrInvalidPath)
	require.ErrorIs(t, rename(NewPath("A"), ""), ErrInvalidName)

	changed, err := tree.Rename(NewPath("A"), "A")
	require.NoError(t, err)
	assert.False(t, changed, "renaming to the current name is a no-op")
	require.NoError(t, tree.Validate())
}

func TestUnreadPropagation(t *testing.T) {
	tree := New()
	mustFolder(t, tree, "A", "B")
	deep := mustStream(t, tree, NewPath("A", "B"), "deep")
	shallow := mustStream(t, tree, NewPath("A"), "shallow")

	_, err := tree.Merge(deep, items("1", "2", "3"), 0)
	require.NoError(t, err)
	_, err = tree.Merge(shallow, items("4"), 0)
	require.NoError(t, err)

	unread := func(segments ...string) int {
		id, ok := tree.Lookup(NewPath(segments...))
		require.True(t, ok)
		info, _ := tree.Info(id)
		return info.Unread
	}
	assert.Equal(t, 3, unread("A", "B"))
	assert.Equal(t, 4, unread("A"))
	assert.Equal(t, 4, unread())

	changed, err := tree.MarkAllRead(NewPath("A", "B"))
	require.NoError(t, err)
	assert.Equal(t, []NodeID{deep}, changed)
	assert.Equal(t, 0, unread("A", "B"))
	assert.Equal(t, 1, unread("A"))

	changed, err = tree.MarkAllRead(Path{})
	require.NoError(t, err)
	assert.Equal(t, []NodeID{shallow}, changed)
	assert.Equal(t, 0, unread())
	require.NoError(t, tree.Validate())
}

func TestMergeKeepsReadFlags(t *testing.T) {
	tree := New()
	id := mustStream(t, tree, Path{}, "feed")
	_, err := tree.Merge(id, items("a", "b"), 0)
	require.NoError(t, err)
	_, err = tree.MarkAllRead(Path{})
	require.NoError(t, err)

	stats, err := tree.Merge(id, items("c", "a", "b"), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Added)

	info, _ := tree.Info(id)
	assert.Equal(t, 1, info.Unread)
	for _, a := range tree.Articles(id) {
		if a.Title != "c" {
			assert.True(t, a.Read, "article %q flipped back to unread", a.Title)
		}
	}
}

func TestMarkRead(t *testing.T) {
	tree := New()
	id := mustStream(t, tree, Path{}, "feed")
	_, err := tree.Merge(id, items("a", "b"), 0)
	require.NoError(t, err)

	changed, err := tree.MarkRead(id, 1)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = tree.MarkRead(id, 1)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = tree.MarkRead(id, 5)
	require.ErrorIs(t, err, ErrNotFound)

	info, _ := tree.Info(id)
	assert.Equal(t, 1, info.Unread)
}

func TestStreamOperationsRejectFolders(t *testing.T) {
	tree := New()
	folder := mustFolder(t, tree, "A")

	_, err := tree.Merge(folder, items("a"), 0)
	require.ErrorIs(t, err, ErrInvalidPath)
	require.ErrorIs(t, tree.SetState(folder, Refreshing), ErrInvalidPath)
	assert.False(t, tree.SetIcon(folder, "icon.png"))
	assert.Nil(t, tree.Articles(folder))
	_, err = tree.Merge(NodeID(999), items("a"), 0)
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestChildrenAndURLs(t *testing.T) {
	tree := New()
	mustFolder(t, tree, "A")
	mustStream(t, tree, NewPath("A"), "u1")
	mustStream(t, tree, Path{}, "u2")

	children := tree.Children(Path{})
	require.Len(t, children, 2)
	assert.Equal(t, "A", children[0].Name)
	assert.Equal(t, Folder, children[0].Kind)
	assert.Equal(t, 1, children[0].Children)
	assert.Equal(t, "u2", children[1].Name)

	assert.Nil(t, tree.Children(NewPath("u2")))
	assert.Nil(t, tree.Children(NewPath("missing")))

	urls, err := tree.URLs(Path{})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, urls)
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name string
		info NodeInfo
		want string
	}{
		{name: "folder", info: NodeInfo{Kind: Folder, Name: "Tech"}, want: "Tech"},
		{name: "stream url", info: NodeInfo{Kind: Stream, Name: "u", URL: "u"}, want: "u"},
		{name: "stream title", info: NodeInfo{Kind: Stream, Name: "u", URL: "u", Title: "Blog"}, want: "Blog"},
		{name: "stream alias", info: NodeInfo{Kind: Stream, Name: "Mine", URL: "u", Title: "Blog"}, want: "Mine"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.info.DisplayName())
		})
	}
}

func TestPath(t *testing.T) {
	p := NewPath("a", "b")
	assert.Equal(t, NewPath("a"), p.Parent())
	assert.True(t, Path{}.IsRoot())
	assert.Equal(t, "/", Path{}.String())
	assert.Equal(t, "/a / b", p.String())

	child := p.Parent().Child("c")
	assert.Equal(t, NewPath("a", "b"), p, "Child must not alias the parent slice")
	assert.Equal(t, NewPath("a", "c"), child)
}
