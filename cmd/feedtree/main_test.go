package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tesso57/feedtree/internal/application/settings"
	"github.com/tesso57/feedtree/internal/application/usecase"
	"github.com/tesso57/feedtree/internal/domain/hierarchy"
	"github.com/tesso57/feedtree/internal/domain/reading"
)

type staticFetcher map[string]*reading.Feed

func (f staticFetcher) Fetch(_ context.Context, url string) (*reading.Feed, error) {
	if feed, ok := f[url]; ok {
		return feed, nil
	}
	return nil, errors.New("unreachable host")
}

func useFetcher(t *testing.T, f usecase.FeedFetcher) {
	t.Helper()
	original := newFetcher
	newFetcher = func(settings.Settings, *logrus.Entry) usecase.FeedFetcher { return f }
	t.Cleanup(func() { newFetcher = original })
}

func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "database_file: " + filepath.Join(dir, "feeds.db") + "\nlog_level: error\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// run executes one CLI invocation and returns its standard output.
func run(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	var cli CLI
	cli.Out = &out
	parser, err := kong.New(&cli, kong.Name("feedtree"), kong.Exit(func(int) { t.Fatal("unexpected exit") }))
	require.NoError(t, err)
	ctx, err := parser.Parse(append([]string{"--config", configPath}, args...))
	require.NoError(t, err)
	err = ctx.Run(&cli.Globals)
	return out.String(), err
}

func threeItems() *reading.Feed {
	return &reading.Feed{Title: "Example", Items: []reading.Item{
		{Title: "one", Link: "https://example.com/1"},
		{Title: "two", Link: "https://example.com/2"},
		{Title: "three", Link: "https://example.com/3"},
	}}
}

func TestCLIWorkflow(t *testing.T) {
	const url = "http://example.com/feed"
	useFetcher(t, staticFetcher{url: threeItems()})
	cfg := writeConfig(t, "")

	out, err := run(t, cfg, "mkdir", "News", "World")
	require.NoError(t, err)
	assert.Contains(t, out, "/News / World")

	out, err = run(t, cfg, "add", url, "News", "World")
	require.NoError(t, err)
	assert.Contains(t, out, "added Example (3 unread)")

	_, err = run(t, cfg, "add", url)
	require.ErrorIs(t, err, hierarchy.ErrDuplicate)

	out, err = run(t, cfg, "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "News (3)")
	assert.Contains(t, out, "World (3)")
	assert.Contains(t, out, "Example")

	_, err = run(t, cfg, "read", url, "0", "2")
	require.NoError(t, err)
	out, err = run(t, cfg, "items", url, "--unread")
	require.NoError(t, err)
	assert.Contains(t, out, "two")
	assert.NotContains(t, out, "one")

	_, err = run(t, cfg, "read", "--all", "/")
	require.NoError(t, err)
	out, err = run(t, cfg, "ls")
	require.NoError(t, err)
	assert.NotContains(t, out, "(")

	_, err = run(t, cfg, "rename", "--to", "Planet", "News", "World")
	require.NoError(t, err)
	out, err = run(t, cfg, "urls", "News / Planet")
	require.NoError(t, err)
	assert.Equal(t, url+"\n", out)

	out, err = run(t, cfg, "rm", "News")
	require.NoError(t, err)
	assert.Contains(t, out, "1 streams")
	out, err = run(t, cfg, "urls")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCLIRefreshReportsFailures(t *testing.T) {
	useFetcher(t, staticFetcher{})
	cfg := writeConfig(t, "")

	_, err := run(t, cfg, "add", "http://down.example/rss")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable host")

	_, err = run(t, cfg, "refresh")
	require.Error(t, err)

	out, err := run(t, cfg, "urls")
	require.NoError(t, err)
	assert.Equal(t, "http://down.example/rss\n", out, "a failed fetch keeps the subscription")
}

func TestRendererMarksState(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)
	r.node(hierarchy.NodeInfo{Name: "Tech", Path: hierarchy.NewPath("Tech"), Kind: hierarchy.Folder, Unread: 4}, 0)
	r.node(hierarchy.NodeInfo{
		Name:  "http://x.example/rss",
		Path:  hierarchy.NewPath("Tech", "http://x.example/rss"),
		Kind:  hierarchy.Stream,
		URL:   "http://x.example/rss",
		Title: "X",
		State: hierarchy.Failed,
	}, 1)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Tech")
	assert.Contains(t, lines[0], "(4)")
	assert.True(t, strings.HasPrefix(lines[1], "  "))
	assert.Contains(t, lines[1], "http://x.example/rss")
	assert.Contains(t, lines[1], "[failed]")
}

func TestCLIExportImport(t *testing.T) {
	const url = "http://example.com/feed"
	useFetcher(t, staticFetcher{url: threeItems()})
	cfg := writeConfig(t, "")

	_, err := run(t, cfg, "mkdir", "Tech")
	require.NoError(t, err)
	_, err = run(t, cfg, "add", url, "Tech")
	require.NoError(t, err)
	_, err = run(t, cfg, "read", url, "1")
	require.NoError(t, err)

	exported := filepath.Join(t.TempDir(), "export.json")
	_, err = run(t, cfg, "export", "-o", exported)
	require.NoError(t, err)

	other := writeConfig(t, "")
	out, err := run(t, other, "import", exported)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 1 streams")

	out, err = run(t, other, "items", url, "--unread")
	require.NoError(t, err)
	assert.Contains(t, out, "one")
	assert.Contains(t, out, "three")
	assert.NotContains(t, out, "two")

	out, err = run(t, other, "export")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "{"))
	assert.Contains(t, out, `"name": "Tech"`)
}

func TestCLISeedsFeedsFromConfig(t *testing.T) {
	useFetcher(t, staticFetcher{"http://a.example/rss": threeItems(), "http://b.example/rss": threeItems()})
	cfg := writeConfig(t, "feeds:\n  - http://a.example/rss\n  - http://b.example/rss\n")

	out, err := run(t, cfg, "urls")
	require.NoError(t, err)
	assert.Equal(t, "http://a.example/rss\nhttp://b.example/rss\n", out)

	_, err = run(t, cfg, "rm", "http://a.example/rss")
	require.NoError(t, err)
	out, err = run(t, cfg, "urls")
	require.NoError(t, err)
	assert.Equal(t, "http://b.example/rss\n", out, "seeding only happens while the hierarchy is empty")
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		in   []string
		want hierarchy.Path
	}{
		{in: nil, want: hierarchy.Path{}},
		{in: []string{"/"}, want: hierarchy.Path{}},
		{in: []string{"A", "B"}, want: hierarchy.NewPath("A", "B")},
		{in: []string{"/A / B"}, want: hierarchy.NewPath("A", "B")},
		{in: []string{"https://example.com/rss"}, want: hierarchy.NewPath("https://example.com/rss")},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parsePath(tt.in), "parsePath(%q)", tt.in)
	}
}
