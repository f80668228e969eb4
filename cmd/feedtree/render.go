package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/tesso57/feedtree/internal/application/usecase"
	"github.com/tesso57/feedtree/internal/domain/hierarchy"
	"github.com/tesso57/feedtree/internal/domain/reading"
)

var (
	folderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	streamStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	unreadStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	failedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("160"))
)

type renderer struct {
	w io.Writer
}

func newRenderer(w io.Writer) renderer {
	return renderer{w: w}
}

func (r renderer) node(n hierarchy.NodeInfo, depth int) {
	indent := strings.Repeat("  ", depth)
	name := n.DisplayName()
	if n.Path.IsRoot() {
		name = "/"
	}

	var line string
	if n.IsStream() {
		line = indent + streamStyle.Render(name)
		if n.DisplayName() != n.URL {
			line += " " + mutedStyle.Render(n.URL)
		}
	} else {
		line = indent + folderStyle.Render(name)
	}
	if n.Unread > 0 {
		line += " " + unreadStyle.Render(fmt.Sprintf("(%d)", n.Unread))
	}
	switch n.State {
	case hierarchy.Failed:
		line += " " + failedStyle.Render("[failed]")
	case hierarchy.Refreshing:
		line += " " + mutedStyle.Render("[refreshing]")
	}
	fmt.Fprintln(r.w, line)
}

// tree prints the children of the folder at p recursively. maxDepth <= 0
// means unlimited.
func (r renderer) tree(ctx context.Context, svc *usecase.HierarchyService, p hierarchy.Path, depth, maxDepth int) {
	if maxDepth > 0 && depth > maxDepth {
		return
	}
	for _, child := range svc.GetChildren(ctx, p) {
		r.node(child, depth)
		if !child.IsStream() {
			r.tree(ctx, svc, child.Path, depth+1, maxDepth)
		}
	}
}

func (r renderer) articles(articles []reading.Article, unreadOnly bool) {
	for i, a := range articles {
		if unreadOnly && a.Read {
			continue
		}
		marker := unreadStyle.Render("*")
		if a.Read {
			marker = " "
		}
		date := ""
		if !a.Date.IsZero() {
			date = a.Date.Local().Format("2006-01-02")
		}
		fmt.Fprintf(r.w, "%3d %s %s %s\n", i, marker, mutedStyle.Render(fmt.Sprintf("%-10s", date)), a.Title)
		if a.Link != "" {
			fmt.Fprintf(r.w, "      %s\n", mutedStyle.Render(a.Link))
		}
	}
}
