package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/tesso57/feedtree/internal/application/usecase"
	"github.com/tesso57/feedtree/internal/domain/hierarchy"
	"github.com/tesso57/feedtree/internal/infrastructure/storage"
)

// waitTimeout bounds how long one-shot commands wait for fetches.
const waitTimeout = 2 * time.Minute

// withService runs fn against a started service and stops it afterwards.
func withService(g *Globals, fn func(ctx context.Context, a *app) error) error {
	a, err := g.start()
	if err != nil {
		return err
	}
	runErr := fn(context.Background(), a)
	stopErr := a.stop()
	return errors.Join(runErr, stopErr)
}

func waitForFetches(ctx context.Context, a *app) error {
	ctx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()
	return a.svc.WaitIdle(ctx)
}

type AddCmd struct {
	URL    string   `arg:"" help:"Feed URL."`
	Folder []string `arg:"" optional:"" help:"Folder path segments; defaults to the root."`
}

func (c *AddCmd) Run(g *Globals) error {
	return withService(g, func(ctx context.Context, a *app) error {
		failures := collectFailures(a.svc)
		defer failures.cancel()
		info, err := a.svc.AddStream(ctx, parsePath(c.Folder), c.URL)
		if err != nil {
			return err
		}
		if err := waitForFetches(ctx, a); err != nil {
			return err
		}
		if node, ok := a.svc.LookupURL(ctx, info.URL); ok {
			info = node
		}
		fmt.Fprintf(g.out(), "added %s (%d unread)\n", info.DisplayName(), info.Unread)
		return failures.err()
	})
}

type MkdirCmd struct {
	Path []string `arg:"" help:"Folder path segments."`
}

func (c *MkdirCmd) Run(g *Globals) error {
	return withService(g, func(ctx context.Context, a *app) error {
		info, err := a.svc.AddFolder(ctx, parsePath(c.Path))
		if err != nil {
			return err
		}
		fmt.Fprintf(g.out(), "folder %s\n", info.Path)
		return nil
	})
}

type RmCmd struct {
	Path []string `arg:"" help:"Path segments of the node to remove."`
}

func (c *RmCmd) Run(g *Globals) error {
	return withService(g, func(ctx context.Context, a *app) error {
		p := parsePath(c.Path)
		removed := a.svc.URLs(ctx, p)
		if err := a.svc.RemoveNode(ctx, p); err != nil {
			return err
		}
		fmt.Fprintf(g.out(), "removed %s (%d streams)\n", p, len(removed))
		return nil
	})
}

type RenameCmd struct {
	To   string   `required:"" help:"New name."`
	Path []string `arg:"" help:"Path segments of the node to rename."`
}

func (c *RenameCmd) Run(g *Globals) error {
	return withService(g, func(ctx context.Context, a *app) error {
		p := parsePath(c.Path)
		if err := a.svc.Rename(ctx, p, c.To); err != nil {
			return err
		}
		fmt.Fprintf(g.out(), "renamed %s to %s\n", p, p.Parent().Child(c.To))
		return nil
	})
}

type LsCmd struct {
	Path  []string `arg:"" optional:"" help:"Folder path segments; defaults to the root."`
	Depth int      `short:"d" default:"0" help:"Maximum depth to show, 0 for all."`
}

func (c *LsCmd) Run(g *Globals) error {
	return withService(g, func(ctx context.Context, a *app) error {
		p := parsePath(c.Path)
		node, ok := a.svc.GetNode(ctx, p)
		if !ok {
			return fmt.Errorf("%w: %s", hierarchy.ErrNotFound, p)
		}
		r := newRenderer(g.out())
		r.node(node, 0)
		if !node.IsStream() {
			r.tree(ctx, a.svc, p, 1, c.Depth)
		}
		return nil
	})
}

type ItemsCmd struct {
	URL    string `arg:"" help:"Feed URL."`
	Unread bool   `help:"Only show unread articles."`
}

func (c *ItemsCmd) Run(g *Globals) error {
	return withService(g, func(ctx context.Context, a *app) error {
		if _, ok := a.svc.LookupURL(ctx, c.URL); !ok {
			return fmt.Errorf("%w: %s", hierarchy.ErrNotFound, c.URL)
		}
		newRenderer(g.out()).articles(a.svc.Articles(ctx, c.URL), c.Unread)
		return nil
	})
}

type ReadCmd struct {
	All   string `help:"Mark everything below this path as read, written as 'A / B' or '/' for the root."`
	URL   string `arg:"" optional:"" help:"Feed URL."`
	Index []int  `arg:"" optional:"" help:"Article indices as shown by items."`
}

func (c *ReadCmd) Run(g *Globals) error {
	return withService(g, func(ctx context.Context, a *app) error {
		switch {
		case c.All != "":
			return a.svc.MarkAllAsRead(ctx, parsePath([]string{c.All}))
		case c.URL == "":
			return errors.New("give a feed url or --all")
		case len(c.Index) == 0:
			node, ok := a.svc.LookupURL(ctx, c.URL)
			if !ok {
				return fmt.Errorf("%w: %s", hierarchy.ErrNotFound, c.URL)
			}
			return a.svc.MarkAllAsRead(ctx, node.Path)
		}
		for _, idx := range c.Index {
			if err := a.svc.MarkArticleRead(ctx, c.URL, idx); err != nil {
				return err
			}
		}
		return nil
	})
}

type RefreshCmd struct {
	Path []string `arg:"" optional:"" help:"Path segments to refresh; defaults to everything."`
}

func (c *RefreshCmd) Run(g *Globals) error {
	return withService(g, func(ctx context.Context, a *app) error {
		failures := collectFailures(a.svc)
		defer failures.cancel()
		p := parsePath(c.Path)
		if err := a.svc.Refresh(ctx, p); err != nil {
			return err
		}
		if err := waitForFetches(ctx, a); err != nil {
			return err
		}
		node, _ := a.svc.GetNode(ctx, p)
		fmt.Fprintf(g.out(), "refreshed %s (%d unread)\n", p, node.Unread)
		return failures.err()
	})
}

type URLsCmd struct {
	Path []string `arg:"" optional:"" help:"Path segments; defaults to the root."`
}

func (c *URLsCmd) Run(g *Globals) error {
	return withService(g, func(ctx context.Context, a *app) error {
		p := parsePath(c.Path)
		if _, ok := a.svc.GetNode(ctx, p); !ok {
			return fmt.Errorf("%w: %s", hierarchy.ErrNotFound, p)
		}
		for _, url := range a.svc.URLs(ctx, p) {
			fmt.Fprintln(g.out(), url)
		}
		return nil
	})
}

type ExportCmd struct {
	Output string `short:"o" type:"path" help:"Write to this file instead of stdout."`
}

func (c *ExportCmd) Run(g *Globals) error {
	return withService(g, func(ctx context.Context, a *app) error {
		root, err := a.svc.Snapshot(ctx)
		if err != nil {
			return err
		}
		if c.Output == "" {
			return storage.EncodeJSON(g.out(), root)
		}
		return storage.NewJSONFile(c.Output).Save(root)
	})
}

type ImportCmd struct {
	File string `arg:"" type:"existingfile" help:"JSON file written by export."`
}

// Run replaces the stored hierarchy without starting the service, so the
// shutdown save cannot overwrite the imported tree.
func (c *ImportCmd) Run(g *Globals) error {
	a, err := g.configure()
	if err != nil {
		return err
	}
	defer a.closeRepo()

	root, err := storage.NewJSONFile(c.File).Load()
	if err != nil {
		return err
	}
	tree, err := hierarchy.Import(root)
	if err != nil {
		return err
	}
	if err := a.repo.Save(tree.Export()); err != nil {
		return err
	}
	fmt.Fprintf(g.out(), "imported %d streams\n", tree.StreamCount())
	return nil
}

type ServeCmd struct {
	NoInitialRefresh bool `help:"Do not refresh everything at start-up."`
}

func (c *ServeCmd) Run(g *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withService(g, func(_ context.Context, a *app) error {
		cancelEvents := a.svc.Subscribe(logEvents(a.log))
		defer cancelEvents()

		if a.settings.MetricsAddr != "" {
			srv := &http.Server{Addr: a.settings.MetricsAddr, Handler: metricsMux(), ReadHeaderTimeout: 5 * time.Second}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					a.log.WithError(err).Error("metrics server failed")
				}
			}()
			defer func() { _ = srv.Shutdown(context.Background()) }()
			a.log.WithField("addr", a.settings.MetricsAddr).Info("serving metrics")
		}

		if !c.NoInitialRefresh {
			if err := a.svc.RefreshAll(ctx); err != nil {
				return err
			}
		}
		sched := usecase.NewScheduler(a.svc, a.settings.RefreshInterval(), logrus.NewEntry(a.log).WithField("component", "scheduler"))
		a.log.WithField("interval", a.settings.RefreshInterval()).Info("feedtree running")
		sched.Run(ctx)
		return nil
	})
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func logEvents(log *logrus.Logger) usecase.Listener {
	return func(ev usecase.Event) {
		entry := log.WithFields(logrus.Fields{"url": ev.URL, "event": ev.Kind.String()})
		switch {
		case ev.Err != nil:
			entry.WithError(ev.Err).Warn("refresh failed")
		case ev.Kind == usecase.FeedInfoChanged:
			entry.WithFields(logrus.Fields{"unread": ev.Unread, "alias": ev.Alias}).Debug("feed updated")
		default:
			entry.Debug("feed event")
		}
	}
}

// failureCollector remembers refresh failures reported while a command waits.
type failureCollector struct {
	errs   chan error
	cancel func()
}

func collectFailures(svc *usecase.HierarchyService) *failureCollector {
	fc := &failureCollector{errs: make(chan error, 64)}
	fc.cancel = svc.Subscribe(func(ev usecase.Event) {
		if ev.Err == nil {
			return
		}
		select {
		case fc.errs <- fmt.Errorf("%s: %w", ev.URL, ev.Err):
		default:
		}
	})
	return fc
}

func (fc *failureCollector) err() error {
	var errs []error
	for {
		select {
		case err := <-fc.errs:
			errs = append(errs, err)
		default:
			return errors.Join(errs...)
		}
	}
}
