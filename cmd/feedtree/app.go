package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tesso57/feedtree/internal/application/settings"
	"github.com/tesso57/feedtree/internal/application/usecase"
	"github.com/tesso57/feedtree/internal/domain/hierarchy"
	"github.com/tesso57/feedtree/internal/infrastructure/config"
	"github.com/tesso57/feedtree/internal/infrastructure/feed"
	"github.com/tesso57/feedtree/internal/infrastructure/storage"
)

// Globals are flags shared by every command.
type Globals struct {
	Config   string `help:"Config file path." type:"path" env:"FEEDTREE_CONFIG"`
	LogLevel string `help:"Override the configured log level."`

	Out io.Writer `kong:"-"`
}

// newFetcher is exposed for testing.
var newFetcher = func(cfg settings.Settings, log *logrus.Entry) usecase.FeedFetcher {
	return feed.NewFetcher(feed.Options{
		UserAgent:     cfg.Fetch.UserAgent,
		Retries:       cfg.Fetch.Retries,
		DiscoverIcons: cfg.Fetch.DiscoverIcons,
		Logger:        log.WithField("component", "fetcher"),
	})
}

// app holds the wiring for one command invocation.
type app struct {
	settings settings.Settings
	log      *logrus.Logger
	repo     storage.Repository
	svc      *usecase.HierarchyService
	cancel   context.CancelFunc
	runErr   chan error
}

func (g *Globals) out() io.Writer {
	if g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

// configure loads settings and builds the logger and repository.
func (g *Globals) configure() (*app, error) {
	store, err := config.Load(g.Config)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg := store.Settings

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	level := cfg.LogLevel
	if g.LogLevel != "" {
		level = g.LogLevel
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(lvl)

	return &app{settings: cfg, log: logger, repo: storage.Open(cfg.DatabaseFile)}, nil
}

// start opens the hierarchy service and runs it in the background.
func (g *Globals) start() (*app, error) {
	a, err := g.configure()
	if err != nil {
		return nil, err
	}
	entry := logrus.NewEntry(a.log)
	svc, err := usecase.NewHierarchyService(a.repo, newFetcher(a.settings, entry), usecase.Options{
		Retention:    a.settings.RetentionLimit,
		FetchTimeout: a.settings.FetchTimeout(),
		Logger:       entry.WithField("component", "hierarchy"),
	})
	if err != nil {
		a.closeRepo()
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.svc = svc
	a.cancel = cancel
	a.runErr = make(chan error, 1)
	go func() { a.runErr <- svc.Run(ctx) }()

	if err := a.seed(context.Background()); err != nil {
		_ = a.stop()
		return nil, err
	}
	return a, nil
}

// seed subscribes the configured feeds while the hierarchy is still empty.
func (a *app) seed(ctx context.Context) error {
	if len(a.settings.Feeds) == 0 || len(a.svc.GetChildren(ctx, hierarchy.Path{})) > 0 {
		return nil
	}
	for _, url := range a.settings.Feeds {
		if _, err := a.svc.AddStream(ctx, hierarchy.Path{}, url); err != nil {
			if errors.Is(err, hierarchy.ErrDuplicate) {
				continue
			}
			return fmt.Errorf("seed %s: %w", url, err)
		}
		a.log.WithField("url", url).Info("seeded feed from config")
	}
	return nil
}

// stop shuts the service down, which saves the hierarchy.
func (a *app) stop() error {
	var err error
	if a.svc != nil {
		a.cancel()
		err = <-a.runErr
	}
	a.closeRepo()
	return err
}

func (a *app) closeRepo() {
	if c, ok := a.repo.(io.Closer); ok {
		if err := c.Close(); err != nil {
			a.log.WithError(err).Warn("closing database failed")
		}
	}
}

// parsePath turns positional segments into a hierarchy path. A single
// argument containing " / " is split the way paths are printed.
func parsePath(segments []string) hierarchy.Path {
	if len(segments) == 1 && strings.Contains(segments[0], " / ") {
		segments = strings.Split(strings.TrimPrefix(segments[0], "/"), " / ")
	}
	out := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.TrimSpace(s)
		if s == "" || s == "/" {
			continue
		}
		out = append(out, s)
	}
	return hierarchy.NewPath(out...)
}
