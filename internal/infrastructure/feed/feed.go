// Package feed provides functionality to fetch and parse RSS/Atom feeds.
package feed

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mmcdole/gofeed"
	"github.com/sirupsen/logrus"
	"github.com/tesso57/feedtree/internal/domain/reading"
)

const feedAcceptHeader = "application/atom+xml, application/rss+xml, application/feed+json, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5"

// DefaultUserAgent is sent when Options.UserAgent is empty.
const DefaultUserAgent = "Feedtree/1.0"

type acceptTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t acceptTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	clone := req.Clone(req.Context())
	if clone.Header.Get("Accept") == "" {
		clone.Header.Set("Accept", feedAcceptHeader)
	}
	if t.userAgent != "" {
		clone.Header.Set("User-Agent", t.userAgent)
	}
	return base.RoundTrip(clone)
}

// Options configures a Fetcher.
type Options struct {
	UserAgent string
	// Retries is the number of extra attempts after a failed fetch.
	Retries int
	// RetryDelay is the first backoff interval. Defaults to 500ms.
	RetryDelay time.Duration
	// DiscoverIcons enables looking up site icons for feeds without an image.
	DiscoverIcons bool
	Transport     http.RoundTripper
	Logger        *logrus.Entry
}

// Fetcher implements the usecase.FeedFetcher interface on top of gofeed.
type Fetcher struct {
	client     *http.Client
	parse      func(ctx context.Context, url string) (*gofeed.Feed, error)
	retries    int
	retryDelay time.Duration
	discover   bool
	log        *logrus.Entry

	mu    sync.Mutex
	icons map[string]string
}

// NewFetcher constructs a Fetcher.
func NewFetcher(opts Options) *Fetcher {
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	client := &http.Client{Transport: acceptTransport{base: opts.Transport, userAgent: ua}}
	f := &Fetcher{
		client:     client,
		retries:    max(opts.Retries, 0),
		retryDelay: delay,
		discover:   opts.DiscoverIcons,
		log:        logger,
		icons:      make(map[string]string),
	}
	f.parse = func(ctx context.Context, url string) (*gofeed.Feed, error) {
		fp := gofeed.NewParser()
		fp.UserAgent = ua
		fp.Client = client
		return fp.ParseURLWithContext(url, ctx)
	}
	return f
}

// Fetch downloads and parses the feed at url, retrying transient failures.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*reading.Feed, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("feed url is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	log := f.log.WithField("url", url)

	start := time.Now()
	parsed, err := f.parseWithRetry(ctx, url, log)
	fetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		fetchTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	fetchTotal.WithLabelValues("ok").Inc()

	out := convert(parsed, url)
	out.Icon = f.iconFor(ctx, parsed, url)
	return out, nil
}

func (f *Fetcher) parseWithRetry(ctx context.Context, url string, log *logrus.Entry) (*gofeed.Feed, error) {
	var parsed *gofeed.Feed
	operation := func() error {
		var err error
		parsed, err = f.parse(ctx, url)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.retryDelay
	b.MaxInterval = 30 * time.Second
	b.Multiplier = 2
	b.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		fetchRetries.Inc()
		log.WithError(err).WithField("wait", wait).Debug("retrying feed fetch")
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(f.retries)), ctx)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, err
	}
	return parsed, nil
}

// retryable reports whether a fetch error may succeed on another attempt.
// Client errors other than 408 and 429 and unparsable bodies are final.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, gofeed.ErrFeedTypeNotDetected) {
		return false
	}
	var httpErr gofeed.HTTPError
	if errors.As(err, &httpErr) {
		code := httpErr.StatusCode
		if code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests {
			return false
		}
	}
	return true
}

func convert(parsed *gofeed.Feed, url string) *reading.Feed {
	f := new(reading.Feed{
		Title: parsed.Title,
		URL:   url,
		Items: make([]reading.Item, 0, len(parsed.Items)),
	})

	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		pub := item.Published
		if pub == "" {
			pub = item.Updated
		}
		var date time.Time
		if item.PublishedParsed != nil {
			date = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			date = *item.UpdatedParsed
		}
		description := item.Description
		if description == "" {
			description = item.Content
		}

		f.Items = append(f.Items, reading.Item{
			Title:       item.Title,
			Link:        item.Link,
			Author:      authorOf(item),
			Published:   pub,
			Description: description,
			Date:        date,
		})
	}
	return f
}

func authorOf(item *gofeed.Item) string {
	for _, p := range item.Authors {
		if p != nil && p.Name != "" {
			return p.Name
		}
	}
	return ""
}
