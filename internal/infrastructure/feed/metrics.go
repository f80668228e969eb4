package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedtree_fetch_total",
		Help: "Feed fetches by result",
	}, []string{"result"})
	fetchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedtree_fetch_retries_total",
		Help: "Feed fetch attempts that were retried",
	})
	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feedtree_fetch_duration_seconds",
		Help:    "Time spent fetching a feed, retries included",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})
)
