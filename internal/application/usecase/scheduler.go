package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// Refresher is the part of HierarchyService the scheduler drives.
type Refresher interface {
	RefreshAll(ctx context.Context) error
}

// Scheduler refreshes every stream on a fixed interval.
type Scheduler struct {
	Refresher Refresher
	Interval  time.Duration
	Logger    *logrus.Entry
}

// NewScheduler constructs a Scheduler.
func NewScheduler(refresher Refresher, interval time.Duration, logger *logrus.Entry) Scheduler {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	return Scheduler{Refresher: refresher, Interval: interval, Logger: logger}
}

// Run triggers a refresh on every tick until ctx is cancelled. A non-positive
// interval disables periodic refresh.
func (s Scheduler) Run(ctx context.Context) {
	if s.Interval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Logger.Debug("scheduled refresh")
			if err := s.Refresher.RefreshAll(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.Logger.WithError(err).Warn("scheduled refresh failed")
			}
		}
	}
}
