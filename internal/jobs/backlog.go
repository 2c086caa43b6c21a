// Package jobs runs periodic background work.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"akwaba.app/internal/obs"
)

// PendingCounter reports the review backlog.
type PendingCounter interface {
	PendingCount(ctx context.Context) (int, error)
}

// Scheduler refreshes the pending-cases gauge on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	counter PendingCounter
	timeout time.Duration
	gauge   func(int)
}

// NewScheduler builds a scheduler that recovers from panicking jobs.
func NewScheduler(counter PendingCounter) *Scheduler {
	logger := cron.PrintfLogger(obs.Logger())
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(logger))),
		counter: counter,
		timeout: 10 * time.Second,
		gauge:   obs.SetPendingCases,
	}
}

// Start registers the backlog job and starts the scheduler. The gauge is also
// refreshed once immediately.
func (s *Scheduler) Start(schedule string) error {
	if s.counter == nil {
		return errors.New("jobs: pending counter is required")
	}
	if _, err := s.cron.AddFunc(schedule, s.refreshBacklog); err != nil {
		return err
	}
	obs.Info("scheduled kyc backlog job", map[string]any{"schedule": schedule})
	s.refreshBacklog()
	s.cron.Start()
	return nil
}

// Stop stops the scheduler; the returned context is done when running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RefreshBacklog updates the gauge once.
func (s *Scheduler) RefreshBacklog(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	n, err := s.counter.PendingCount(ctx)
	if err != nil {
		return err
	}
	s.gauge(n)
	return nil
}

func (s *Scheduler) refreshBacklog() {
	if err := s.RefreshBacklog(context.Background()); err != nil {
		obs.Error("kyc backlog refresh failed", map[string]any{"error": err.Error()})
	}
}
