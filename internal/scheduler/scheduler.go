package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Runner is one scheduled unit of work.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a plain function to Runner.
type RunnerFunc func(ctx context.Context) error

// Run calls f(ctx).
func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

// Scheduler fires a Runner on wall-clock boundaries of a fixed interval,
// so an hourly schedule runs at HH:00:00 like a cron entry would.
type Scheduler struct {
	interval time.Duration
	runner   Runner
	log      *zap.Logger
	now      func() time.Time
}

// New returns a scheduler for runner. interval must be positive.
func New(interval time.Duration, runner Runner, log *zap.Logger) *Scheduler {
	return &Scheduler{
		interval: interval,
		runner:   runner,
		log:      log.Named("scheduler"),
		now:      time.Now,
	}
}

// Run blocks until ctx is cancelled. A failing run is logged and the next
// boundary is still honoured.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("starting reminder schedule", zap.Duration("interval", s.interval))

	timer := time.NewTimer(s.untilNext())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("reminder schedule shutting down")
			return
		case <-timer.C:
			if err := s.runner.Run(ctx); err != nil {
				s.log.Error("scheduled run failed", zap.Error(err))
			}
			timer.Reset(s.untilNext())
		}
	}
}

func (s *Scheduler) untilNext() time.Duration {
	now := s.now()
	return nextTick(now, s.interval).Sub(now)
}

// nextTick returns the first multiple of interval since the Unix epoch that
// is strictly after now.
func nextTick(now time.Time, interval time.Duration) time.Time {
	next := now.Truncate(interval)
	if !next.After(now) {
		next = next.Add(interval)
	}
	return next
}
