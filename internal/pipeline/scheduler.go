package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// Runner triggers one ingestion cycle.
type Runner interface {
	RunOnce(ctx context.Context) error
}

// Scheduler fires the pipeline once per day at local midnight. The next
// timer is rescheduled after every run, success or failure, so a failed run
// never silently stops future runs.
type Scheduler struct {
	runner Runner
	clock  clockwork.Clock
	tz     *time.Location
	logger *slog.Logger
}

// NewScheduler creates a daily scheduler in the given timezone.
func NewScheduler(runner Runner, clock clockwork.Clock, tz *time.Location, logger *slog.Logger) *Scheduler {
	return &Scheduler{runner: runner, clock: clock, tz: tz, logger: logger}
}

// Run blocks until the context is cancelled, triggering the pipeline at
// each local midnight.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		delay := untilNextMidnight(s.clock.Now().In(s.tz))
		s.logger.Info("next scheduled run", "in", delay)

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			return nil
		case <-s.clock.After(delay):
		}

		if err := s.runner.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Error("scheduled run failed", "error", err)
		}
	}
}

// untilNextMidnight computes the delay from now to the next midnight in
// now's location.
func untilNextMidnight(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
	return next.Sub(now)
}
