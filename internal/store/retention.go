package store

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/OpenVibeCoding/swe-cli-sub001/internal/observability"
)

// RetentionSweeper periodically archives sessions that have gone idle
// past a configured age, implementing the "destroyed by ... retention
// policy" lifecycle rule. Scheduling is grounded on the teacher's use of
// robfig/cron/v3 for background maintenance jobs (internal/tasks,
// internal/cron), narrowed here to a single fixed job.
type RetentionSweeper struct {
	store     *Store
	idleAfter time.Duration
	logger    *observability.Logger

	cron *cron.Cron
}

// NewRetentionSweeper constructs a sweeper. idleAfter <= 0 disables
// sweeping (Start becomes a no-op).
func NewRetentionSweeper(s *Store, idleAfter time.Duration, logger *observability.Logger) *RetentionSweeper {
	return &RetentionSweeper{store: s, idleAfter: idleAfter, logger: logger}
}

// Start schedules the sweep on schedule (a standard 5-field cron
// expression, e.g. "@hourly" or "0 * * * *") and returns immediately;
// the sweep itself runs on the cron library's own goroutine. Calling
// Start twice, or with a non-positive idleAfter, is a no-op.
func (r *RetentionSweeper) Start(schedule string) error {
	if r.idleAfter <= 0 || r.cron != nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(schedule, r.sweepOnce); err != nil {
		return err
	}
	c.Start()
	r.cron = c
	return nil
}

// Stop halts the scheduler, waiting for any in-flight sweep to finish.
func (r *RetentionSweeper) Stop() {
	if r.cron == nil {
		return
	}
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.cron = nil
}

func (r *RetentionSweeper) sweepOnce() {
	n, err := r.Sweep(time.Now().UTC())
	if err != nil {
		if r.logger != nil {
			r.logger.Error(context.Background(), "retention sweep failed", "error", err.Error())
		}
		return
	}
	if n > 0 && r.logger != nil {
		r.logger.Info(context.Background(), "retention sweep archived idle sessions", "count", n)
	}
}

// Sweep archives every active, non-archived session whose UpdatedAt is
// older than now-idleAfter. Exported directly so callers (and tests) can
// drive a deterministic sweep without waiting on the cron schedule.
func (r *RetentionSweeper) Sweep(now time.Time) (int, error) {
	if r.idleAfter <= 0 {
		return 0, nil
	}
	summaries, err := r.store.List()
	if err != nil {
		return 0, err
	}
	cutoff := now.Add(-r.idleAfter)
	archived := 0
	for _, sum := range summaries {
		if sum.Archived || sum.UpdatedAt.After(cutoff) {
			continue
		}
		if err := r.store.Archive(sum.ID); err != nil {
			return archived, err
		}
		archived++
	}
	return archived, nil
}
