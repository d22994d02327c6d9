package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/paysync/paysync/pkg/domain"
	"github.com/paysync/paysync/pkg/logger"
	cron "github.com/robfig/cron/v3"
)

// parser accepts five field expressions and descriptors such as @daily.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NextRun returns the next time the cron expression fires after from.
func NextRun(expr string, from time.Time) (time.Time, error) {
	schedule, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("error parsing cron expression: %w", err)
	}
	return schedule.Next(from), nil
}

// RetentionStore deletes finished trackers.
type RetentionStore interface {
	DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error)
}

// Retention deletes trackers which finished more than MaxAge ago.
type Retention struct {
	store  RetentionStore
	maxAge time.Duration
	clock  clockwork.Clock
}

func NewRetention(store RetentionStore, maxAge time.Duration, clock clockwork.Clock) *Retention {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Retention{store: store, maxAge: maxAge, clock: clock}
}

// Prune deletes every tracker finished before now minus MaxAge.
func (r *Retention) Prune(ctx context.Context) (int64, error) {
	if r.maxAge <= 0 {
		return 0, fmt.Errorf("retention max age must be positive")
	}
	n, err := r.store.DeleteFinishedBefore(ctx, domain.Now(r.clock).Add(-r.maxAge))
	if err != nil {
		return 0, fmt.Errorf("error pruning finished trackers: %w", err)
	}
	return n, nil
}

// Run prunes each time expr fires until ctx is cancelled.
func (r *Retention) Run(ctx context.Context, expr string) error {
	l := logger.StdlibLogger(ctx).With("schedule", expr, "max_age", r.maxAge)
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("error parsing cron expression: %w", err)
	}
	l.Info("starting retention")

	for {
		now := r.clock.Now()
		next, _ := NextRun(expr, now)

		select {
		case <-ctx.Done():
			return nil
		case <-r.clock.After(next.Sub(now)):
		}

		n, err := r.Prune(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.Error("retention failed", "error", err)
			continue
		}
		l.Info("pruned finished trackers", "deleted", n)
	}
}
