package scheduler

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/paysync/paysync/pkg/consts"
	"github.com/paysync/paysync/pkg/logger"
	"github.com/paysync/paysync/pkg/streams"
	"github.com/paysync/paysync/pkg/telemetry/metrics"
)

type CleanerOpts struct {
	// MinIdle is how long an entry stays pending before it is reclaimed.
	MinIdle  time.Duration
	Interval time.Duration
	Count    int64
	Clock    clockwork.Clock
}

// Cleaner reclaims batches left pending by consumers which crashed or
// stalled, and processes them through its consumer.
type Cleaner struct {
	c *Consumer
	o CleanerOpts
}

func NewCleaner(c *Consumer, o CleanerOpts) *Cleaner {
	if o.MinIdle <= 0 {
		o.MinIdle = consts.DefaultCleanerMinIdle
	}
	if o.Interval <= 0 {
		o.Interval = consts.DefaultCleanerInterval
	}
	if o.Count <= 0 {
		o.Count = consts.DefaultCleanerClaimCount
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	return &Cleaner{c: c, o: o}
}

// Sweep claims every entry idle longer than MinIdle and processes it.  It
// returns the number of batches reclaimed.
func (cl *Cleaner) Sweep(ctx context.Context) (int, error) {
	l := logger.StdlibLogger(ctx).With("stream", cl.c.o.Stream, "group", cl.c.o.Group, "consumer", cl.c.o.Consumer)

	reclaimed := 0
	start := "0-0"
	for {
		next, entries, err := cl.c.stream.Claim(ctx, streams.ClaimOpts{
			Stream:   cl.c.o.Stream,
			Group:    cl.c.o.Group,
			Consumer: cl.c.o.Consumer,
			MinIdle:  cl.o.MinIdle,
			Start:    start,
			Count:    cl.o.Count,
		})
		if err != nil {
			return reclaimed, err
		}

		deliveries, err := cl.c.decode(ctx, entries)
		if err != nil {
			return reclaimed, err
		}
		if len(deliveries) > 0 {
			metrics.IncrSchedulerReclaimedCounter(ctx, int64(len(deliveries)), metrics.CounterOpt{PkgName: pkgName})
			l.Warn("reclaimed idle batches", "count", len(deliveries))
		}

		for _, d := range deliveries {
			if err := cl.c.ProcessBatch(ctx, d); err != nil {
				return reclaimed, err
			}
			reclaimed++
		}

		if next == "0-0" || next == "" || next == start {
			return reclaimed, nil
		}
		start = next
	}
}

// Run sweeps every interval until ctx is cancelled.
func (cl *Cleaner) Run(ctx context.Context) error {
	l := logger.StdlibLogger(ctx)
	for {
		if _, err := cl.Sweep(ctx); err != nil && ctx.Err() == nil {
			l.Error("cleaner sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-cl.o.Clock.After(cl.o.Interval):
		}
	}
}
