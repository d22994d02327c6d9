package producer

import (
	"context"

	"github.com/paysync/paysync/cmd/internal/deps"
	"github.com/paysync/paysync/cmd/internal/localconfig"
	"github.com/paysync/paysync/pkg/logger"
	"github.com/paysync/paysync/pkg/scheduler"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

func Command() *cli.Command {
	return &cli.Command{
		Name:      "producer",
		Usage:     "Move due process trackers onto the scheduler stream.",
		UsageText: "paysync producer [options]",
		Action:    action,
	}
}

func action(ctx context.Context, cmd *cli.Command) error {
	c, err := localconfig.Load(ctx, cmd)
	if err != nil {
		return err
	}

	d, err := deps.New(ctx, c, "producer")
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(context.WithoutCancel(ctx)); err != nil {
			logger.StdlibLogger(ctx).Error("error shutting down", "error", err)
		}
	}()

	o := c.Scheduler.Producer

	p := scheduler.NewProducer(d.DB, d.Streams, d.Locker, scheduler.ProducerOpts{
		Stream:      c.Scheduler.Stream,
		Group:       c.Scheduler.Group,
		BatchSize:   o.BatchSize,
		LockKey:     o.LockKey,
		LockValue:   o.LockValue,
		LockTTL:     o.LockTTL,
		Interval:    o.Interval,
		TickTimeout: o.TickTimeout,
		Lookahead:   o.Lookahead,
		FetchLimit:  o.FetchLimit,
		Clock:       d.Clock,
	})

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return p.Run(ctx) })
	if r := c.Scheduler.Retention; r.Schedule != "" {
		retention := scheduler.NewRetention(d.DB, r.MaxAge, d.Clock)
		eg.Go(func() error { return retention.Run(ctx, r.Schedule) })
	}
	return eg.Wait()
}
