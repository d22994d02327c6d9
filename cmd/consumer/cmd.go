package consumer

import (
	"context"

	"github.com/paysync/paysync/cmd/internal/deps"
	"github.com/paysync/paysync/cmd/internal/localconfig"
	"github.com/paysync/paysync/pkg/logger"
	"github.com/paysync/paysync/pkg/scheduler"
	"github.com/paysync/paysync/pkg/workflows"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

func Command() *cli.Command {
	return &cli.Command{
		Name:      "consumer",
		Usage:     "Execute batches of process trackers from the scheduler stream.",
		UsageText: "paysync consumer [options]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "name",
				Usage: "Consumer name within the group.  Defaults to a unique name per process.",
			},
			&cli.BoolFlag{
				Name:  "no-cleaner",
				Usage: "Do not reclaim batches left pending by other consumers.",
			},
		},
		Action: action,
	}
}

func action(ctx context.Context, cmd *cli.Command) error {
	c, err := localconfig.Load(ctx, cmd)
	if err != nil {
		return err
	}

	d, err := deps.New(ctx, c, "consumer")
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(context.WithoutCancel(ctx)); err != nil {
			logger.StdlibLogger(ctx).Error("error shutting down", "error", err)
		}
	}()

	o := c.Scheduler.Consumer
	consumer := scheduler.NewConsumer(d.Sched, d.Streams, workflows.Registry(d.Storage), scheduler.ConsumerOpts{
		Stream:      c.Scheduler.Stream,
		Group:       c.Scheduler.Group,
		Consumer:    cmd.String("name"),
		ReadCount:   o.ReadCount,
		Block:       o.Block,
		Workers:     o.Workers,
		Interval:    o.Interval,
		TickTimeout: o.TickTimeout,
		Clock:       d.Clock,
	})
	if err := consumer.EnsureGroup(ctx); err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return consumer.Run(ctx)
	})
	if !cmd.Bool("no-cleaner") {
		cleaner := scheduler.NewCleaner(consumer, scheduler.CleanerOpts{
			MinIdle:  c.Scheduler.Cleaner.MinIdle,
			Interval: c.Scheduler.Cleaner.Interval,
			Count:    c.Scheduler.Cleaner.Count,
			Clock:    d.Clock,
		})
		eg.Go(func() error {
			return cleaner.Run(ctx)
		})
	}
	return eg.Wait()
}
