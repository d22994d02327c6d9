package drainer

import (
	"context"

	"github.com/paysync/paysync/cmd/internal/deps"
	"github.com/paysync/paysync/cmd/internal/localconfig"
	"github.com/paysync/paysync/pkg/drainer"
	"github.com/paysync/paysync/pkg/logger"
	"github.com/urfave/cli/v3"
)

func Command() *cli.Command {
	return &cli.Command{
		Name:      "drainer",
		Usage:     "Replay queued KV writes into the relational store.",
		UsageText: "paysync drainer [options]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "name",
				Usage: "Consumer name within the drainer group.  Defaults to a unique name per process.",
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

	d, err := deps.New(ctx, c, "drainer")
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(context.WithoutCancel(ctx)); err != nil {
			logger.StdlibLogger(ctx).Error("error shutting down", "error", err)
		}
	}()

	r := drainer.NewReplayer(d.Streams, d.DB, drainer.ReplayerOpts{
		Prefix:     c.Redis.KeyPrefix,
		Partitions: c.Drainer.Partitions,
		Group:      c.Drainer.Group,
		Consumer:   cmd.String("name"),
		ReadCount:  c.Drainer.ReadCount,
		Block:      c.Drainer.Block,
		MinIdle:    c.Drainer.MinIdle,
		Clock:      d.Clock,
	})

	logger.StdlibLogger(ctx).Info("starting drainer", "partitions", c.Drainer.Partitions, "group", c.Drainer.Group)
	return r.Run(ctx)
}
