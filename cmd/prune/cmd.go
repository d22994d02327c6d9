package prune

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/paysync/paysync/cmd/internal/localconfig"
	"github.com/paysync/paysync/pkg/logger"
	"github.com/paysync/paysync/pkg/scheduler"
	"github.com/paysync/paysync/pkg/storage/sqlstore"
	"github.com/urfave/cli/v3"
	str2duration "github.com/xhit/go-str2duration/v2"
)

func Command() *cli.Command {
	return &cli.Command{
		Name:      "prune",
		Usage:     "Delete finished process trackers.",
		UsageText: "paysync prune --older-than 30d",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "older-than",
				Usage: "Delete trackers finished longer ago than this, eg. 7d or 36h.  Defaults to scheduler.retention.max_age.",
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

	age := c.Scheduler.Retention.MaxAge
	if s := cmd.String("older-than"); s != "" {
		if age, err = str2duration.ParseDuration(s); err != nil {
			return fmt.Errorf("invalid --older-than: %w", err)
		}
	}

	db, err := sqlstore.Open(ctx, sqlstore.Options{
		PostgresURI: c.Database.PostgresURI,
		InMemory:    c.Database.InMemory,
		Dir:         c.Database.Dir,
		MaxOpen:     c.Database.MaxOpen,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := scheduler.NewRetention(db, age, clockwork.NewRealClock()).Prune(ctx)
	if err != nil {
		return err
	}
	logger.StdlibLogger(ctx).Info("pruned finished trackers", "deleted", n, "older_than", age)
	return nil
}
