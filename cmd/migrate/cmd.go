package migrate

import (
	"context"

	"github.com/paysync/paysync/cmd/internal/localconfig"
	"github.com/paysync/paysync/pkg/logger"
	"github.com/paysync/paysync/pkg/storage/sqlstore"
	"github.com/urfave/cli/v3"
)

func Command() *cli.Command {
	return &cli.Command{
		Name:      "migrate",
		Usage:     "Apply relational store migrations and exit.",
		UsageText: "paysync migrate [options]",
		Action:    action,
	}
}

func action(ctx context.Context, cmd *cli.Command) error {
	c, err := localconfig.Load(ctx, cmd)
	if err != nil {
		return err
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

	logger.StdlibLogger(ctx).Info("migrations applied", "postgres", c.Database.PostgresURI != "")
	return db.Close()
}
