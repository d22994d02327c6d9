package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	isatty "github.com/mattn/go-isatty"
	"github.com/paysync/paysync/cmd/consumer"
	"github.com/paysync/paysync/cmd/drainer"
	"github.com/paysync/paysync/cmd/migrate"
	"github.com/paysync/paysync/cmd/producer"
	"github.com/paysync/paysync/cmd/prune"
	"github.com/paysync/paysync/cmd/schedule"
	"github.com/paysync/paysync/cmd/version"
	"github.com/paysync/paysync/pkg/logger"
	"github.com/urfave/cli/v3"
)

// globalFlags are the flags that should be available on all commands
var globalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "config",
		Usage: "Path to a paysync configuration file.  Defaults to PAYSYNC_CONFIG or paysync.yaml in the working directory.",
	},
	&cli.BoolFlag{
		Name:  "json",
		Usage: "Output logs as JSON.  Set to true if stdout is not a TTY.",
	},
	&cli.BoolFlag{
		Name:  "verbose",
		Usage: "Enable verbose logging.",
	},
	&cli.StringFlag{
		Name:    "log-level",
		Aliases: []string{"l"},
		Value:   "info",
		Usage:   "Set the log level.  One of: trace, debug, info, notice, warn, error.",
	},
}

func execute() {
	app := &cli.Command{
		Name:    "paysync",
		Usage:   "Write-behind payment storage and process tracker scheduler.",
		Version: version.Print(),
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			// Set LOG_HANDLER environment variable based on --json flag
			// This ensures the logger respects the JSON output setting
			if cmd.Bool("json") {
				os.Setenv("LOG_HANDLER", "json")
			}

			if os.Getenv("LOG_LEVEL") == "" {
				if cmd.IsSet("log-level") {
					os.Setenv("LOG_LEVEL", cmd.String("log-level"))
				} else if cmd.Bool("verbose") {
					os.Setenv("LOG_LEVEL", "debug")
				} else {
					os.Setenv("LOG_LEVEL", "info")
				}
			}

			return logger.WithStdlib(ctx, logger.New()), nil
		},

		Flags: globalFlags,
		Commands: []*cli.Command{
			producer.Command(),
			consumer.Command(),
			drainer.Command(),
			migrate.Command(),
			schedule.Command(),
			prune.Command(),
			version.Command(),
		},
	}

	if !isatty.IsTerminal(os.Stdout.Fd()) {
		// Always use JSON when not in a terminal
		os.Setenv("LOG_HANDLER", "json")
	}

	// Cancelling the context abandons the current tick; producers release
	// their lock on the way out.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		stop()
		fmt.Println(err)
		os.Exit(1)
	}
}
