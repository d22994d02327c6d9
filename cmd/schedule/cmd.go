package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/paysync/paysync/cmd/internal/localconfig"
	"github.com/paysync/paysync/pkg/logger"
	"github.com/paysync/paysync/pkg/scheduler"
	"github.com/paysync/paysync/pkg/storage/sqlstore"
	"github.com/paysync/paysync/pkg/workflows"
	"github.com/urfave/cli/v3"
)

func Command() *cli.Command {
	return &cli.Command{
		Name:      "schedule",
		Usage:     "Add a process tracker.",
		UsageText: "paysync schedule --merchant m1 --payment pay_1 --attempt att_1 [options]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "name",
				Value: "PAYMENTS_SYNC",
				Usage: "Task name.",
			},
			&cli.StringFlag{
				Name:  "runner",
				Value: workflows.RunnerPaymentSync,
				Usage: "Workflow which executes the task.",
			},
			&cli.StringFlag{
				Name:  "merchant",
				Usage: "Merchant id, selecting the retry schedule.",
			},
			&cli.StringFlag{
				Name:  "payment",
				Usage: "Payment id.",
			},
			&cli.StringFlag{
				Name:  "attempt",
				Usage: "Payment attempt id.",
			},
			&cli.StringFlag{
				Name:  "payment-method",
				Usage: "Payment method, selecting the retry schedule.",
			},
			&cli.StringFlag{
				Name:  "data",
				Usage: "Raw JSON tracking data, replacing the merchant, payment and attempt flags.",
			},
			&cli.StringSliceFlag{
				Name:  "tag",
				Usage: "Tags stored on the tracker.",
			},
			&cli.StringFlag{
				Name:  "at",
				Usage: "RFC3339 schedule time.  Defaults to now plus the retry schedule's start delay.",
			},
		},
		Action: action,
	}
}

func action(ctx context.Context, cmd *cli.Command) error {
	task, err := taskFromFlags(cmd)
	if err != nil {
		return err
	}

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
	defer db.Close()

	p, err := scheduler.New(db, scheduler.NewRetryResolver(c.Retry), nil).AddTask(ctx, task)
	if err != nil {
		return err
	}

	logger.StdlibLogger(ctx).Info("scheduled process", "tracker_id", p.ID, "runner", p.Runner, "schedule_time", p.ScheduleTime)
	fmt.Println(p.ID)
	return nil
}

func taskFromFlags(cmd *cli.Command) (scheduler.NewTask, error) {
	task := scheduler.NewTask{
		Name:   cmd.String("name"),
		Runner: cmd.String("runner"),
		Tag:    cmd.StringSlice("tag"),
	}

	if raw := cmd.String("data"); raw != "" {
		if !json.Valid([]byte(raw)) {
			return task, fmt.Errorf("--data must be valid JSON")
		}
		task.TrackingData = json.RawMessage(raw)
	} else {
		if cmd.String("merchant") == "" {
			return task, fmt.Errorf("--merchant or --data is required")
		}
		task.TrackingData = workflows.PaymentSyncData{
			MerchantID:    cmd.String("merchant"),
			PaymentID:     cmd.String("payment"),
			AttemptID:     cmd.String("attempt"),
			PaymentMethod: cmd.String("payment-method"),
		}
	}

	if at := cmd.String("at"); at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return task, fmt.Errorf("invalid --at: %w", err)
		}
		task.ScheduleTime = t.UTC().Truncate(time.Millisecond)
	}
	return task, nil
}
