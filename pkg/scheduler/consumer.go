package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid/v2"
	"github.com/paysync/paysync/pkg/consts"
	"github.com/paysync/paysync/pkg/enums"
	"github.com/paysync/paysync/pkg/logger"
	"github.com/paysync/paysync/pkg/storage/sqlstore"
	"github.com/paysync/paysync/pkg/streams"
	"github.com/paysync/paysync/pkg/telemetry/metrics"
	"golang.org/x/sync/errgroup"
)

type ConsumerOpts struct {
	Stream string
	Group  string
	// Consumer names this consumer within the group.  It defaults to a new
	// ulid.
	Consumer    string
	ReadCount   int64
	Block       time.Duration
	Workers     int
	Interval    time.Duration
	TickTimeout time.Duration
	Clock       clockwork.Clock
}

// Delivery is a batch read from the stream and not yet acknowledged.
type Delivery struct {
	EntryID string
	Batch   Batch
}

// Consumer reads batches from the scheduler stream and executes the
// workflow of each tracker.
type Consumer struct {
	sched     *Scheduler
	stream    Stream
	workflows Workflows
	o         ConsumerOpts
}

func NewConsumer(sched *Scheduler, stream Stream, workflows Workflows, o ConsumerOpts) *Consumer {
	if o.Stream == "" {
		o.Stream = consts.DefaultSchedulerStream
	}
	if o.Group == "" {
		o.Group = consts.DefaultSchedulerGroup
	}
	if o.Consumer == "" {
		o.Consumer = "consumer-" + ulid.Make().String()
	}
	if o.ReadCount <= 0 {
		o.ReadCount = consts.DefaultConsumerReadCount
	}
	if o.Workers <= 0 {
		o.Workers = consts.DefaultConsumerWorkers
	}
	if o.Interval <= 0 {
		o.Interval = consts.DefaultConsumerInterval
	}
	if o.TickTimeout <= 0 {
		o.TickTimeout = consts.DefaultTickTimeout
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if workflows == nil {
		workflows = Workflows{}
	}
	return &Consumer{sched: sched, stream: stream, workflows: workflows, o: o}
}

func (c *Consumer) Name() string {
	return c.o.Consumer
}

// EnsureGroup creates the consumer group if it does not exist.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	return c.stream.EnsureGroup(ctx, c.o.Stream, c.o.Group)
}

// ReadBatches reads up to ReadCount new batches.  An empty stream returns no
// deliveries and no error.  Entries which do not hold a batch are
// acknowledged and deleted immediately.
func (c *Consumer) ReadBatches(ctx context.Context) ([]Delivery, error) {
	entries, err := c.stream.ReadGroup(ctx, streams.ReadOpts{
		Stream:   c.o.Stream,
		Group:    c.o.Group,
		Consumer: c.o.Consumer,
		Count:    c.o.ReadCount,
		Block:    c.o.Block,
	})
	if errors.Is(err, streams.ErrStreamEmpty) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c.decode(ctx, entries)
}

func (c *Consumer) decode(ctx context.Context, entries []streams.Entry) ([]Delivery, error) {
	l := logger.StdlibLogger(ctx).With("stream", c.o.Stream, "group", c.o.Group)

	var (
		out     = make([]Delivery, 0, len(entries))
		discard []string
	)
	for _, e := range entries {
		b, err := DecodeBatch(e.Fields)
		if err != nil {
			if !errors.Is(err, ErrBatchNotFound) {
				l.Error("discarding undecodable batch", "id", e.ID, "error", err)
			}
			discard = append(discard, e.ID)
			continue
		}
		out = append(out, Delivery{EntryID: e.ID, Batch: b})
	}

	if err := c.stream.AckAndDelete(ctx, c.o.Stream, c.o.Group, discard...); err != nil {
		return out, err
	}
	return out, nil
}

// ProcessBatch executes every tracker of a delivery, then acknowledges and
// deletes its entry.  If a tracker cannot be updated the entry stays pending
// for the cleaner.
func (c *Consumer) ProcessBatch(ctx context.Context, d Delivery) error {
	l := logger.StdlibLogger(ctx).With("batch_id", d.Batch.ID, "consumer", c.o.Consumer)
	store := c.sched.Store()

	if _, err := store.UpdateProcessStatusByIDs(ctx, d.Batch.IDs(), enums.ProcessTrackerStatusProcessing, enums.ProcessTrackerStatusProcessStarted); err != nil {
		return fmt.Errorf("%w: starting batch %s: %w", ErrProcessUpdateFailed, d.Batch.ID, err)
	}

	eg := errgroup.Group{}
	eg.SetLimit(c.o.Workers)
	for _, t := range d.Batch.Trackers {
		eg.Go(func() error {
			return c.runTracker(ctx, t.ID)
		})
	}
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("error processing batch %s: %w", d.Batch.ID, err)
	}

	if err := c.stream.AckAndDelete(ctx, c.o.Stream, c.o.Group, d.EntryID); err != nil {
		return err
	}
	metrics.IncrSchedulerBatchesConsumedCounter(ctx, metrics.CounterOpt{PkgName: pkgName})
	l.Debug("processed batch", "trackers", len(d.Batch.Trackers))
	return nil
}

// runTracker executes the workflow of a tracker.  The tracker is reloaded
// first: one which finished or was rescheduled by an earlier delivery is
// skipped.
func (c *Consumer) runTracker(ctx context.Context, id string) error {
	l := logger.StdlibLogger(ctx).With("tracker_id", id)

	p, err := c.sched.Store().FindProcessByID(ctx, id)
	if errors.Is(err, sqlstore.ErrNotFound) {
		l.Warn("tracker no longer exists")
		return nil
	}
	if err != nil {
		return fmt.Errorf("error loading tracker %s: %w", id, err)
	}

	switch p.Status {
	case enums.ProcessTrackerStatusProcessing, enums.ProcessTrackerStatusProcessStarted:
	default:
		l.Debug("skipping tracker", "status", p.Status.String())
		return nil
	}

	wf, ok := c.workflows[p.Runner]
	if !ok {
		l.Error("no workflow registered for runner", "runner", p.Runner)
		_, err := c.sched.FinishProcess(ctx, p, consts.BusinessStatusUnknownRunner)
		return err
	}

	err = wf.Execute(ctx, c.sched, p)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		// Abandoned tick; the cleaner redelivers the batch.
		return err
	}
	if errors.Is(err, ErrProcessUpdateFailed) {
		return err
	}

	l.Error("workflow failed", "runner", p.Runner, "error", err)
	_, err = c.sched.FinishProcess(ctx, p, BusinessStatusGlobalError)
	return err
}

// Tick reads and processes one round of batches within the tick timeout.  It
// returns the number of batches processed.
func (c *Consumer) Tick(ctx context.Context) (int, error) {
	start := c.o.Clock.Now()
	ctx, cancel := context.WithTimeout(ctx, c.o.TickTimeout)
	defer cancel()

	deliveries, err := c.ReadBatches(ctx)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, d := range deliveries {
		if err := c.ProcessBatch(ctx, d); err != nil {
			return processed, err
		}
		processed++
	}

	if processed > 0 {
		metrics.HistogramSchedulerTickDuration(ctx, c.o.Clock.Since(start).Milliseconds(), metrics.HistogramOpt{
			PkgName: pkgName,
			Tags:    map[string]any{"role": "consumer"},
		})
	}
	return processed, nil
}

// Run ticks until ctx is cancelled.  When nothing was read it waits for the
// interval before polling again.
func (c *Consumer) Run(ctx context.Context) error {
	l := logger.StdlibLogger(ctx).With("stream", c.o.Stream, "group", c.o.Group, "consumer", c.o.Consumer)
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}
	l.Info("starting consumer", "workers", c.o.Workers)

	for {
		n, err := c.Tick(ctx)
		if err != nil && ctx.Err() == nil {
			l.Error("consumer tick failed", "error", err)
		}

		if n == 0 {
			select {
			case <-ctx.Done():
			case <-c.o.Clock.After(c.o.Interval):
			}
		}
		if ctx.Err() != nil {
			l.Info("stopping consumer")
			return nil
		}
	}
}
