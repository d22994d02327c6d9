package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid/v2"
	"github.com/paysync/paysync/pkg/consts"
	"github.com/paysync/paysync/pkg/domain"
	"github.com/paysync/paysync/pkg/enums"
	"github.com/paysync/paysync/pkg/lock"
	"github.com/paysync/paysync/pkg/logger"
	"github.com/paysync/paysync/pkg/telemetry/metrics"
	"github.com/paysync/paysync/pkg/util"
)

const producerLockTag = "producer"

// TickState is how far a producer tick progressed.
type TickState int

const (
	TickIdle TickState = iota
	TickLockAcquired
	TickTasksFetched
	TickStatusUpdated
	TickStreamAppended
)

var tickStateNames = [...]string{"idle", "lock_acquired", "tasks_fetched", "status_updated", "stream_appended"}

func (s TickState) String() string {
	if s < 0 || int(s) >= len(tickStateNames) {
		return fmt.Sprintf("TickState(%d)", int(s))
	}
	return tickStateNames[s]
}

// TickResult reports a single producer tick.  The lock, when acquired, has
// been released by the time it is returned.
type TickResult struct {
	State   TickState
	Tasks   int
	Batches int
}

type ProducerOpts struct {
	Stream    string
	Group     string
	BatchSize int
	LockKey   string
	// LockValue identifies this producer as the lock holder.  It defaults to
	// a new ulid.
	LockValue   string
	LockTTL     time.Duration
	Interval    time.Duration
	TickTimeout time.Duration
	// Lookahead also picks up trackers due within this duration.
	Lookahead  time.Duration
	FetchLimit int
	Clock      clockwork.Clock
	// Rollback configures retries of the compensating status revert.
	Rollback util.RetryConf
}

// Producer hands due trackers to consumers.  Only one producer in the fleet
// ticks at a time.
type Producer struct {
	store  ProcessStore
	stream Stream
	locker lock.Locker
	o      ProducerOpts
}

func NewProducer(store ProcessStore, stream Stream, locker lock.Locker, o ProducerOpts) *Producer {
	if o.Stream == "" {
		o.Stream = consts.DefaultSchedulerStream
	}
	if o.Group == "" {
		o.Group = consts.DefaultSchedulerGroup
	}
	if o.BatchSize <= 0 {
		o.BatchSize = consts.DefaultBatchSize
	}
	if o.LockKey == "" {
		o.LockKey = consts.DefaultProducerLockKey
	}
	if o.LockValue == "" {
		o.LockValue = ulid.Make().String()
	}
	if o.LockTTL <= 0 {
		o.LockTTL = consts.DefaultProducerLockTTL
	}
	if o.Interval <= 0 {
		o.Interval = consts.DefaultProducerInterval
	}
	if o.TickTimeout <= 0 {
		o.TickTimeout = consts.DefaultTickTimeout
	}
	if o.FetchLimit <= 0 {
		o.FetchLimit = consts.DefaultProducerFetchLimit
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Rollback.MaxAttempts == 0 {
		o.Rollback = util.NewRetryConf()
	}
	return &Producer{store: store, stream: stream, locker: locker, o: o}
}

// Run ticks every interval until ctx is cancelled.
func (p *Producer) Run(ctx context.Context) error {
	l := logger.StdlibLogger(ctx).With("stream", p.o.Stream, "lock_key", p.o.LockKey)
	l.Info("starting producer", "interval", p.o.Interval, "batch_size", p.o.BatchSize)

	for {
		res, err := p.Tick(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			l.Error("producer tick failed", "state", res.State.String(), "error", err)
		case res.Tasks > 0:
			l.Info("producer tick", "state", res.State.String(), "tasks", res.Tasks, "batches", res.Batches)
		}

		select {
		case <-ctx.Done():
			l.Info("stopping producer")
			return nil
		case <-p.o.Clock.After(p.o.Interval):
		}
	}
}

// Tick runs one Idle -> LockAcquired -> TasksFetched -> StatusUpdated ->
// StreamAppended pass under the producer lock.  Losing the lock to another
// producer is not an error.
func (p *Producer) Tick(ctx context.Context) (res TickResult, err error) {
	start := p.o.Clock.Now()
	defer func() {
		metrics.HistogramSchedulerTickDuration(ctx, p.o.Clock.Since(start).Milliseconds(), metrics.HistogramOpt{
			PkgName: pkgName,
			Tags:    map[string]any{"role": "producer", "state": res.State.String()},
		})
	}()

	ctx, cancel := context.WithTimeout(ctx, p.o.TickTimeout)
	defer cancel()
	l := logger.StdlibLogger(ctx).With("lock_key", p.o.LockKey)

	ok, err := p.locker.Acquire(ctx, producerLockTag, p.o.LockKey, p.o.LockValue, p.o.LockTTL)
	if err != nil {
		return res, fmt.Errorf("error acquiring producer lock: %w", err)
	}
	if !ok {
		metrics.IncrSchedulerLockContentionCounter(ctx, metrics.CounterOpt{PkgName: pkgName})
		l.Trace("producer lock held elsewhere")
		return res, nil
	}
	res.State = TickLockAcquired

	defer func() {
		// The tick's context may be done; release regardless.
		rerr := util.Crit(ctx, "release producer lock", func(ctx context.Context) error {
			_, err := p.locker.ReleaseOwned(ctx, producerLockTag, p.o.LockKey, p.o.LockValue)
			return err
		}, util.WithMaxDuration(consts.LockReleaseTimeout))
		if rerr != nil {
			l.Warn("error releasing producer lock", "error", rerr)
		}
	}()

	now := domain.Now(p.o.Clock)
	due, err := p.store.FindDueProcesses(ctx, now.Add(p.o.Lookahead), enums.ProcessTrackerStatusNew, uint(p.o.FetchLimit))
	if err != nil {
		return res, fmt.Errorf("error fetching due processes: %w", err)
	}
	res.State = TickTasksFetched
	res.Tasks = len(due)
	if len(due) == 0 {
		return res, nil
	}

	batches, err := DivideIntoBatches(due, p.o.BatchSize, p.o.Stream, p.o.Group, now)
	if err != nil {
		return res, err
	}

	ids := make([]string, len(due))
	for i, t := range due {
		ids[i] = t.ID
	}
	moved, err := p.store.UpdateProcessStatusByIDs(ctx, ids, enums.ProcessTrackerStatusNew, enums.ProcessTrackerStatusProcessing)
	if err != nil {
		return res, fmt.Errorf("%w: marking %d processes as processing: %w", ErrProcessUpdateFailed, len(ids), err)
	}
	if int(moved) != len(ids) {
		l.Warn("processes changed status while producing", "expected", len(ids), "updated", moved)
	}
	res.State = TickStatusUpdated

	if err := p.appendBatches(ctx, batches); err != nil {
		return res, err
	}
	res.State = TickStreamAppended
	res.Batches = len(batches)

	metrics.IncrSchedulerTasksProducedCounter(ctx, int64(len(due)), metrics.CounterOpt{PkgName: pkgName})
	return res, nil
}

// appendBatches appends batches in order.  If an append fails, the trackers
// of that batch and every later one are rolled back to New; batches already
// appended are left for consumers.  A failed rollback is aggregated with the
// append error.
func (p *Producer) appendBatches(ctx context.Context, batches []Batch) error {
	for i, b := range batches {
		fields, err := b.Fields()
		if err == nil {
			_, err = p.stream.Append(ctx, p.o.Stream, fields)
			if err != nil {
				err = fmt.Errorf("%w: %w", ErrStreamAppendFailed, err)
			}
		}
		if err == nil {
			continue
		}

		appendErr := fmt.Errorf("%w: batch %s: %w", ErrBatchInsertionFailed, b.ID, err)
		if rerr := p.rollback(ctx, batches[i:]); rerr != nil {
			return multierror.Append(appendErr, rerr)
		}
		return appendErr
	}
	return nil
}

// rollback returns the trackers of batches from Processing to New so a later
// tick picks them up again.
func (p *Producer) rollback(ctx context.Context, batches []Batch) error {
	var ids []string
	for _, b := range batches {
		ids = append(ids, b.IDs()...)
	}

	l := logger.StdlibLogger(ctx)
	return util.Crit(ctx, "rollback processing status", func(ctx context.Context) error {
		n, err := util.WithRetry(ctx, "rollback processing status", func(ctx context.Context) (int64, error) {
			return p.store.UpdateProcessStatusByIDs(ctx, ids, enums.ProcessTrackerStatusProcessing, enums.ProcessTrackerStatusNew)
		}, p.o.Rollback)
		if err != nil {
			l.Emergency("processes stuck in processing after failed stream append", "ids", ids, "error", err)
			return fmt.Errorf("%w: reverting %d processes to new: %w", ErrProcessUpdateFailed, len(ids), err)
		}
		l.Warn("rolled back processes after failed stream append", "count", n)
		return nil
	}, util.WithMaxDuration(p.o.TickTimeout))
}
