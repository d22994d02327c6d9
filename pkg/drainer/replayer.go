package drainer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid/v2"
	"github.com/paysync/paysync/pkg/consts"
	"github.com/paysync/paysync/pkg/enums"
	"github.com/paysync/paysync/pkg/logger"
	"github.com/paysync/paysync/pkg/streams"
	"github.com/paysync/paysync/pkg/telemetry/metrics"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrStaleUpdate is returned by a Sink when an update's original snapshot
	// is no longer current.  A later update was applied first, or this one
	// already was, so the operation is dropped.
	ErrStaleUpdate = fmt.Errorf("stale update")
	// ErrUnappliable is returned by a Sink for an operation which will never
	// succeed, such as an unknown table or a payload which does not decode.
	// The operation is moved to the dead letter stream.
	ErrUnappliable = fmt.Errorf("operation cannot be applied")
)

// Sink applies drainer operations to the relational store.  Both methods must
// be idempotent: an operation may be applied more than once.
type Sink interface {
	ApplyInsert(ctx context.Context, table string, payload json.RawMessage) error
	ApplyUpdate(ctx context.Context, table string, original, changeset json.RawMessage) error
}

type ReplayerOpts struct {
	Prefix     string
	Partitions int
	Group      string
	// Consumer names this replayer within the group.  A unique name is
	// generated when empty.
	Consumer  string
	ReadCount int64
	Block     time.Duration
	// MinIdle is how long another replayer's pending operations wait before
	// they are taken over.
	MinIdle time.Duration
	Clock   clockwork.Clock
}

// Replayer tails drainer streams and applies each operation to a Sink in
// stream order.  An operation that fails stays pending and blocks the rest of
// its partition until it succeeds, unless it can never succeed: those are
// dead lettered.
type Replayer struct {
	s    *streams.Client
	sink Sink
	o    ReplayerOpts
}

func NewReplayer(s *streams.Client, sink Sink, o ReplayerOpts) *Replayer {
	if o.Partitions <= 0 {
		o.Partitions = consts.DefaultDrainerPartitions
	}
	if o.Group == "" {
		o.Group = consts.DefaultDrainerGroup
	}
	if o.Consumer == "" {
		o.Consumer = "drainer-" + ulid.Make().String()
	}
	if o.ReadCount <= 0 {
		o.ReadCount = consts.DefaultDrainerReadCount
	}
	if o.MinIdle <= 0 {
		o.MinIdle = consts.DefaultCleanerMinIdle
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	return &Replayer{s: s, sink: sink, o: o}
}

// EnsureGroups creates the consumer group on every partition.
func (r *Replayer) EnsureGroups(ctx context.Context) error {
	for n := 0; n < r.o.Partitions; n++ {
		if err := r.s.EnsureGroup(ctx, StreamName(r.o.Prefix, n), r.o.Group); err != nil {
			return err
		}
	}
	return nil
}

// Run drains every partition until ctx is cancelled.
func (r *Replayer) Run(ctx context.Context) error {
	if err := r.EnsureGroups(ctx); err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)
	for n := 0; n < r.o.Partitions; n++ {
		eg.Go(func() error {
			r.runPartition(ctx, n)
			return nil
		})
	}
	return eg.Wait()
}

func (r *Replayer) runPartition(ctx context.Context, n int) {
	l := logger.StdlibLogger(ctx).With("stream", StreamName(r.o.Prefix, n), "consumer", r.o.Consumer)
	for ctx.Err() == nil {
		applied, err := r.DrainPartition(ctx, n)
		if err != nil && ctx.Err() == nil {
			l.Error("error draining partition", "error", err)
			select {
			case <-ctx.Done():
			case <-r.o.Clock.After(time.Second):
			}
			continue
		}
		if applied == 0 && r.o.Block == 0 {
			select {
			case <-ctx.Done():
			case <-r.o.Clock.After(100 * time.Millisecond):
			}
		}
	}
}

// DrainPartition applies one round of operations from partition n: pending
// operations idle on other replayers are taken over, then this replayer's own
// pending operations are retried, then new operations are read.  It returns
// the number of operations acknowledged.
func (r *Replayer) DrainPartition(ctx context.Context, n int) (int, error) {
	stream := StreamName(r.o.Prefix, n)

	if _, _, err := r.s.Claim(ctx, streams.ClaimOpts{
		Stream:   stream,
		Group:    r.o.Group,
		Consumer: r.o.Consumer,
		MinIdle:  r.o.MinIdle,
		Count:    r.o.ReadCount,
	}); err != nil {
		return 0, err
	}

	pending, err := r.s.ReadGroup(ctx, streams.ReadOpts{
		Stream:   stream,
		Group:    r.o.Group,
		Consumer: r.o.Consumer,
		Count:    r.o.ReadCount,
		ID:       streams.OwnPending,
	})
	switch {
	case err == nil:
		return r.apply(ctx, stream, pending)
	case !errors.Is(err, streams.ErrStreamEmpty):
		return 0, err
	}

	entries, err := r.s.ReadGroup(ctx, streams.ReadOpts{
		Stream:   stream,
		Group:    r.o.Group,
		Consumer: r.o.Consumer,
		Count:    r.o.ReadCount,
		Block:    r.o.Block,
	})
	if errors.Is(err, streams.ErrStreamEmpty) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return r.apply(ctx, stream, entries)
}

// apply applies entries in order, stopping at the first failure.  Everything
// before the failure is acknowledged and deleted.
func (r *Replayer) apply(ctx context.Context, stream string, entries []streams.Entry) (int, error) {
	l := logger.StdlibLogger(ctx).With("stream", stream)

	done := make([]string, 0, len(entries))
	var applyErr error
	for _, e := range entries {
		if e.Fields == nil {
			// Deleted while pending.
			done = append(done, e.ID)
			continue
		}

		op, err := DecodeOperation(e.Fields)
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrUnappliable, err)
		} else {
			err = r.applyOne(ctx, op)
		}

		if errors.Is(err, ErrStaleUpdate) {
			l.Warn("skipping stale drainer update", "id", e.ID, "table", op.Table, "partition_key", op.PartitionKey)
			done = append(done, e.ID)
			continue
		}
		if errors.Is(err, ErrUnappliable) {
			if dlErr := r.deadLetter(ctx, stream, e, err); dlErr != nil {
				applyErr = dlErr
				break
			}
			l.Error("dead lettered drainer operation", "id", e.ID, "table", e.Fields[fieldTable], "error", err)
			done = append(done, e.ID)
			continue
		}
		if err != nil {
			applyErr = fmt.Errorf("error applying %s on %s (%s): %w", op.Kind, op.Table, e.ID, err)
			break
		}

		metrics.IncrDrainerAppliedCounter(ctx, metrics.CounterOpt{
			PkgName: pkgName,
			Tags:    map[string]any{"table": op.Table, "kind": op.Kind.String()},
		})
		done = append(done, e.ID)
	}

	if err := r.s.AckAndDelete(ctx, stream, r.o.Group, done...); err != nil {
		if applyErr != nil {
			return 0, multierror.Append(applyErr, err)
		}
		return 0, err
	}
	return len(done), applyErr
}

func (r *Replayer) applyOne(ctx context.Context, op Operation) error {
	switch op.Kind {
	case enums.OperationKindInsert:
		return r.sink.ApplyInsert(ctx, op.Table, op.Payload)
	case enums.OperationKindUpdate:
		return r.sink.ApplyUpdate(ctx, op.Table, op.Original, op.Changeset)
	default:
		return fmt.Errorf("%w: unknown operation kind %d", ErrUnappliable, op.Kind)
	}
}

// deadLetter copies an entry to the dead letter stream along with where it
// came from and why it failed.
func (r *Replayer) deadLetter(ctx context.Context, stream string, e streams.Entry, cause error) error {
	fields := make(map[string]string, len(e.Fields)+3)
	for k, v := range e.Fields {
		fields[k] = v
	}
	fields["source_stream"] = stream
	fields["source_id"] = e.ID
	fields["error"] = cause.Error()

	if _, err := r.s.Append(ctx, DeadLetterStream(r.o.Prefix), fields); err != nil {
		return fmt.Errorf("error dead lettering %s: %w", e.ID, err)
	}
	metrics.IncrDrainerDeadLetterCounter(ctx, metrics.CounterOpt{
		PkgName: pkgName,
		Tags:    map[string]any{"table": e.Fields[fieldTable]},
	})
	return nil
}
