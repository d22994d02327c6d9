package drainer

import (
	"context"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jonboulle/clockwork"
	"github.com/paysync/paysync/pkg/consts"
	"github.com/paysync/paysync/pkg/logger"
	"github.com/paysync/paysync/pkg/telemetry/metrics"
	"github.com/sony/gobreaker/v2"
)

const pkgName = "drainer"

// ErrEnqueueFailed is returned when an operation could not be appended to its
// drainer stream.  The write that produced it is incomplete.
var ErrEnqueueFailed = fmt.Errorf("drainer enqueue failed")

// Appender appends entries to a stream.
type Appender interface {
	Append(ctx context.Context, stream string, fields map[string]string) (string, error)
}

// StreamName returns the drainer stream of partition n.
func StreamName(prefix string, n int) string {
	return fmt.Sprintf("%s:drainer:%d", prefix, n)
}

// DeadLetterStream holds operations which can never be applied, kept for
// inspection.
func DeadLetterStream(prefix string) string {
	return prefix + ":drainer:dead"
}

// PartitionFor maps a routing key onto one of partitions streams.  All
// operations sharing a routing key land on the same stream, in order.
func PartitionFor(routingKey string, partitions int) int {
	if partitions <= 1 {
		return 0
	}
	return int(xxhash.Sum64String(routingKey) % uint64(partitions))
}

type EnqueuerOpt func(e *Enqueuer)

func WithPartitions(n int) EnqueuerOpt {
	return func(e *Enqueuer) {
		if n > 0 {
			e.partitions = n
		}
	}
}

func WithEnqueueTimeout(d time.Duration) EnqueuerOpt {
	return func(e *Enqueuer) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func WithClock(c clockwork.Clock) EnqueuerOpt {
	return func(e *Enqueuer) {
		e.clock = c
	}
}

// WithBreakerSettings overrides the circuit breaker guarding appends.
func WithBreakerSettings(s gobreaker.Settings) EnqueuerOpt {
	return func(e *Enqueuer) {
		e.cb = gobreaker.NewCircuitBreaker[string](s)
	}
}

// Enqueuer appends operations to partitioned drainer streams.
type Enqueuer struct {
	app        Appender
	prefix     string
	partitions int
	timeout    time.Duration
	clock      clockwork.Clock
	cb         *gobreaker.CircuitBreaker[string]
}

func NewEnqueuer(app Appender, prefix string, opts ...EnqueuerOpt) *Enqueuer {
	e := &Enqueuer{
		app:        app,
		prefix:     prefix,
		partitions: consts.DefaultDrainerPartitions,
		timeout:    consts.DefaultDrainerEnqueueLimit,
		clock:      clockwork.NewRealClock(),
	}
	for _, apply := range opts {
		apply(e)
	}
	if e.cb == nil {
		e.cb = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
			Name:        "drainer-enqueue",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     5 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		})
	}
	return e
}

func (e *Enqueuer) Partitions() int {
	return e.partitions
}

// Enqueue appends op to the partition chosen by routingKey.  It waits at most
// the configured timeout, and fails fast while the breaker is open.
func (e *Enqueuer) Enqueue(ctx context.Context, op Operation, routingKey string) error {
	if op.PartitionKey == "" {
		op.PartitionKey = routingKey
	}
	if op.EnqueuedAt.IsZero() {
		op.EnqueuedAt = e.clock.Now().UTC()
	}

	fields, err := op.Fields()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEnqueueFailed, err)
	}

	n := PartitionFor(routingKey, e.partitions)
	stream := StreamName(e.prefix, n)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	id, err := e.cb.Execute(func() (string, error) {
		return e.app.Append(ctx, stream, fields)
	})
	if err != nil {
		logger.StdlibLogger(ctx).Error("drainer enqueue failed",
			"stream", stream,
			"table", op.Table,
			"kind", op.Kind.String(),
			"partition_key", op.PartitionKey,
			"error", err,
		)
		return fmt.Errorf("%w: %s on %s: %w", ErrEnqueueFailed, op.Kind, op.Table, err)
	}

	metrics.IncrDrainerEnqueueCounter(ctx, metrics.CounterOpt{
		PkgName: pkgName,
		Tags:    map[string]any{"table": op.Table, "kind": op.Kind.String()},
	})
	logger.StdlibLogger(ctx).Trace("drainer operation enqueued", "stream", stream, "id", id, "table", op.Table)
	return nil
}
