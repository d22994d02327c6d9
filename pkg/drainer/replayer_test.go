package drainer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/paysync/paysync/pkg/streams"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu      sync.Mutex
	applied []string
	fail    map[string]error
}

func (f *fakeSink) record(kind string, raw json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var r row
	_ = json.Unmarshal(raw, &r)
	if err, ok := f.fail[r.ID]; ok {
		return err
	}
	f.applied = append(f.applied, kind+":"+r.ID)
	return nil
}

func (f *fakeSink) ApplyInsert(ctx context.Context, table string, payload json.RawMessage) error {
	return f.record("insert", payload)
}

func (f *fakeSink) ApplyUpdate(ctx context.Context, table string, original, changeset json.RawMessage) error {
	return f.record("update", original)
}

func newReplayer(t *testing.T, sink Sink) (*streams.Client, *Enqueuer, *Replayer) {
	t.Helper()
	r := miniredis.RunT(t)
	rc, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:       []string{r.Addr()},
		DisableCache:      true,
		ForceSingleClient: true,
	})
	require.NoError(t, err)
	t.Cleanup(rc.Close)

	s := streams.New(rc)
	e := NewEnqueuer(s, "test", WithPartitions(1))
	rp := NewReplayer(s, sink, ReplayerOpts{Prefix: "test", Partitions: 1, Consumer: "d1"})
	require.NoError(t, rp.EnsureGroups(context.Background()))
	return s, e, rp
}

func enqueue(t *testing.T, e *Enqueuer, ops ...Operation) {
	t.Helper()
	for _, op := range ops {
		require.NoError(t, e.Enqueue(context.Background(), op, "m1_pay_1"))
	}
}

func mustInsert(t *testing.T, id string) Operation {
	op, err := NewInsert("captures", "m1_pay_1", row{ID: id})
	require.NoError(t, err)
	return op
}

func mustUpdate(t *testing.T, id string) Operation {
	op, err := NewUpdate("captures", "m1_pay_1", row{ID: id}, map[string]string{"status": "charged"})
	require.NoError(t, err)
	return op
}

func TestReplayerAppliesInOrder(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{}
	s, e, rp := newReplayer(t, sink)

	enqueue(t, e, mustInsert(t, "c1"), mustUpdate(t, "c1"), mustInsert(t, "c2"))

	n, err := rp.DrainPartition(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []string{"insert:c1", "update:c1", "insert:c2"}, sink.applied)

	// Applied operations are acknowledged and deleted.
	l, err := s.Len(ctx, StreamName("test", 0))
	require.NoError(t, err)
	require.EqualValues(t, 0, l)

	n, err = rp.DrainPartition(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestReplayerStopsAtFailure(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("db down")
	sink := &fakeSink{fail: map[string]error{"c2": cause}}
	s, e, rp := newReplayer(t, sink)

	enqueue(t, e, mustInsert(t, "c1"), mustInsert(t, "c2"), mustInsert(t, "c3"))

	n, err := rp.DrainPartition(ctx, 0)
	require.ErrorIs(t, err, cause)
	require.Equal(t, 1, n)
	require.Equal(t, []string{"insert:c1"}, sink.applied)

	pending, err := s.Pending(ctx, StreamName("test", 0), "DRAINER_GROUP")
	require.NoError(t, err)
	require.EqualValues(t, 2, pending)

	// Once the sink recovers the pending operations are retried first, in
	// their original order.
	delete(sink.fail, "c2")
	enqueue(t, e, mustInsert(t, "c4"))

	n, err = rp.DrainPartition(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = rp.DrainPartition(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.Equal(t, []string{"insert:c1", "insert:c2", "insert:c3", "insert:c4"}, sink.applied)
}

func TestReplayerDeadLettersUnappliableOperations(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{fail: map[string]error{
		"c1": fmt.Errorf("%w: unknown table for insert: captures", ErrUnappliable),
	}}
	s, e, rp := newReplayer(t, sink)

	enqueue(t, e, mustInsert(t, "c1"), mustInsert(t, "c2"))
	_, err := s.Append(ctx, StreamName("test", 0), map[string]string{"kind": "Insert"})
	require.NoError(t, err)
	enqueue(t, e, mustInsert(t, "c3"))

	n, err := rp.DrainPartition(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, []string{"insert:c2", "insert:c3"}, sink.applied)

	pending, err := s.Pending(ctx, StreamName("test", 0), "DRAINER_GROUP")
	require.NoError(t, err)
	require.EqualValues(t, 0, pending)

	// Both the failing and the undecodable operation are kept for inspection.
	dead, err := s.Len(ctx, DeadLetterStream("test"))
	require.NoError(t, err)
	require.EqualValues(t, 2, dead)
}

func TestReplayerRunWaitsOnClock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &fakeSink{}
	clock := clockwork.NewFakeClock()
	_, e, rp := newReplayer(t, sink)
	rp.o.Clock = clock

	done := make(chan error)
	go func() { done <- rp.Run(ctx) }()

	// An empty partition waits on the clock before polling again.
	clock.BlockUntil(1)
	enqueue(t, e, mustInsert(t, "c1"))
	clock.Advance(time.Second)

	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.applied) == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestReplayerAcknowledgesStaleUpdates(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{fail: map[string]error{"c1": ErrStaleUpdate}}
	s, e, rp := newReplayer(t, sink)

	enqueue(t, e, mustUpdate(t, "c1"), mustInsert(t, "c2"))

	n, err := rp.DrainPartition(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []string{"insert:c2"}, sink.applied)

	pending, err := s.Pending(ctx, StreamName("test", 0), "DRAINER_GROUP")
	require.NoError(t, err)
	require.EqualValues(t, 0, pending)
}
