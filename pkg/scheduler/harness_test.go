package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/paysync/paysync/pkg/config"
	"github.com/paysync/paysync/pkg/domain"
	"github.com/paysync/paysync/pkg/enums"
	"github.com/paysync/paysync/pkg/lock"
	"github.com/paysync/paysync/pkg/storage/sqlstore"
	"github.com/paysync/paysync/pkg/streams"
	"github.com/paysync/paysync/pkg/util"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/require"
)

const (
	testStream = "SCHEDULER_STREAM"
	testGroup  = "SCHEDULER_GROUP"
	lockKey    = "test:lock:producer:PRODUCER_LOCKING_KEY"
)

type harness struct {
	r       *miniredis.Miniredis
	rc      rueidis.Client
	clock   clockwork.FakeClock
	db      *sqlstore.Store
	streams *streams.Client
	sched   *Scheduler
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	r := miniredis.RunT(t)
	rc, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:       []string{r.Addr()},
		DisableCache:      true,
		ForceSingleClient: true,
	})
	require.NoError(t, err)
	t.Cleanup(rc.Close)

	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	db, err := sqlstore.Open(context.Background(), sqlstore.Options{InMemory: true, Clock: clock})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	resolver := NewRetryResolver(config.Retry{
		Default: config.RetryMapping{StartAfter: 60, Frequencies: defaultFrequencies},
	})

	return &harness{
		r:       r,
		rc:      rc,
		clock:   clock,
		db:      db,
		streams: streams.New(rc),
		sched:   New(db, resolver, clock),
	}
}

func (h *harness) producer(store ProcessStore, stream Stream) *Producer {
	if store == nil {
		store = h.db
	}
	if stream == nil {
		stream = h.streams
	}
	return NewProducer(store, stream, lock.NewRedisLocker(h.rc, "test"), ProducerOpts{
		Stream:      testStream,
		Group:       testGroup,
		BatchSize:   2,
		LockTTL:     time.Minute,
		TickTimeout: 5 * time.Second,
		Clock:       h.clock,
		Rollback:    util.NewRetryConf(util.WithMaxAttempts(2), util.WithInitialBackoff(time.Millisecond)),
	})
}

func (h *harness) consumer(t *testing.T, name string, workflows Workflows) *Consumer {
	t.Helper()
	c := NewConsumer(h.sched, h.streams, workflows, ConsumerOpts{
		Stream:      testStream,
		Group:       testGroup,
		Consumer:    name,
		ReadCount:   10,
		Workers:     2,
		TickTimeout: 5 * time.Second,
		Clock:       h.clock,
	})
	require.NoError(t, c.EnsureGroup(context.Background()))
	return c
}

// addDue schedules n trackers and moves the clock past their start delay.
func (h *harness) addDue(t *testing.T, runner string, n int) []domain.ProcessTracker {
	t.Helper()
	out := make([]domain.ProcessTracker, 0, n)
	for range n {
		p, err := h.sched.AddTask(context.Background(), NewTask{
			Name:         "PAYMENT_SYNC",
			Runner:       runner,
			TrackingData: domain.TrackingRef{MerchantID: "m1", PaymentID: "pay_1", PaymentMethod: "card"},
		})
		require.NoError(t, err)
		out = append(out, p)
		// Distinct schedule times keep the fetch order deterministic.
		h.clock.Advance(time.Millisecond)
	}
	h.clock.Advance(2 * time.Minute)
	return out
}

// start moves New trackers to ProcessStarted, as a consumer would before
// running their workflow.
func (h *harness) start(t *testing.T, tasks ...domain.ProcessTracker) []domain.ProcessTracker {
	t.Helper()
	ids := make([]string, len(tasks))
	for i, p := range tasks {
		ids[i] = p.ID
	}
	n, err := h.db.UpdateProcessStatusByIDs(context.Background(), ids, enums.ProcessTrackerStatusNew, enums.ProcessTrackerStatusProcessStarted)
	require.NoError(t, err)
	require.EqualValues(t, len(tasks), n)

	out := make([]domain.ProcessTracker, len(tasks))
	for i, p := range tasks {
		out[i] = h.status(t, p.ID)
	}
	return out
}

func (h *harness) status(t *testing.T, id string) domain.ProcessTracker {
	t.Helper()
	p, err := h.db.FindProcessByID(context.Background(), id)
	require.NoError(t, err)
	return p
}
