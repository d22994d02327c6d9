package workflows

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/paysync/paysync/pkg/config"
	"github.com/paysync/paysync/pkg/domain"
	"github.com/paysync/paysync/pkg/enums"
	"github.com/paysync/paysync/pkg/scheduler"
	"github.com/paysync/paysync/pkg/storage"
	"github.com/paysync/paysync/pkg/storage/sqlstore"
	"github.com/stretchr/testify/require"
)

type attempts map[string]domain.PaymentAttempt

func (a attempts) FindPaymentAttemptByID(ctx context.Context, merchantID, attemptID string) (domain.PaymentAttempt, error) {
	p, ok := a[merchantID+"/"+attemptID]
	if !ok {
		return domain.PaymentAttempt{}, storage.ErrNotFound
	}
	return p, nil
}

type flaky struct{}

func (flaky) FindPaymentAttemptByID(ctx context.Context, merchantID, attemptID string) (domain.PaymentAttempt, error) {
	return domain.PaymentAttempt{}, fmt.Errorf("i/o timeout")
}

func setup(t *testing.T) (*scheduler.Scheduler, *sqlstore.Store, clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	db, err := sqlstore.Open(context.Background(), sqlstore.Options{InMemory: true, Clock: clock})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	resolver := scheduler.NewRetryResolver(config.Default().Retry)
	return scheduler.New(db, resolver, clock), db, clock
}

// track schedules a sync and hands it to a consumer, leaving it in
// ProcessStarted.
func track(t *testing.T, s *scheduler.Scheduler, data any) domain.ProcessTracker {
	t.Helper()
	ctx := context.Background()
	p, err := s.AddTask(ctx, scheduler.NewTask{
		Name:         "PAYMENTS_SYNC",
		Runner:       RunnerPaymentSync,
		TrackingData: data,
	})
	require.NoError(t, err)

	_, err = s.Store().UpdateProcessStatusByIDs(ctx, []string{p.ID}, enums.ProcessTrackerStatusNew, enums.ProcessTrackerStatusProcessStarted)
	require.NoError(t, err)
	p, err = s.Store().FindProcessByID(ctx, p.ID)
	require.NoError(t, err)
	return p
}

func TestPaymentSync(t *testing.T) {
	ctx := context.Background()
	data := PaymentSyncData{MerchantID: "m1", PaymentID: "pay_1", AttemptID: "att_1", PaymentMethod: "card"}

	t.Run("finishes once the attempt is terminal", func(t *testing.T) {
		s, db, _ := setup(t)
		p := track(t, s, data)

		wf := Registry(attempts{"m1/att_1": {AttemptID: "att_1", Status: "charged"}})[RunnerPaymentSync]
		require.NoError(t, wf.Execute(ctx, s, p))

		got, err := db.FindProcessByID(ctx, p.ID)
		require.NoError(t, err)
		require.Equal(t, enums.ProcessTrackerStatusFinish, got.Status)
		require.Equal(t, BusinessStatusSynced, got.BusinessStatus)
	})

	t.Run("polls pending attempts", func(t *testing.T) {
		s, db, clock := setup(t)
		p := track(t, s, data)

		wf := PaymentSync(attempts{"m1/att_1": {AttemptID: "att_1", Status: "pending"}})
		require.NoError(t, wf.Execute(ctx, s, p))

		got, err := db.FindProcessByID(ctx, p.ID)
		require.NoError(t, err)
		require.Equal(t, enums.ProcessTrackerStatusNew, got.Status)
		require.Equal(t, 1, got.RetryCount)
		require.Equal(t, domain.Now(clock).Add(5*time.Minute), got.ScheduleTime)
	})

	t.Run("transient errors are retried", func(t *testing.T) {
		s, db, _ := setup(t)
		p := track(t, s, data)

		require.NoError(t, PaymentSync(flaky{}).Execute(ctx, s, p))

		got, err := db.FindProcessByID(ctx, p.ID)
		require.NoError(t, err)
		require.Equal(t, 1, got.RetryCount)
	})

	t.Run("missing attempts are not retried", func(t *testing.T) {
		s, _, _ := setup(t)
		p := track(t, s, data)

		err := PaymentSync(attempts{}).Execute(ctx, s, p)
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("invalid tracking data", func(t *testing.T) {
		s, _, _ := setup(t)
		p := track(t, s, map[string]string{"merchant_id": "m1"})
		require.ErrorIs(t, PaymentSync(attempts{}).Execute(ctx, s, p), ErrInvalidTrackingData)

		p.TrackingData = json.RawMessage(`[]`)
		require.ErrorIs(t, PaymentSync(attempts{}).Execute(ctx, s, p), ErrInvalidTrackingData)
	})
}
