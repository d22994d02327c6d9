package scheduler

import (
	"fmt"
	"testing"
	"time"

	"github.com/paysync/paysync/pkg/domain"
	"github.com/paysync/paysync/pkg/enums"
	"github.com/stretchr/testify/require"
)

func trackers(n int) []domain.ProcessTracker {
	out := make([]domain.ProcessTracker, n)
	for i := range out {
		out[i] = domain.ProcessTracker{
			ID:     fmt.Sprintf("p%03d", i),
			Name:   "PAYMENT_SYNC",
			Runner: "PAYMENT_SYNC_WORKFLOW",
			Status: enums.ProcessTrackerStatusNew,
		}
	}
	return out
}

func TestDivideIntoBatches(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		tasks   int
		size    int
		batches int
	}{
		{tasks: 0, size: 3, batches: 0},
		{tasks: 1, size: 3, batches: 1},
		{tasks: 3, size: 3, batches: 1},
		{tasks: 4, size: 3, batches: 2},
		{tasks: 10, size: 1, batches: 10},
		{tasks: 401, size: 200, batches: 3},
	}

	for _, tc := range tests {
		t.Run(fmt.Sprintf("%d tasks in batches of %d", tc.tasks, tc.size), func(t *testing.T) {
			tasks := trackers(tc.tasks)
			batches, err := DivideIntoBatches(tasks, tc.size, "stream", "group", now)
			require.NoError(t, err)
			require.Len(t, batches, tc.batches)

			seen := map[string]bool{}
			var flattened []domain.ProcessTracker
			for _, b := range batches {
				require.NotEmpty(t, b.Trackers)
				require.LessOrEqual(t, len(b.Trackers), tc.size)
				require.Equal(t, now, b.CreatedAt)
				require.Equal(t, "stream", b.StreamName)
				require.Equal(t, "group", b.GroupName)
				require.False(t, seen[b.ID], "batch ids must be unique")
				seen[b.ID] = true
				flattened = append(flattened, b.Trackers...)
			}

			if tc.tasks == 0 {
				require.Empty(t, flattened)
				return
			}
			require.Equal(t, tasks, flattened)
		})
	}

	t.Run("invalid size", func(t *testing.T) {
		_, err := DivideIntoBatches(trackers(2), 0, "stream", "group", now)
		require.ErrorIs(t, err, ErrInvalidBatchSize)
	})

	t.Run("batches do not share backing arrays", func(t *testing.T) {
		tasks := trackers(4)
		batches, err := DivideIntoBatches(tasks, 2, "stream", "group", now)
		require.NoError(t, err)
		batches[0].Trackers = append(batches[0].Trackers, domain.ProcessTracker{ID: "extra"})
		require.Equal(t, "p002", batches[1].Trackers[0].ID)
	})
}

func TestBatchFields(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	batches, err := DivideIntoBatches(trackers(2), 5, "SCHEDULER_STREAM", "SCHEDULER_GROUP", now)
	require.NoError(t, err)

	fields, err := batches[0].Fields()
	require.NoError(t, err)
	require.Equal(t, batches[0].ID, fields["id"])
	require.Equal(t, "SCHEDULER_GROUP", fields["group_name"])

	decoded, err := DecodeBatch(fields)
	require.NoError(t, err)
	require.Equal(t, batches[0].ID, decoded.ID)
	require.Equal(t, now, decoded.CreatedAt)
	require.Equal(t, []string{"p000", "p001"}, decoded.IDs())

	_, err = DecodeBatch(nil)
	require.ErrorIs(t, err, ErrBatchNotFound)

	_, err = DecodeBatch(map[string]string{"id": "b1", "created_at": "x"})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrBatchNotFound)
}
