package schedule

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/paysync/paysync/pkg/scheduler"
	"github.com/paysync/paysync/pkg/workflows"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

// parse runs the schedule flags through urfave/cli and returns the task they
// describe.
func parse(t *testing.T, args ...string) (scheduler.NewTask, error) {
	t.Helper()

	cmd := Command()
	var (
		task    scheduler.NewTask
		taskErr error
	)
	cmd.Action = func(ctx context.Context, cmd *cli.Command) error {
		task, taskErr = taskFromFlags(cmd)
		return nil
	}
	require.NoError(t, cmd.Run(context.Background(), append([]string{"schedule"}, args...)))
	return task, taskErr
}

func TestTaskFromFlags(t *testing.T) {
	tests := []struct {
		name                  string
		args                  []string
		expectedData          string
		expectedAt            time.Time
		expectedErrorContains string
	}{
		{
			name:         "payment sync from flags",
			args:         []string{"--merchant", "m1", "--payment", "pay_1", "--attempt", "att_1", "--payment-method", "card"},
			expectedData: `{"merchant_id":"m1","payment_id":"pay_1","attempt_id":"att_1","payment_method":"card"}`,
		},
		{
			name:         "raw tracking data",
			args:         []string{"--runner", "WEBHOOK", "--data", `{"merchant_id":"m2","event":"refund"}`},
			expectedData: `{"merchant_id":"m2","event":"refund"}`,
		},
		{
			name:         "explicit schedule time",
			args:         []string{"--merchant", "m1", "--at", "2024-03-01T13:00:00+01:00"},
			expectedData: `{"merchant_id":"m1","payment_id":"","attempt_id":""}`,
			expectedAt:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			name:                  "missing merchant",
			args:                  []string{"--attempt", "att_1"},
			expectedErrorContains: "--merchant or --data is required",
		},
		{
			name:                  "invalid data",
			args:                  []string{"--data", "{"},
			expectedErrorContains: "--data must be valid JSON",
		},
		{
			name:                  "invalid time",
			args:                  []string{"--merchant", "m1", "--at", "tomorrow"},
			expectedErrorContains: "invalid --at",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task, err := parse(t, tt.args...)
			if tt.expectedErrorContains != "" {
				assert.ErrorContains(t, err, tt.expectedErrorContains)
				return
			}
			require.NoError(t, err)

			data, err := json.Marshal(task.TrackingData)
			require.NoError(t, err)
			assert.JSONEq(t, tt.expectedData, string(data))
			assert.Equal(t, tt.expectedAt, task.ScheduleTime)
		})
	}
}

func TestTaskFromFlagsDefaults(t *testing.T) {
	task, err := parse(t, "--merchant", "m1", "--tag", "sync", "--tag", "card")
	require.NoError(t, err)
	assert.Equal(t, "PAYMENTS_SYNC", task.Name)
	assert.Equal(t, workflows.RunnerPaymentSync, task.Runner)
	assert.Equal(t, []string{"sync", "card"}, task.Tag)
}
