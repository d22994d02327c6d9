package scheduler

import (
	"testing"
	"time"

	"github.com/paysync/paysync/pkg/config"
	"github.com/stretchr/testify/require"
)

var defaultFrequencies = []config.Frequency{
	{Delay: 300, Count: 10},
	{Delay: 600, Count: 5},
	{Delay: 1800, Count: 3},
	{Delay: 3600, Count: 2},
}

func TestGetDelay(t *testing.T) {
	tests := []struct {
		retryCount int
		delay      int
		ok         bool
	}{
		{retryCount: -3},
		{retryCount: 0},
		{retryCount: 1, delay: 300, ok: true},
		{retryCount: 4, delay: 300, ok: true},
		{retryCount: 10, delay: 300, ok: true},
		{retryCount: 11, delay: 600, ok: true},
		{retryCount: 12, delay: 600, ok: true},
		{retryCount: 16, delay: 1800, ok: true},
		{retryCount: 18, delay: 1800, ok: true},
		{retryCount: 20, delay: 3600, ok: true},
		{retryCount: 21},
		{retryCount: 24},
	}

	for _, tc := range tests {
		delay, ok := GetDelay(tc.retryCount, defaultFrequencies)
		require.Equal(t, tc.ok, ok, "retry %d", tc.retryCount)
		require.Equal(t, tc.delay, delay, "retry %d", tc.retryCount)
	}

	_, ok := GetDelay(1, nil)
	require.False(t, ok)
}

func TestRetryResolver(t *testing.T) {
	r := NewRetryResolver(config.Retry{
		Default: config.RetryMapping{StartAfter: 60, Frequencies: defaultFrequencies},
		Merchants: map[string]config.RetryMapping{
			"m_fast": {StartAfter: 5, Frequencies: []config.Frequency{{Delay: 10, Count: 2}}},
		},
		PaymentMethods: map[string]config.RetryMapping{
			"wallet": {StartAfter: 30, Frequencies: []config.Frequency{{Delay: 120, Count: 1}}},
		},
	})

	t.Run("start after on first schedule", func(t *testing.T) {
		d, ok := r.Resolve("m1", "card", 0)
		require.True(t, ok)
		require.Equal(t, time.Minute, d)

		d, ok = r.Resolve("m_fast", "wallet", 0)
		require.True(t, ok)
		require.Equal(t, 5*time.Second, d)
	})

	t.Run("merchant override wins over payment method", func(t *testing.T) {
		d, ok := r.Resolve("m_fast", "wallet", 2)
		require.True(t, ok)
		require.Equal(t, 10*time.Second, d)

		_, ok = r.Resolve("m_fast", "wallet", 3)
		require.False(t, ok)
	})

	t.Run("payment method override wins over default", func(t *testing.T) {
		d, ok := r.Resolve("m1", "wallet", 1)
		require.True(t, ok)
		require.Equal(t, 2*time.Minute, d)
	})

	t.Run("default", func(t *testing.T) {
		d, ok := r.Resolve("m1", "card", 12)
		require.True(t, ok)
		require.Equal(t, 10*time.Minute, d)
	})

	t.Run("next schedule time", func(t *testing.T) {
		now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		at, ok := r.NextScheduleTime("m1", "card", 1, now)
		require.True(t, ok)
		require.Equal(t, now.Add(5*time.Minute), at)

		_, ok = r.NextScheduleTime("m1", "card", 21, now)
		require.False(t, ok)
	})
}
