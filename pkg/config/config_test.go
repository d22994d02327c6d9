package config

import (
	"testing"

	"github.com/paysync/paysync/pkg/enums"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{
			name:   "zero batch size",
			mutate: func(c *Config) { c.Scheduler.Producer.BatchSize = 0 },
		},
		{
			name:   "zero lock ttl",
			mutate: func(c *Config) { c.Scheduler.Producer.LockTTL = 0 },
		},
		{
			name:   "no drainer partitions",
			mutate: func(c *Config) { c.Drainer.Partitions = 0 },
		},
		{
			name:   "no redis addrs",
			mutate: func(c *Config) { c.Redis.Addrs = nil },
		},
		{
			name: "frequency with zero count",
			mutate: func(c *Config) {
				c.Retry.Merchants = map[string]RetryMapping{
					"m1": {StartAfter: 10, Frequencies: []Frequency{{Delay: 10, Count: 0}}},
				}
			},
		},
		{
			name:   "bad retention schedule",
			mutate: func(c *Config) { c.Scheduler.Retention.Schedule = "every day" },
		},
		{
			name:   "zero retention age",
			mutate: func(c *Config) { c.Scheduler.Retention.MaxAge = 0 },
		},
		{
			name:   "unknown storage scheme",
			mutate: func(c *Config) { c.Storage.DefaultScheme = enums.StorageScheme(9) },
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(c)
			require.Error(t, c.Validate())
		})
	}
}

func TestSchemeFor(t *testing.T) {
	s := Storage{
		DefaultScheme:   enums.StorageSchemeRedisKv,
		MerchantSchemes: map[string]enums.StorageScheme{"m_pg": enums.StorageSchemePostgresOnly},
	}
	require.Equal(t, enums.StorageSchemePostgresOnly, s.SchemeFor("m_pg"))
	require.Equal(t, enums.StorageSchemeRedisKv, s.SchemeFor("m_other"))
}
