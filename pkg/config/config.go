package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/paysync/paysync/pkg/consts"
	"github.com/paysync/paysync/pkg/enums"
	cron "github.com/robfig/cron/v3"
)

// Config is the full runtime configuration of a paysync process.  It is built
// once at start up and handed to each component.
type Config struct {
	Log       Log       `koanf:"log"`
	Redis     Redis     `koanf:"redis" validate:"required"`
	Database  Database  `koanf:"database"`
	Storage   Storage   `koanf:"storage"`
	Drainer   Drainer   `koanf:"drainer"`
	Scheduler Scheduler `koanf:"scheduler"`
	Retry     Retry     `koanf:"retry"`
	Metrics   Metrics   `koanf:"metrics"`
}

// Log configures the logger.
type Log struct {
	// Level is one of trace, debug, info, notice, warn, error or emergency.
	Level string `koanf:"level"`
	// Format is json, text or dev.
	Format string `koanf:"format" validate:"omitempty,oneof=json text txt dev"`
}

type Redis struct {
	Addrs    []string `koanf:"addrs" validate:"required,min=1,dive,required"`
	Username string   `koanf:"username"`
	Password string   `koanf:"password"`
	DB       int      `koanf:"db" validate:"gte=0"`
	// Cluster disables multi-key scripts, since partition keys and lookup
	// keys hash to different slots.
	Cluster   bool          `koanf:"cluster"`
	KeyPrefix string        `koanf:"key_prefix" validate:"required"`
	KVTTL     time.Duration `koanf:"kv_ttl" validate:"gt=0"`
}

type Database struct {
	// PostgresURI selects postgres when set.  Otherwise sqlite is used, in
	// memory or within Dir.
	PostgresURI string `koanf:"postgres_uri"`
	InMemory    bool   `koanf:"in_memory"`
	Dir         string `koanf:"dir"`
	MaxOpen     int    `koanf:"max_open" validate:"gte=0"`
}

type Storage struct {
	DefaultScheme   enums.StorageScheme            `koanf:"default_scheme"`
	MerchantSchemes map[string]enums.StorageScheme `koanf:"merchant_schemes"`
}

// SchemeFor returns the storage scheme used for a merchant.
func (s Storage) SchemeFor(merchantID string) enums.StorageScheme {
	if scheme, ok := s.MerchantSchemes[merchantID]; ok {
		return scheme
	}
	return s.DefaultScheme
}

type Drainer struct {
	Partitions     int           `koanf:"partitions" validate:"gte=1"`
	EnqueueTimeout time.Duration `koanf:"enqueue_timeout" validate:"gt=0"`
	Group          string        `koanf:"group" validate:"required"`
	ReadCount      int64         `koanf:"read_count" validate:"gte=1"`
	Block          time.Duration `koanf:"block" validate:"gte=0"`
	// MinIdle is how long a pending operation waits before another drainer
	// may claim it.
	MinIdle time.Duration `koanf:"min_idle" validate:"gt=0"`
}

type Scheduler struct {
	Stream   string   `koanf:"stream" validate:"required"`
	Group    string   `koanf:"group" validate:"required"`
	Producer Producer `koanf:"producer"`
	Consumer Consumer `koanf:"consumer"`
	Cleaner  Cleaner  `koanf:"cleaner"`
	// Retention deletes finished trackers on a cron schedule from the
	// producer.  An empty schedule disables it.
	Retention Retention `koanf:"retention"`
}

type Producer struct {
	BatchSize int    `koanf:"batch_size" validate:"gt=0"`
	LockKey   string `koanf:"lock_key" validate:"required"`
	// LockValue identifies the holder.  A per-process id is used when empty.
	LockValue   string        `koanf:"lock_value"`
	LockTTL     time.Duration `koanf:"lock_ttl" validate:"gt=0"`
	Interval    time.Duration `koanf:"interval" validate:"gt=0"`
	TickTimeout time.Duration `koanf:"tick_timeout" validate:"gt=0"`
	// Lookahead picks up tasks scheduled up to this far in the future.
	Lookahead  time.Duration `koanf:"lookahead" validate:"gte=0"`
	FetchLimit int           `koanf:"fetch_limit" validate:"gt=0"`
}

type Consumer struct {
	ReadCount   int64         `koanf:"read_count" validate:"gt=0"`
	Block       time.Duration `koanf:"block" validate:"gte=0"`
	Interval    time.Duration `koanf:"interval" validate:"gt=0"`
	TickTimeout time.Duration `koanf:"tick_timeout" validate:"gt=0"`
	Workers     int           `koanf:"workers" validate:"gt=0"`
}

type Cleaner struct {
	MinIdle  time.Duration `koanf:"min_idle" validate:"gt=0"`
	Interval time.Duration `koanf:"interval" validate:"gt=0"`
	Count    int64         `koanf:"count" validate:"gt=0"`
}

type Retention struct {
	Schedule string        `koanf:"schedule"`
	MaxAge   time.Duration `koanf:"max_age" validate:"gt=0"`
}

// Retry holds the retry schedules of scheduled tasks.  Merchant overrides are
// consulted before payment method overrides, which are consulted before the
// default.
type Retry struct {
	Default        RetryMapping            `koanf:"default"`
	Merchants      map[string]RetryMapping `koanf:"merchants" validate:"dive"`
	PaymentMethods map[string]RetryMapping `koanf:"payment_methods" validate:"dive"`
}

// RetryMapping is a start delay plus a step table of retry delays, all in
// seconds.
type RetryMapping struct {
	StartAfter  int         `koanf:"start_after" json:"start_after" validate:"gte=0"`
	Frequencies []Frequency `koanf:"frequencies" json:"frequencies" validate:"dive"`
}

// Frequency applies Delay seconds to the next Count retries.
type Frequency struct {
	Delay int `koanf:"delay" json:"delay" validate:"gt=0"`
	Count int `koanf:"count" json:"count" validate:"gt=0"`
}

type Metrics struct {
	// Addr serves prometheus metrics when set, eg. ":9090".
	Addr string `koanf:"addr" validate:"omitempty,hostname_port"`
}

// Default returns a config with every tunable populated.
func Default() *Config {
	return &Config{
		Log: Log{Level: "info", Format: "json"},
		Redis: Redis{
			Addrs:     []string{"localhost:6379"},
			KeyPrefix: consts.DefaultKeyPrefix,
			KVTTL:     consts.DefaultKVTTL,
		},
		Database: Database{InMemory: true},
		Storage:  Storage{DefaultScheme: enums.StorageSchemeRedisKv},
		Drainer: Drainer{
			Partitions:     consts.DefaultDrainerPartitions,
			EnqueueTimeout: consts.DefaultDrainerEnqueueLimit,
			Group:          consts.DefaultDrainerGroup,
			ReadCount:      consts.DefaultDrainerReadCount,
			Block:          consts.DefaultDrainerBlock,
			MinIdle:        consts.DefaultCleanerMinIdle,
		},
		Scheduler: Scheduler{
			Stream: consts.DefaultSchedulerStream,
			Group:  consts.DefaultSchedulerGroup,
			Producer: Producer{
				BatchSize:   consts.DefaultBatchSize,
				LockKey:     consts.DefaultProducerLockKey,
				LockTTL:     consts.DefaultProducerLockTTL,
				Interval:    consts.DefaultProducerInterval,
				TickTimeout: consts.DefaultTickTimeout,
				Lookahead:   consts.DefaultProducerLookahead,
				FetchLimit:  consts.DefaultProducerFetchLimit,
			},
			Consumer: Consumer{
				ReadCount:   consts.DefaultConsumerReadCount,
				Block:       consts.DefaultConsumerBlock,
				Interval:    consts.DefaultConsumerInterval,
				TickTimeout: consts.DefaultTickTimeout,
				Workers:     consts.DefaultConsumerWorkers,
			},
			Cleaner: Cleaner{
				MinIdle:  consts.DefaultCleanerMinIdle,
				Interval: consts.DefaultCleanerInterval,
				Count:    consts.DefaultCleanerClaimCount,
			},
			Retention: Retention{
				Schedule: consts.DefaultRetentionSchedule,
				MaxAge:   consts.DefaultRetentionMaxAge,
			},
		},
		Retry: Retry{
			Default: RetryMapping{
				StartAfter: int(consts.DefaultStartAfter / time.Second),
				Frequencies: []Frequency{
					{Delay: 300, Count: 10},
					{Delay: 600, Count: 5},
					{Delay: 1800, Count: 3},
					{Delay: 3600, Count: 2},
				},
			},
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks c against its struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if s := c.Scheduler.Retention.Schedule; s != "" {
		if _, err := cron.ParseStandard(s); err != nil {
			return fmt.Errorf("invalid config: retention schedule: %w", err)
		}
	}
	if !c.Storage.DefaultScheme.IsAStorageScheme() {
		return fmt.Errorf("invalid config: unknown storage scheme %d", c.Storage.DefaultScheme)
	}
	for merchant, scheme := range c.Storage.MerchantSchemes {
		if !scheme.IsAStorageScheme() {
			return fmt.Errorf("invalid config: unknown storage scheme %d for merchant %s", scheme, merchant)
		}
	}
	return nil
}
