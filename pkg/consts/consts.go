package consts

import "time"

const (
	// DefaultKeyPrefix namespaces every redis key written by the process.
	DefaultKeyPrefix = "paysync"

	// DefaultKVTTL is how long an entity stays in the KV cache after its last
	// write.  The drainer must apply the operation well within this window.
	DefaultKVTTL = 15 * time.Minute

	DefaultSchedulerStream = "SCHEDULER_STREAM"
	DefaultSchedulerGroup  = "SCHEDULER_GROUP"

	DefaultProducerLockKey = "PRODUCER_LOCKING_KEY"
	DefaultProducerLockTTL = 160 * time.Second
	DefaultBatchSize       = 200

	DefaultProducerInterval    = 5 * time.Second
	DefaultConsumerInterval    = 5 * time.Second
	DefaultTickTimeout         = 30 * time.Second
	DefaultConsumerReadCount   = 1
	DefaultConsumerWorkers     = 10
	DefaultConsumerBlock       = time.Second
	DefaultCleanerMinIdle      = 5 * time.Minute
	DefaultCleanerInterval     = time.Minute
	DefaultCleanerClaimCount   = 50
	DefaultProducerLookahead   = 0
	DefaultProducerFetchLimit  = 2000
	DefaultDrainerPartitions   = 64
	DefaultDrainerGroup        = "DRAINER_GROUP"
	DefaultDrainerReadCount    = 100
	DefaultDrainerBlock        = time.Second
	DefaultDrainerEnqueueLimit = 100 * time.Millisecond

	DefaultRetentionSchedule = "@daily"
	DefaultRetentionMaxAge   = 30 * 24 * time.Hour

	// DefaultStartAfter is the delay before the first run of a scheduled task
	// when no retry mapping overrides it.
	DefaultStartAfter = 60 * time.Second

	// LockReleaseTimeout bounds the release of a lock after its tick's
	// context has already been cancelled.
	LockReleaseTimeout = 2 * time.Second

	// BusinessStatusRetriesExceeded is written to a tracker whose retry
	// schedule is exhausted.
	BusinessStatusRetriesExceeded = "RETRIES_EXCEEDED"
	// BusinessStatusUnknownRunner marks trackers whose runner is not
	// registered with the consumer.
	BusinessStatusUnknownRunner = "UNKNOWN_RUNNER"
)
