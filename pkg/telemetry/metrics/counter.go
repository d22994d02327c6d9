package metrics

import "context"

func IncrKVInsertCounter(ctx context.Context, opts CounterOpt) {
	RecordCounterMetric(ctx, 1, CounterOpt{
		PkgName:     opts.PkgName,
		MetricName:  "kv_insert_total",
		Description: "Total number of conditional KV inserts",
		Tags:        opts.Tags,
	})
}

func IncrKVDuplicateCounter(ctx context.Context, opts CounterOpt) {
	RecordCounterMetric(ctx, 1, CounterOpt{
		PkgName:     opts.PkgName,
		MetricName:  "kv_duplicate_total",
		Description: "Total number of KV inserts rejected because the entry already existed",
		Tags:        opts.Tags,
	})
}

func IncrReverseLookupFallbackCounter(ctx context.Context, opts CounterOpt) {
	RecordCounterMetric(ctx, 1, CounterOpt{
		PkgName:     opts.PkgName,
		MetricName:  "reverse_lookup_fallback_total",
		Description: "Total number of reads by secondary id served by the relational store",
		Tags:        opts.Tags,
	})
}

func IncrDrainerEnqueueCounter(ctx context.Context, opts CounterOpt) {
	RecordCounterMetric(ctx, 1, CounterOpt{
		PkgName:     opts.PkgName,
		MetricName:  "drainer_enqueue_total",
		Description: "Total number of operations appended to drainer streams",
		Tags:        opts.Tags,
	})
}

func IncrDrainerAppliedCounter(ctx context.Context, opts CounterOpt) {
	RecordCounterMetric(ctx, 1, CounterOpt{
		PkgName:     opts.PkgName,
		MetricName:  "drainer_applied_total",
		Description: "Total number of drainer operations applied to the relational store",
		Tags:        opts.Tags,
	})
}

func IncrDrainerDeadLetterCounter(ctx context.Context, opts CounterOpt) {
	RecordCounterMetric(ctx, 1, CounterOpt{
		PkgName:     opts.PkgName,
		MetricName:  "drainer_dead_letter_total",
		Description: "Total number of drainer operations moved to the dead letter stream",
		Tags:        opts.Tags,
	})
}

func IncrSchedulerTasksProducedCounter(ctx context.Context, incr int64, opts CounterOpt) {
	RecordCounterMetric(ctx, incr, CounterOpt{
		PkgName:     opts.PkgName,
		MetricName:  "scheduler_tasks_produced_total",
		Description: "Total number of process trackers handed to the scheduler stream",
		Tags:        opts.Tags,
	})
}

func IncrSchedulerBatchesConsumedCounter(ctx context.Context, opts CounterOpt) {
	RecordCounterMetric(ctx, 1, CounterOpt{
		PkgName:     opts.PkgName,
		MetricName:  "scheduler_batches_consumed_total",
		Description: "Total number of batches read from the scheduler stream",
		Tags:        opts.Tags,
	})
}

func IncrSchedulerReclaimedCounter(ctx context.Context, incr int64, opts CounterOpt) {
	RecordCounterMetric(ctx, incr, CounterOpt{
		PkgName:     opts.PkgName,
		MetricName:  "scheduler_reclaimed_total",
		Description: "Total number of pending stream entries reclaimed from idle consumers",
		Tags:        opts.Tags,
	})
}

func IncrSchedulerLockContentionCounter(ctx context.Context, opts CounterOpt) {
	RecordCounterMetric(ctx, 1, CounterOpt{
		PkgName:     opts.PkgName,
		MetricName:  "scheduler_lock_contention_total",
		Description: "Total number of producer ticks skipped because another producer held the lock",
		Tags:        opts.Tags,
	})
}
