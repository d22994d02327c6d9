// Package scheduler runs process trackers.  A producer moves due trackers
// into batches on a stream, consumers execute the workflow of each tracker,
// and a cleaner reclaims batches left pending by crashed consumers.
//
// Delivery is at-least-once: a workflow must be idempotent, or dedupe on the
// tracker id.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid/v2"
	"github.com/paysync/paysync/pkg/consts"
	"github.com/paysync/paysync/pkg/domain"
	"github.com/paysync/paysync/pkg/enums"
	"github.com/paysync/paysync/pkg/logger"
	"github.com/paysync/paysync/pkg/storage/sqlstore"
	"github.com/paysync/paysync/pkg/streams"
)

const pkgName = "scheduler"

var (
	// ErrStreamAppendFailed is returned when a batch could not be appended to
	// the scheduler stream.
	ErrStreamAppendFailed = fmt.Errorf("stream append failed")
	// ErrBatchInsertionFailed is returned when the producer could not insert
	// its batches.  It wraps ErrStreamAppendFailed or an encoding error.
	ErrBatchInsertionFailed = fmt.Errorf("batch insertion failed")
	// ErrProcessUpdateFailed is returned when a process tracker row could not
	// be updated.
	ErrProcessUpdateFailed = fmt.Errorf("process update failed")
)

// ProcessStore is the process tracker table.
type ProcessStore interface {
	InsertProcess(ctx context.Context, p domain.ProcessTracker) error
	FindProcessByID(ctx context.Context, id string) (domain.ProcessTracker, error)
	FindDueProcesses(ctx context.Context, before time.Time, status enums.ProcessTrackerStatus, limit uint) ([]domain.ProcessTracker, error)
	UpdateProcessStatusByIDs(ctx context.Context, ids []string, from, to enums.ProcessTrackerStatus) (int64, error)
	UpdateProcess(ctx context.Context, id string, from []enums.ProcessTrackerStatus, u domain.ProcessTrackerUpdate) (domain.ProcessTracker, error)
}

// Stream is the consumer group stream carrying batches.
type Stream interface {
	Append(ctx context.Context, stream string, fields map[string]string) (string, error)
	EnsureGroup(ctx context.Context, stream, group string) error
	ReadGroup(ctx context.Context, o streams.ReadOpts) ([]streams.Entry, error)
	AckAndDelete(ctx context.Context, stream, group string, ids ...string) error
	Claim(ctx context.Context, o streams.ClaimOpts) (string, []streams.Entry, error)
}

// Scheduler creates and updates process trackers.
type Scheduler struct {
	store    ProcessStore
	resolver *RetryResolver
	clock    clockwork.Clock
}

func New(store ProcessStore, resolver *RetryResolver, clock clockwork.Clock) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{store: store, resolver: resolver, clock: clock}
}

func (s *Scheduler) Store() ProcessStore {
	return s.store
}

func (s *Scheduler) Resolver() *RetryResolver {
	return s.resolver
}

// NewTask describes a tracker to schedule.
type NewTask struct {
	// ID defaults to a new ulid.
	ID     string
	Name   string
	Runner string
	Tag    []string
	// TrackingData is marshalled to JSON.  Its merchant_id and
	// payment_method select the retry mapping.
	TrackingData any
	// ScheduleTime defaults to now plus the mapping's start_after.
	ScheduleTime time.Time
}

// AddTask inserts a new tracker in status New.
func (s *Scheduler) AddTask(ctx context.Context, t NewTask) (domain.ProcessTracker, error) {
	if t.Name == "" || t.Runner == "" {
		return domain.ProcessTracker{}, fmt.Errorf("task name and runner are required")
	}

	data, err := json.Marshal(t.TrackingData)
	if err != nil {
		return domain.ProcessTracker{}, fmt.Errorf("error marshalling tracking data: %w", err)
	}
	if t.TrackingData == nil {
		data = json.RawMessage("{}")
	}

	now := domain.Now(s.clock)
	p := domain.ProcessTracker{
		ID:           t.ID,
		Name:         t.Name,
		Tag:          t.Tag,
		Runner:       t.Runner,
		ScheduleTime: t.ScheduleTime,
		TrackingData: data,
		Status:       enums.ProcessTrackerStatusNew,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if p.ID == "" {
		p.ID = ulid.Make().String()
	}
	if p.ScheduleTime.IsZero() {
		ref := p.Ref()
		p.ScheduleTime, _ = s.resolver.NextScheduleTime(ref.MerchantID, ref.PaymentMethod, 0, now)
	}

	if err := s.store.InsertProcess(ctx, p); err != nil {
		return domain.ProcessTracker{}, fmt.Errorf("error inserting process %s: %w", p.ID, err)
	}
	logger.StdlibLogger(ctx).Debug("scheduled process", "tracker_id", p.ID, "runner", p.Runner, "schedule_time", p.ScheduleTime)
	return p, nil
}

// running are the statuses of a tracker handed to a consumer.  Only these may
// be retried or finished, so a redelivered batch racing the original
// consumer cannot move a finished tracker back to New.
var running = []enums.ProcessTrackerStatus{
	enums.ProcessTrackerStatusProcessing,
	enums.ProcessTrackerStatusProcessStarted,
}

// RetryProcess counts another retry of p and returns it to New, due at the
// given time.
func (s *Scheduler) RetryProcess(ctx context.Context, p domain.ProcessTracker, at time.Time) (domain.ProcessTracker, error) {
	status := enums.ProcessTrackerStatusNew
	retries := p.RetryCount + 1
	at = at.UTC().Truncate(time.Millisecond)

	return s.update(ctx, "retrying", p, domain.ProcessTrackerUpdate{
		Status:       &status,
		RetryCount:   &retries,
		ScheduleTime: &at,
	})
}

// FinishProcess marks p finished with the given business status.
func (s *Scheduler) FinishProcess(ctx context.Context, p domain.ProcessTracker, businessStatus string) (domain.ProcessTracker, error) {
	status := enums.ProcessTrackerStatusFinish
	return s.update(ctx, "finishing", p, domain.ProcessTrackerUpdate{
		Status:         &status,
		BusinessStatus: &businessStatus,
	})
}

// update applies u to a running tracker.  A tracker another delivery has
// already retried or finished is returned as it is now, without error.
func (s *Scheduler) update(ctx context.Context, action string, p domain.ProcessTracker, u domain.ProcessTrackerUpdate) (domain.ProcessTracker, error) {
	next, err := s.store.UpdateProcess(ctx, p.ID, running, u)
	switch {
	case errors.Is(err, sqlstore.ErrStatusConflict):
		logger.StdlibLogger(ctx).Info("process already handled",
			"tracker_id", p.ID,
			"action", action,
			"status", next.Status,
		)
		return next, nil
	case err != nil:
		return p, fmt.Errorf("%w: %s %s: %w", ErrProcessUpdateFailed, action, p.ID, err)
	}
	return next, nil
}

// RetryOrFinish schedules the next retry of p from its retry mapping, or
// finishes it once the mapping is exhausted.
func (s *Scheduler) RetryOrFinish(ctx context.Context, p domain.ProcessTracker) (domain.ProcessTracker, error) {
	ref := p.Ref()
	at, ok := s.resolver.NextScheduleTime(ref.MerchantID, ref.PaymentMethod, p.RetryCount+1, domain.Now(s.clock))
	if !ok {
		logger.StdlibLogger(ctx).Info("process retries exceeded", "tracker_id", p.ID, "retry_count", p.RetryCount)
		return s.FinishProcess(ctx, p, consts.BusinessStatusRetriesExceeded)
	}
	return s.RetryProcess(ctx, p, at)
}
