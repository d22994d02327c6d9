// Package storage is the write-behind orchestrator.  Writes for merchants on
// the redis_kv scheme go to the KV cache first and are queued for the
// relational store through the drainer; reads try the cache and fall back to
// the relational store.  Merchants on postgres_only bypass the cache.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/paysync/paysync/pkg/config"
	"github.com/paysync/paysync/pkg/domain"
	"github.com/paysync/paysync/pkg/drainer"
	"github.com/paysync/paysync/pkg/enums"
	"github.com/paysync/paysync/pkg/kv"
	"github.com/paysync/paysync/pkg/logger"
	"github.com/paysync/paysync/pkg/storage/sqlstore"
	"github.com/paysync/paysync/pkg/telemetry/metrics"
)

const pkgName = "storage"

var (
	// ErrNotFound is returned when an entity exists in neither store.
	ErrNotFound = fmt.Errorf("entity not found")
	// ErrDuplicate is returned when inserting an entity which already exists.
	ErrDuplicate = kv.ErrDuplicateValue
	// ErrDanglingReverseLookup is returned when a cached reverse lookup points
	// at an entity which neither store holds.
	ErrDanglingReverseLookup = fmt.Errorf("reverse lookup references a missing entity")
)

// Cache is the KV cache of record.
type Cache interface {
	Insert(ctx context.Context, req kv.InsertRequest) error
	Update(ctx context.Context, req kv.UpdateRequest) error
	Get(ctx context.Context, partitionKey, field string) ([]byte, error)
	GetAll(ctx context.Context, partitionKey, prefix string) ([][]byte, error)
	GetLookup(ctx context.Context, lookupID string) (domain.ReverseLookup, error)
	RepairLookup(ctx context.Context, lookup domain.ReverseLookup) (bool, error)
}

// Relational is the system of record.
type Relational interface {
	InsertPaymentAttempt(ctx context.Context, p domain.PaymentAttempt) error
	UpdatePaymentAttempt(ctx context.Context, original domain.PaymentAttempt, u domain.PaymentAttemptUpdate) (domain.PaymentAttempt, error)
	FindPaymentAttempt(ctx context.Context, merchantID, attemptID string) (domain.PaymentAttempt, error)
	FindPaymentAttemptsByPayment(ctx context.Context, merchantID, paymentID string) ([]domain.PaymentAttempt, error)

	InsertCapture(ctx context.Context, c domain.Capture) error
	UpdateCapture(ctx context.Context, original domain.Capture, u domain.CaptureUpdate) (domain.Capture, error)
	FindCapture(ctx context.Context, merchantID, captureID string) (domain.Capture, error)
	FindCapturesByAttempt(ctx context.Context, merchantID, attemptID string) ([]domain.Capture, error)

	FindReverseLookup(ctx context.Context, lookupID string) (domain.ReverseLookup, error)
}

// Enqueuer queues operations for the relational store.
type Enqueuer interface {
	Enqueue(ctx context.Context, op drainer.Operation, routingKey string) error
}

type Opts struct {
	Cache      Cache
	Relational Relational
	Drainer    Enqueuer
	Schemes    config.Storage
	Clock      clockwork.Clock
}

type Store struct {
	cache   Cache
	db      Relational
	drainer Enqueuer
	schemes config.Storage
	clock   clockwork.Clock
}

func New(o Opts) *Store {
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	return &Store{
		cache:   o.Cache,
		db:      o.Relational,
		drainer: o.Drainer,
		schemes: o.Schemes,
		clock:   o.Clock,
	}
}

// Scheme returns the storage scheme of a merchant.
func (s *Store) Scheme(merchantID string) enums.StorageScheme {
	return s.schemes.SchemeFor(merchantID)
}

type entity interface {
	PartitionKey() string
	Field() string
	LookupID() string
}

// insertKV writes e and its reverse lookup to the cache, then queues both
// rows for the relational store.  A failed enqueue leaves the entity cached
// but not durable; the error is returned so the caller can fail the write.
func insertKV[T entity](ctx context.Context, s *Store, table string, e T) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("error marshalling %s: %w", table, err)
	}

	pk := e.PartitionKey()
	lookup := domain.ReverseLookup{
		LookupID:     e.LookupID(),
		PartitionKey: pk,
		Field:        e.Field(),
		SourceTable:  table,
		UpdatedBy:    enums.StorageSchemeRedisKv.String(),
	}

	if err := s.cache.Insert(ctx, kv.InsertRequest{
		Table:        table,
		PartitionKey: pk,
		Field:        e.Field(),
		Value:        value,
		Lookup:       &lookup,
	}); err != nil {
		return err
	}

	op, err := drainer.NewInsert(table, pk, e)
	if err != nil {
		return err
	}
	if err := s.drainer.Enqueue(ctx, op, pk); err != nil {
		return err
	}

	op, err = drainer.NewInsert(domain.TableReverseLookup, pk, lookup)
	if err != nil {
		return err
	}
	return s.drainer.Enqueue(ctx, op, pk)
}

// updateKV overwrites the cached entity with next and queues the conditional
// update of prior.  An entity which has expired from the cache is not
// re-cached: the relational store serves it once the update drains.
func updateKV[T entity, U any](ctx context.Context, s *Store, table string, prior, next T, changeset U) error {
	value, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("error marshalling %s: %w", table, err)
	}

	pk := prior.PartitionKey()
	err = s.cache.Update(ctx, kv.UpdateRequest{
		PartitionKey: pk,
		Field:        prior.Field(),
		Value:        value,
		LookupID:     prior.LookupID(),
	})
	switch {
	case errors.Is(err, kv.ErrNotFound):
		logger.StdlibLogger(ctx).Debug("updating uncached entity", "table", table, "partition_key", pk, "field", prior.Field())
	case err != nil:
		return err
	}

	op, err := drainer.NewUpdate(table, pk, prior, changeset)
	if err != nil {
		return err
	}
	return s.drainer.Enqueue(ctx, op, pk)
}

// findKV resolves an entity by its reverse lookup.  Misses in the cache fall
// back to the relational store through find.
func findKV[T any](ctx context.Context, s *Store, table, lookupID string, find func(context.Context) (T, error)) (T, error) {
	var zero T
	l := logger.StdlibLogger(ctx).With("table", table, "lookup_id", lookupID)

	fallback := func(reason string) (T, error) {
		metrics.IncrReverseLookupFallbackCounter(ctx, metrics.CounterOpt{
			PkgName: pkgName,
			Tags:    map[string]any{"table": table, "reason": reason},
		})
		found, err := find(ctx)
		if errors.Is(err, sqlstore.ErrNotFound) {
			return zero, ErrNotFound
		}
		return found, err
	}

	lookup, err := s.cache.GetLookup(ctx, lookupID)
	switch {
	case err == nil:
		found, err := getKV[T](ctx, s, lookup)
		if !errors.Is(err, kv.ErrNotFound) {
			return found, err
		}
		l.Error("reverse lookup references an uncached field", "partition_key", lookup.PartitionKey, "field", lookup.Field)
		found, err = fallback("dangling_lookup")
		if errors.Is(err, ErrNotFound) {
			return zero, fmt.Errorf("%w: %s", ErrDanglingReverseLookup, lookupID)
		}
		return found, err

	case errors.Is(err, kv.ErrNotFound):
		lookup, err = s.db.FindReverseLookup(ctx, lookupID)
		if errors.Is(err, sqlstore.ErrNotFound) {
			return fallback("lookup_miss")
		}
		if err != nil {
			return zero, err
		}

		if _, err := s.cache.RepairLookup(ctx, lookup); err != nil {
			l.Warn("error repairing reverse lookup", "error", err)
		}
		found, err := getKV[T](ctx, s, lookup)
		if errors.Is(err, kv.ErrNotFound) {
			return fallback("field_miss")
		}
		return found, err

	default:
		return zero, err
	}
}

func getKV[T any](ctx context.Context, s *Store, lookup domain.ReverseLookup) (T, error) {
	var out T
	byt, err := s.cache.Get(ctx, lookup.PartitionKey, lookup.Field)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(byt, &out); err != nil {
		return out, fmt.Errorf("error unmarshalling %s: %w", lookup.SourceTable, err)
	}
	return out, nil
}

// listKV returns every cached entity of a partition whose field starts with
// prefix.  An empty result falls back to the relational store.
func listKV[T any](ctx context.Context, s *Store, table, pk, prefix string, keep func(T) bool, find func(context.Context) ([]T, error)) ([]T, error) {
	all, err := s.cache.GetAll(ctx, pk, prefix)
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(all))
	for _, byt := range all {
		var item T
		if err := json.Unmarshal(byt, &item); err != nil {
			return nil, fmt.Errorf("error unmarshalling %s: %w", table, err)
		}
		if keep == nil || keep(item) {
			out = append(out, item)
		}
	}
	if len(out) > 0 {
		return out, nil
	}

	metrics.IncrReverseLookupFallbackCounter(ctx, metrics.CounterOpt{
		PkgName: pkgName,
		Tags:    map[string]any{"table": table, "reason": "partition_miss"},
	})
	return find(ctx)
}

func sqlErr(err error) error {
	switch {
	case errors.Is(err, sqlstore.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, sqlstore.ErrDuplicate):
		return ErrDuplicate
	}
	return err
}
