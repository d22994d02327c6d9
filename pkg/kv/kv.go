// Package kv is the idempotent KV cache sitting in front of the relational
// store.  Entities of one payment share a partition hash; each entity is a
// field created at most once and updated in place afterwards.  A reverse
// lookup maps an entity's secondary id to its partition and field.
package kv

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/paysync/paysync/pkg/consts"
	"github.com/paysync/paysync/pkg/domain"
	"github.com/paysync/paysync/pkg/logger"
	"github.com/paysync/paysync/pkg/telemetry/metrics"
	"github.com/redis/rueidis"
)

const pkgName = "kv"

//go:embed lua/*
var embedded embed.FS

var scripts = map[string]*rueidis.Lua{}

func init() {
	entries, err := embedded.ReadDir("lua")
	if err != nil {
		panic(fmt.Errorf("error reading kv lua dir: %w", err))
	}
	for _, e := range entries {
		byt, err := embedded.ReadFile("lua/" + e.Name())
		if err != nil {
			panic(fmt.Errorf("error reading kv lua script: %w", err))
		}
		scripts[strings.TrimSuffix(e.Name(), ".lua")] = rueidis.NewLuaScript(string(byt))
	}
}

// Script return codes, see lua/.
const (
	insertCreated      = 0
	insertFieldExists  = 1
	insertLookupExists = 2

	repairWritten        = 1
	repairAlreadyPresent = 2

	updateMissing = 0
)

type Opt func(s *Store)

// WithCluster writes reverse lookups outside of the insert script, since a
// partition and its lookups hash to different cluster slots.
func WithCluster(cluster bool) Opt {
	return func(s *Store) {
		s.cluster = cluster
	}
}

func WithTTL(ttl time.Duration) Opt {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

type Store struct {
	r       rueidis.Client
	kg      KeyGenerator
	ttl     time.Duration
	cluster bool
}

func New(r rueidis.Client, prefix string, opts ...Opt) *Store {
	s := &Store{
		r:   r,
		kg:  KeyGenerator{Prefix: prefix},
		ttl: consts.DefaultKVTTL,
	}
	for _, apply := range opts {
		apply(s)
	}
	return s
}

func (s *Store) KeyGenerator() KeyGenerator {
	return s.kg
}

// InsertRequest creates Field within PartitionKey.  Lookup, when set, is the
// reverse lookup recorded alongside the field.
type InsertRequest struct {
	Table        string
	PartitionKey string
	Field        string
	Value        []byte
	Lookup       *domain.ReverseLookup
}

// Insert creates the field if and only if it is absent, returning
// ErrDuplicateValue otherwise.
func (s *Store) Insert(ctx context.Context, req InsertRequest) error {
	l := logger.StdlibLogger(ctx).With("partition_key", req.PartitionKey, "field", req.Field)
	tags := map[string]any{"table": req.Table}

	var err error
	if s.cluster {
		err = s.insertCluster(ctx, l, req)
	} else {
		err = s.insertAtomic(ctx, req)
	}

	switch {
	case err == nil:
		metrics.IncrKVInsertCounter(ctx, metrics.CounterOpt{PkgName: pkgName, Tags: tags})
	case errors.Is(err, ErrDuplicateValue):
		metrics.IncrKVDuplicateCounter(ctx, metrics.CounterOpt{PkgName: pkgName, Tags: tags})
		l.Debug("kv insert lost race", "table", req.Table)
	}
	return err
}

func (s *Store) insertAtomic(ctx context.Context, req InsertRequest) error {
	pkey := s.kg.Partition(req.PartitionKey)
	keys := []string{pkey}
	args := []string{req.Field, string(req.Value), strconv.FormatInt(s.ttl.Milliseconds(), 10)}

	if req.Lookup != nil {
		byt, err := json.Marshal(req.Lookup)
		if err != nil {
			return &Error{Op: "insert", Key: pkey, Err: err}
		}
		keys = append(keys, s.kg.Lookup(req.Lookup.LookupID))
		args = append(args, string(byt))
	}

	status, err := scripts["insert"].Exec(ctx, s.r, keys, args).AsInt64()
	if err != nil {
		return &Error{Op: "insert", Key: pkey, Err: err}
	}

	switch status {
	case insertCreated:
		return nil
	case insertFieldExists, insertLookupExists:
		return ErrDuplicateValue
	default:
		return &Error{Op: "insert", Key: pkey, Err: fmt.Errorf("unknown insert status: %d", status)}
	}
}

// insertCluster creates the field, then records the lookup best-effort.  A
// missing lookup is repaired on the read path.
func (s *Store) insertCluster(ctx context.Context, l logger.Logger, req InsertRequest) error {
	pkey := s.kg.Partition(req.PartitionKey)

	created, err := s.r.Do(ctx, s.r.B().Hsetnx().Key(pkey).Field(req.Field).Value(string(req.Value)).Build()).AsBool()
	if err != nil {
		return &Error{Op: "insert", Key: pkey, Err: err}
	}
	if !created {
		return ErrDuplicateValue
	}

	if err := s.r.Do(ctx, s.r.B().Pexpire().Key(pkey).Milliseconds(s.ttl.Milliseconds()).Build()).Error(); err != nil {
		return &Error{Op: "expire", Key: pkey, Err: err}
	}

	if req.Lookup == nil {
		return nil
	}

	if err := s.setLookup(ctx, *req.Lookup); err != nil {
		l.Warn("reverse lookup write failed, leaving for repair", "lookup_id", req.Lookup.LookupID, "error", err)
	}
	return nil
}

func (s *Store) setLookup(ctx context.Context, lookup domain.ReverseLookup) error {
	key := s.kg.Lookup(lookup.LookupID)
	byt, err := json.Marshal(lookup)
	if err != nil {
		return &Error{Op: "set_lookup", Key: key, Err: err}
	}
	err = s.r.Do(ctx, s.r.B().Set().Key(key).Value(string(byt)).Nx().Px(s.ttl).Build()).Error()
	if rueidis.IsRedisNil(err) {
		return ErrDuplicateValue
	}
	if err != nil {
		return &Error{Op: "set_lookup", Key: key, Err: err}
	}
	return nil
}

// UpdateRequest overwrites Field within PartitionKey.  LookupID, when set,
// names the reverse lookup whose expiry is refreshed with the partition's.
type UpdateRequest struct {
	PartitionKey string
	Field        string
	Value        []byte
	LookupID     string
}

// Update overwrites an existing field and refreshes the expiry of its
// partition and lookup.  It returns ErrNotFound if the field is no longer
// cached, leaving the partition untouched.
func (s *Store) Update(ctx context.Context, req UpdateRequest) error {
	pkey := s.kg.Partition(req.PartitionKey)
	keys := []string{pkey}
	if req.LookupID != "" && !s.cluster {
		keys = append(keys, s.kg.Lookup(req.LookupID))
	}
	args := []string{req.Field, string(req.Value), strconv.FormatInt(s.ttl.Milliseconds(), 10)}

	status, err := scripts["update"].Exec(ctx, s.r, keys, args).AsInt64()
	if err != nil {
		return &Error{Op: "update", Key: pkey, Err: err}
	}
	if status == updateMissing {
		return ErrNotFound
	}

	if req.LookupID != "" && s.cluster {
		key := s.kg.Lookup(req.LookupID)
		if err := s.r.Do(ctx, s.r.B().Pexpire().Key(key).Milliseconds(s.ttl.Milliseconds()).Build()).Error(); err != nil {
			logger.StdlibLogger(ctx).Warn("error refreshing reverse lookup expiry", "lookup_id", req.LookupID, "error", err)
		}
	}
	return nil
}

// Get returns a single field, or ErrNotFound.
func (s *Store) Get(ctx context.Context, partitionKey, field string) ([]byte, error) {
	pkey := s.kg.Partition(partitionKey)
	byt, err := s.r.Do(ctx, s.r.B().Hget().Key(pkey).Field(field).Build()).AsBytes()
	if rueidis.IsRedisNil(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &Error{Op: "get", Key: pkey, Err: err}
	}
	return byt, nil
}

// GetAll returns every field of a partition whose name starts with prefix,
// ordered by field name.
func (s *Store) GetAll(ctx context.Context, partitionKey, prefix string) ([][]byte, error) {
	pkey := s.kg.Partition(partitionKey)
	all, err := s.r.Do(ctx, s.r.B().Hgetall().Key(pkey).Build()).AsStrMap()
	if err != nil {
		return nil, &Error{Op: "get_all", Key: pkey, Err: err}
	}

	fields := make([]string, 0, len(all))
	for f := range all {
		if strings.HasPrefix(f, prefix) {
			fields = append(fields, f)
		}
	}
	sort.Strings(fields)

	out := make([][]byte, 0, len(fields))
	for _, f := range fields {
		out = append(out, []byte(all[f]))
	}
	return out, nil
}

// GetLookup resolves a reverse lookup, or returns ErrNotFound.
func (s *Store) GetLookup(ctx context.Context, lookupID string) (domain.ReverseLookup, error) {
	key := s.kg.Lookup(lookupID)
	byt, err := s.r.Do(ctx, s.r.B().Get().Key(key).Build()).AsBytes()
	if rueidis.IsRedisNil(err) {
		return domain.ReverseLookup{}, ErrNotFound
	}
	if err != nil {
		return domain.ReverseLookup{}, &Error{Op: "get_lookup", Key: key, Err: err}
	}

	var lookup domain.ReverseLookup
	if err := json.Unmarshal(byt, &lookup); err != nil {
		return domain.ReverseLookup{}, &Error{Op: "get_lookup", Key: key, Err: err}
	}
	return lookup, nil
}

// RepairLookup recreates a reverse lookup missing from the cache.  It returns
// true if a lookup now points at a cached field.
func (s *Store) RepairLookup(ctx context.Context, lookup domain.ReverseLookup) (bool, error) {
	if s.cluster {
		err := s.setLookup(ctx, lookup)
		if errors.Is(err, ErrDuplicateValue) {
			return true, nil
		}
		return err == nil, err
	}

	byt, err := json.Marshal(lookup)
	if err != nil {
		return false, &Error{Op: "repair_lookup", Key: lookup.LookupID, Err: err}
	}

	keys := []string{s.kg.Partition(lookup.PartitionKey), s.kg.Lookup(lookup.LookupID)}
	status, err := scripts["repair_lookup"].Exec(ctx, s.r, keys, []string{lookup.Field, string(byt)}).AsInt64()
	if err != nil {
		return false, &Error{Op: "repair_lookup", Key: keys[1], Err: err}
	}
	return status == repairWritten || status == repairAlreadyPresent, nil
}
