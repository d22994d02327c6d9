// Package streams wraps the redis stream commands shared by the drainer and
// the scheduler: append, consumer group reads, acknowledgement, deletion and
// reclaiming of idle pending entries.
package streams

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/redis/rueidis"
)

var (
	// ErrStreamEmpty is returned when a read finds nothing to deliver.  It is
	// an ordinary outcome of polling.
	ErrStreamEmpty = fmt.Errorf("stream empty")
	// ErrNoGroup is returned when reading from a group which does not exist.
	ErrNoGroup = fmt.Errorf("consumer group does not exist")
)

const (
	// NewEntries reads entries never delivered to any consumer in the group.
	NewEntries = ">"
	// OwnPending reads entries already delivered to this consumer but not
	// yet acknowledged.
	OwnPending = "0"
)

// Entry is a single stream entry.
type Entry struct {
	ID     string
	Fields map[string]string
}

// Client runs stream commands against redis.
type Client struct {
	r rueidis.Client
}

func New(r rueidis.Client) *Client {
	return &Client{r: r}
}

// Append adds fields to stream as a new entry and returns its id.  Fields are
// written in key order.
func (c *Client) Append(ctx context.Context, stream string, fields map[string]string) (string, error) {
	if len(fields) == 0 {
		return "", fmt.Errorf("cannot append empty entry to %s", stream)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fv := c.r.B().Xadd().Key(stream).Id("*").FieldValue()
	for _, k := range keys {
		fv = fv.FieldValue(k, fields[k])
	}

	id, err := c.r.Do(ctx, fv.Build()).ToString()
	if err != nil {
		return "", fmt.Errorf("error appending to stream %s: %w", stream, err)
	}
	return id, nil
}

// EnsureGroup creates group on stream, creating the stream if needed.  An
// existing group is left untouched.
func (c *Client) EnsureGroup(ctx context.Context, stream, group string) error {
	cmd := c.r.B().XgroupCreate().Key(stream).Group(group).Id("0").Mkstream().Build()
	err := c.r.Do(ctx, cmd).Error()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("error creating group %s on %s: %w", group, stream, err)
	}
	return nil
}

// ReadOpts configures a consumer group read.
type ReadOpts struct {
	Stream   string
	Group    string
	Consumer string
	Count    int64
	// Block waits up to this long for new entries.  Zero does not block.
	Block time.Duration
	// ID is NewEntries or OwnPending, defaulting to NewEntries.
	ID string
}

// ReadGroup reads up to Count entries for the consumer.  ErrStreamEmpty is
// returned when nothing is available.
func (c *Client) ReadGroup(ctx context.Context, o ReadOpts) ([]Entry, error) {
	id := o.ID
	if id == "" {
		id = NewEntries
	}
	count := o.Count
	if count <= 0 {
		count = 1
	}

	var cmd rueidis.Completed
	base := c.r.B().Xreadgroup().Group(o.Group, o.Consumer).Count(count)
	if o.Block > 0 && id == NewEntries {
		cmd = base.Block(o.Block.Milliseconds()).Streams().Key(o.Stream).Id(id).Build()
	} else {
		cmd = base.Streams().Key(o.Stream).Id(id).Build()
	}

	res, err := c.r.Do(ctx, cmd).AsXRead()
	if rueidis.IsRedisNil(err) {
		return nil, ErrStreamEmpty
	}
	if err != nil {
		if strings.HasPrefix(err.Error(), "NOGROUP") {
			return nil, fmt.Errorf("%w: %s on %s", ErrNoGroup, o.Group, o.Stream)
		}
		return nil, fmt.Errorf("error reading stream %s: %w", o.Stream, err)
	}

	entries := toEntries(res[o.Stream])
	if len(entries) == 0 {
		return nil, ErrStreamEmpty
	}
	return entries, nil
}

// Ack acknowledges ids within group, removing them from the pending list.
func (c *Client) Ack(ctx context.Context, stream, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.r.Do(ctx, c.r.B().Xack().Key(stream).Group(group).Id(ids...).Build()).Error(); err != nil {
		return fmt.Errorf("error acknowledging entries on %s: %w", stream, err)
	}
	return nil
}

// Delete removes ids from the stream.
func (c *Client) Delete(ctx context.Context, stream string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.r.Do(ctx, c.r.B().Xdel().Key(stream).Id(ids...).Build()).Error(); err != nil {
		return fmt.Errorf("error deleting entries on %s: %w", stream, err)
	}
	return nil
}

// AckAndDelete acknowledges then deletes ids in a single round trip.
func (c *Client) AckAndDelete(ctx context.Context, stream, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	cmds := rueidis.Commands{
		c.r.B().Xack().Key(stream).Group(group).Id(ids...).Build(),
		c.r.B().Xdel().Key(stream).Id(ids...).Build(),
	}
	var result error
	for _, resp := range c.r.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if result != nil {
		return fmt.Errorf("error acknowledging and deleting entries on %s: %w", stream, result)
	}
	return nil
}

// ClaimOpts configures a reclaim of idle pending entries.
type ClaimOpts struct {
	Stream   string
	Group    string
	Consumer string
	MinIdle  time.Duration
	// Start is the id to scan from, "0-0" for the beginning.
	Start string
	Count int64
}

// Claim transfers pending entries idle for at least MinIdle to Consumer.  It
// returns the cursor to continue scanning from, which is "0-0" once the scan
// wraps around.
func (c *Client) Claim(ctx context.Context, o ClaimOpts) (string, []Entry, error) {
	start := o.Start
	if start == "" {
		start = "0-0"
	}
	count := o.Count
	if count <= 0 {
		count = 100
	}

	cmd := c.r.B().Xautoclaim().
		Key(o.Stream).
		Group(o.Group).
		Consumer(o.Consumer).
		MinIdleTime(strconv.FormatInt(o.MinIdle.Milliseconds(), 10)).
		Start(start).
		Count(count).
		Build()

	arr, err := c.r.Do(ctx, cmd).ToArray()
	if err != nil {
		return start, nil, fmt.Errorf("error claiming entries on %s: %w", o.Stream, err)
	}
	if len(arr) < 2 {
		return start, nil, fmt.Errorf("unexpected claim reply on %s", o.Stream)
	}

	next, err := arr[0].ToString()
	if err != nil {
		return start, nil, fmt.Errorf("error reading claim cursor on %s: %w", o.Stream, err)
	}

	raw, err := arr[1].ToArray()
	if err != nil && !rueidis.IsRedisNil(err) {
		return next, nil, fmt.Errorf("error reading claimed entries on %s: %w", o.Stream, err)
	}

	entries := make([]Entry, 0, len(raw))
	for _, m := range raw {
		if m.IsNil() {
			continue
		}
		e, err := m.AsXRangeEntry()
		if err != nil {
			return next, entries, fmt.Errorf("error decoding claimed entry on %s: %w", o.Stream, err)
		}
		// Entries deleted while pending come back without fields.
		if e.FieldValues == nil {
			continue
		}
		entries = append(entries, Entry{ID: e.ID, Fields: e.FieldValues})
	}
	return next, entries, nil
}

// Len returns the number of entries in stream.
func (c *Client) Len(ctx context.Context, stream string) (int64, error) {
	n, err := c.r.Do(ctx, c.r.B().Xlen().Key(stream).Build()).AsInt64()
	if err != nil {
		return 0, fmt.Errorf("error reading length of %s: %w", stream, err)
	}
	return n, nil
}

// Pending returns the number of delivered but unacknowledged entries in group.
func (c *Client) Pending(ctx context.Context, stream, group string) (int64, error) {
	arr, err := c.r.Do(ctx, c.r.B().Xpending().Key(stream).Group(group).Build()).ToArray()
	if err != nil {
		return 0, fmt.Errorf("error reading pending entries of %s: %w", stream, err)
	}
	if len(arr) == 0 {
		return 0, nil
	}
	return arr[0].AsInt64()
}

func toEntries(in []rueidis.XRangeEntry) []Entry {
	out := make([]Entry, 0, len(in))
	for _, e := range in {
		out = append(out, Entry{ID: e.ID, Fields: e.FieldValues})
	}
	return out
}
