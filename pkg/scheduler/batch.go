package scheduler

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/paysync/paysync/pkg/domain"
)

const (
	fieldID         = "id"
	fieldGroupName  = "group_name"
	fieldStreamName = "stream_name"
	fieldCreatedAt  = "created_at"
	fieldTrackers   = "trackers"
)

var (
	// ErrInvalidBatchSize is returned when dividing tasks into batches of
	// fewer than one task.
	ErrInvalidBatchSize = fmt.Errorf("batch size must be positive")
	// ErrBatchNotFound is returned when a stream entry holds no batch, eg.
	// because it was deleted while pending.  It is not a failure.
	ErrBatchNotFound = fmt.Errorf("batch not found")
)

// Batch is the unit appended to the scheduler stream.  It exists only as a
// stream entry.
type Batch struct {
	ID         string                  `json:"id"`
	GroupName  string                  `json:"group_name"`
	StreamName string                  `json:"stream_name"`
	Trackers   []domain.ProcessTracker `json:"trackers"`
	CreatedAt  time.Time               `json:"created_at"`
}

// DivideIntoBatches splits tasks into consecutive batches of at most size
// tasks, preserving order.  Every batch shares the creation time now and has
// its own id.
func DivideIntoBatches(tasks []domain.ProcessTracker, size int, stream, group string, now time.Time) ([]Batch, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBatchSize, size)
	}

	batches := make([]Batch, 0, (len(tasks)+size-1)/size)
	for start := 0; start < len(tasks); start += size {
		end := min(start+size, len(tasks))
		batches = append(batches, Batch{
			ID:         ulid.Make().String(),
			GroupName:  group,
			StreamName: stream,
			Trackers:   tasks[start:end:end],
			CreatedAt:  now,
		})
	}
	return batches, nil
}

// IDs returns the tracker ids of the batch in order.
func (b Batch) IDs() []string {
	ids := make([]string, len(b.Trackers))
	for i, t := range b.Trackers {
		ids[i] = t.ID
	}
	return ids
}

// Fields encodes the batch as stream entry fields.
func (b Batch) Fields() (map[string]string, error) {
	trackers, err := json.Marshal(b.Trackers)
	if err != nil {
		return nil, fmt.Errorf("error marshalling trackers of batch %s: %w", b.ID, err)
	}
	return map[string]string{
		fieldID:         b.ID,
		fieldGroupName:  b.GroupName,
		fieldStreamName: b.StreamName,
		fieldCreatedAt:  strconv.FormatInt(b.CreatedAt.UnixMilli(), 10),
		fieldTrackers:   string(trackers),
	}, nil
}

// DecodeBatch reads a batch back from stream entry fields.
func DecodeBatch(fields map[string]string) (Batch, error) {
	if len(fields) == 0 {
		return Batch{}, ErrBatchNotFound
	}

	b := Batch{
		ID:         fields[fieldID],
		GroupName:  fields[fieldGroupName],
		StreamName: fields[fieldStreamName],
	}
	if b.ID == "" {
		return Batch{}, fmt.Errorf("stream entry has no batch id")
	}

	ms, err := strconv.ParseInt(fields[fieldCreatedAt], 10, 64)
	if err != nil {
		return Batch{}, fmt.Errorf("invalid created_at on batch %s: %w", b.ID, err)
	}
	b.CreatedAt = time.UnixMilli(ms).UTC()

	if err := json.Unmarshal([]byte(fields[fieldTrackers]), &b.Trackers); err != nil {
		return Batch{}, fmt.Errorf("error unmarshalling trackers of batch %s: %w", b.ID, err)
	}
	return b, nil
}
