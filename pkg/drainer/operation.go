package drainer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/paysync/paysync/pkg/enums"
)

// Stream entry fields.  The operation itself is carried in "op"; the others
// are copies kept for inspection with stream tooling.
const (
	fieldOp    = "op"
	fieldTable = "table"
	fieldKind  = "kind"
	fieldPK    = "pk"
)

// Operation is a mutation queued for replay against the relational store.
// Inserts carry the full row in Payload.  Updates carry the snapshot the
// writer held in Original and the changes in Changeset, so replay can apply
// the update conditionally on the original still being current.
type Operation struct {
	Kind         enums.OperationKind `json:"kind"`
	Table        string              `json:"table"`
	Payload      json.RawMessage     `json:"payload,omitempty"`
	Original     json.RawMessage     `json:"original,omitempty"`
	Changeset    json.RawMessage     `json:"changeset,omitempty"`
	PartitionKey string              `json:"partition_key"`
	EnqueuedAt   time.Time           `json:"enqueued_at"`
}

func NewInsert(table, partitionKey string, payload any) (Operation, error) {
	byt, err := json.Marshal(payload)
	if err != nil {
		return Operation{}, fmt.Errorf("error marshalling %s insert: %w", table, err)
	}
	return Operation{
		Kind:         enums.OperationKindInsert,
		Table:        table,
		Payload:      byt,
		PartitionKey: partitionKey,
	}, nil
}

func NewUpdate(table, partitionKey string, original, changeset any) (Operation, error) {
	orig, err := json.Marshal(original)
	if err != nil {
		return Operation{}, fmt.Errorf("error marshalling %s original: %w", table, err)
	}
	cs, err := json.Marshal(changeset)
	if err != nil {
		return Operation{}, fmt.Errorf("error marshalling %s changeset: %w", table, err)
	}
	return Operation{
		Kind:         enums.OperationKindUpdate,
		Table:        table,
		Original:     orig,
		Changeset:    cs,
		PartitionKey: partitionKey,
	}, nil
}

// Fields encodes the operation as stream entry fields.
func (o Operation) Fields() (map[string]string, error) {
	byt, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("error marshalling operation: %w", err)
	}
	return map[string]string{
		fieldOp:    string(byt),
		fieldTable: o.Table,
		fieldKind:  o.Kind.String(),
		fieldPK:    o.PartitionKey,
	}, nil
}

// DecodeOperation reads an operation back from stream entry fields.
func DecodeOperation(fields map[string]string) (Operation, error) {
	raw, ok := fields[fieldOp]
	if !ok {
		return Operation{}, fmt.Errorf("stream entry has no %q field", fieldOp)
	}
	var o Operation
	if err := json.Unmarshal([]byte(raw), &o); err != nil {
		return Operation{}, fmt.Errorf("error unmarshalling operation: %w", err)
	}
	if o.Table == "" {
		return Operation{}, fmt.Errorf("operation has no table")
	}
	switch o.Kind {
	case enums.OperationKindInsert:
		if len(o.Payload) == 0 {
			return Operation{}, fmt.Errorf("insert on %s has no payload", o.Table)
		}
	case enums.OperationKindUpdate:
		if len(o.Original) == 0 || len(o.Changeset) == 0 {
			return Operation{}, fmt.Errorf("update on %s is missing its original or changeset", o.Table)
		}
	default:
		return Operation{}, fmt.Errorf("unknown operation kind %d", o.Kind)
	}
	return o, nil
}
