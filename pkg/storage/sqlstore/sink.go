package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paysync/paysync/pkg/domain"
	"github.com/paysync/paysync/pkg/drainer"
)

// ErrStaleUpdate is returned by conditional updates whose original row is no
// longer current.
var ErrStaleUpdate = drainer.ErrStaleUpdate

// ApplyInsert replays a drainer insert.  Rows which already exist are treated
// as applied.
func (s *Store) ApplyInsert(ctx context.Context, table string, payload json.RawMessage) error {
	var err error
	switch table {
	case domain.TablePaymentAttempt:
		var p domain.PaymentAttempt
		if err = decode(payload, &p); err == nil {
			err = s.InsertPaymentAttempt(ctx, p)
		}
	case domain.TableCaptures:
		var c domain.Capture
		if err = decode(payload, &c); err == nil {
			err = s.InsertCapture(ctx, c)
		}
	case domain.TableReverseLookup:
		var l domain.ReverseLookup
		if err = decode(payload, &l); err == nil {
			err = s.InsertReverseLookup(ctx, l)
		}
	default:
		return fmt.Errorf("%w: unknown table for insert: %s", drainer.ErrUnappliable, table)
	}

	if errors.Is(err, ErrDuplicate) {
		return nil
	}
	return err
}

// ApplyUpdate replays a drainer update conditional on original.
func (s *Store) ApplyUpdate(ctx context.Context, table string, original, changeset json.RawMessage) error {
	switch table {
	case domain.TablePaymentAttempt:
		var (
			p domain.PaymentAttempt
			u domain.PaymentAttemptUpdate
		)
		if err := decodeUpdate(original, changeset, &p, &u); err != nil {
			return err
		}
		_, err := s.UpdatePaymentAttempt(ctx, p, u)
		return err
	case domain.TableCaptures:
		var (
			c domain.Capture
			u domain.CaptureUpdate
		)
		if err := decodeUpdate(original, changeset, &c, &u); err != nil {
			return err
		}
		_, err := s.UpdateCapture(ctx, c, u)
		return err
	default:
		return fmt.Errorf("%w: unknown table for update: %s", drainer.ErrUnappliable, table)
	}
}

func decodeUpdate(original, changeset json.RawMessage, o, u any) error {
	if err := json.Unmarshal(original, o); err != nil {
		return fmt.Errorf("%w: error decoding original: %w", drainer.ErrUnappliable, err)
	}
	if err := json.Unmarshal(changeset, u); err != nil {
		return fmt.Errorf("%w: error decoding changeset: %w", drainer.ErrUnappliable, err)
	}
	return nil
}

func decode(payload json.RawMessage, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: error decoding payload: %w", drainer.ErrUnappliable, err)
	}
	return nil
}
