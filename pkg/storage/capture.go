package storage

import (
	"context"

	"github.com/paysync/paysync/pkg/domain"
	"github.com/paysync/paysync/pkg/enums"
)

func (s *Store) InsertCapture(ctx context.Context, c domain.Capture) (domain.Capture, error) {
	now := domain.Now(s.clock)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.ModifiedAt.IsZero() {
		c.ModifiedAt = now
	}

	if s.Scheme(c.MerchantID) == enums.StorageSchemePostgresOnly {
		return c, sqlErr(s.db.InsertCapture(ctx, c))
	}
	return c, insertKV(ctx, s, domain.TableCaptures, c)
}

func (s *Store) UpdateCapture(ctx context.Context, prior domain.Capture, u domain.CaptureUpdate) (domain.Capture, error) {
	if u.ModifiedAt.IsZero() {
		u.ModifiedAt = domain.Now(s.clock)
	}

	if s.Scheme(prior.MerchantID) == enums.StorageSchemePostgresOnly {
		next, err := s.db.UpdateCapture(ctx, prior, u)
		return next, sqlErr(err)
	}

	next := u.Apply(prior)
	if err := updateKV(ctx, s, domain.TableCaptures, prior, next, u); err != nil {
		return prior, err
	}
	return next, nil
}

func (s *Store) FindCaptureByID(ctx context.Context, merchantID, captureID string) (domain.Capture, error) {
	find := func(ctx context.Context) (domain.Capture, error) {
		return s.db.FindCapture(ctx, merchantID, captureID)
	}

	if s.Scheme(merchantID) == enums.StorageSchemePostgresOnly {
		c, err := find(ctx)
		return c, sqlErr(err)
	}
	return findKV(ctx, s, domain.TableCaptures, domain.LookupID(merchantID, captureID), find)
}

// FindCapturesByAttempt returns the captures of one attempt.  Captures are
// cached under their payment's partition, so the payment id is required.
func (s *Store) FindCapturesByAttempt(ctx context.Context, merchantID, paymentID, attemptID string) ([]domain.Capture, error) {
	find := func(ctx context.Context) ([]domain.Capture, error) {
		return s.db.FindCapturesByAttempt(ctx, merchantID, attemptID)
	}

	if s.Scheme(merchantID) == enums.StorageSchemePostgresOnly {
		return find(ctx)
	}
	keep := func(c domain.Capture) bool { return c.AttemptID == attemptID }
	return listKV(ctx, s, domain.TableCaptures, domain.PartitionKey(merchantID, paymentID), domain.CaptureField(""), keep, find)
}
