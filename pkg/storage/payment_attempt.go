package storage

import (
	"context"

	"github.com/paysync/paysync/pkg/domain"
	"github.com/paysync/paysync/pkg/enums"
)

// InsertPaymentAttempt creates an attempt.  ErrDuplicate means another
// writer already created it.
func (s *Store) InsertPaymentAttempt(ctx context.Context, p domain.PaymentAttempt) (domain.PaymentAttempt, error) {
	now := domain.Now(s.clock)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.ModifiedAt.IsZero() {
		p.ModifiedAt = now
	}

	if s.Scheme(p.MerchantID) == enums.StorageSchemePostgresOnly {
		return p, sqlErr(s.db.InsertPaymentAttempt(ctx, p))
	}
	return p, insertKV(ctx, s, domain.TablePaymentAttempt, p)
}

// UpdatePaymentAttempt applies u to prior, the snapshot the caller read, and
// returns the updated attempt.
func (s *Store) UpdatePaymentAttempt(ctx context.Context, prior domain.PaymentAttempt, u domain.PaymentAttemptUpdate) (domain.PaymentAttempt, error) {
	if u.ModifiedAt.IsZero() {
		u.ModifiedAt = domain.Now(s.clock)
	}

	if s.Scheme(prior.MerchantID) == enums.StorageSchemePostgresOnly {
		next, err := s.db.UpdatePaymentAttempt(ctx, prior, u)
		return next, sqlErr(err)
	}

	next := u.Apply(prior)
	if err := updateKV(ctx, s, domain.TablePaymentAttempt, prior, next, u); err != nil {
		return prior, err
	}
	return next, nil
}

// FindPaymentAttemptByID finds an attempt by its own id.
func (s *Store) FindPaymentAttemptByID(ctx context.Context, merchantID, attemptID string) (domain.PaymentAttempt, error) {
	find := func(ctx context.Context) (domain.PaymentAttempt, error) {
		return s.db.FindPaymentAttempt(ctx, merchantID, attemptID)
	}

	if s.Scheme(merchantID) == enums.StorageSchemePostgresOnly {
		p, err := find(ctx)
		return p, sqlErr(err)
	}
	return findKV(ctx, s, domain.TablePaymentAttempt, domain.LookupID(merchantID, attemptID), find)
}

// FindPaymentAttemptsByPayment returns the attempts of a payment ordered by
// attempt id.
func (s *Store) FindPaymentAttemptsByPayment(ctx context.Context, merchantID, paymentID string) ([]domain.PaymentAttempt, error) {
	find := func(ctx context.Context) ([]domain.PaymentAttempt, error) {
		return s.db.FindPaymentAttemptsByPayment(ctx, merchantID, paymentID)
	}

	if s.Scheme(merchantID) == enums.StorageSchemePostgresOnly {
		return find(ctx)
	}
	return listKV(ctx, s, domain.TablePaymentAttempt, domain.PartitionKey(merchantID, paymentID), domain.AttemptField(""), nil, find)
}
