package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/doug-martin/goqu/v9"
	"github.com/paysync/paysync/pkg/domain"
)

var (
	attemptColumns = []any{
		"merchant_id", "attempt_id", "payment_id", "status", "amount", "currency",
		"connector", "payment_method", "connector_transaction_id", "error_message",
		"created_at", "modified_at",
	}
	captureColumns = []any{
		"merchant_id", "capture_id", "payment_id", "attempt_id", "status", "amount",
		"currency", "connector_capture_id", "error_message", "created_at", "modified_at",
	}
	lookupColumns = []any{"lookup_id", "pk_id", "sk_id", "source", "updated_by"}
)

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

type scanner interface {
	Scan(dest ...any) error
}

// insert runs an insert which skips rows whose key already exists, returning
// ErrDuplicate when nothing was written.
func (s *Store) insert(ctx context.Context, table string, rec sq.Record) error {
	query, args, err := s.dialect().
		Insert(table).
		Rows(rec).
		OnConflict(sq.DoNothing()).
		ToSQL()
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("error inserting into %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDuplicate
	}
	return nil
}

// update applies rec to the row matching where, returning the number of rows
// changed.
func (s *Store) update(ctx context.Context, table string, rec sq.Record, where ...sq.Expression) (int64, error) {
	query, args, err := s.dialect().
		Update(table).
		Set(rec).
		Where(where...).
		ToSQL()
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("error updating %s: %w", table, err)
	}
	return res.RowsAffected()
}

func attemptRecord(p domain.PaymentAttempt) sq.Record {
	return sq.Record{
		"merchant_id":              p.MerchantID,
		"attempt_id":               p.AttemptID,
		"payment_id":               p.PaymentID,
		"status":                   p.Status,
		"amount":                   p.Amount,
		"currency":                 p.Currency,
		"connector":                p.Connector,
		"payment_method":           p.PaymentMethod,
		"connector_transaction_id": p.ConnectorTransactionID,
		"error_message":            p.ErrorMessage,
		"created_at":               p.CreatedAt.UnixMilli(),
		"modified_at":              p.ModifiedAt.UnixMilli(),
	}
}

func scanAttempt(row scanner) (domain.PaymentAttempt, error) {
	var (
		p                 domain.PaymentAttempt
		created, modified int64
	)
	err := row.Scan(
		&p.MerchantID, &p.AttemptID, &p.PaymentID, &p.Status, &p.Amount, &p.Currency,
		&p.Connector, &p.PaymentMethod, &p.ConnectorTransactionID, &p.ErrorMessage,
		&created, &modified,
	)
	p.CreatedAt = fromMillis(created)
	p.ModifiedAt = fromMillis(modified)
	return p, err
}

// InsertPaymentAttempt returns ErrDuplicate if the attempt exists.
func (s *Store) InsertPaymentAttempt(ctx context.Context, p domain.PaymentAttempt) error {
	return s.insert(ctx, domain.TablePaymentAttempt, attemptRecord(p))
}

// UpdatePaymentAttempt applies u to original, conditional on the stored row
// still being original.  ErrStaleUpdate is returned otherwise.
func (s *Store) UpdatePaymentAttempt(ctx context.Context, original domain.PaymentAttempt, u domain.PaymentAttemptUpdate) (domain.PaymentAttempt, error) {
	next := u.Apply(original)
	rec := attemptRecord(next)
	delete(rec, "merchant_id")
	delete(rec, "attempt_id")
	delete(rec, "created_at")

	n, err := s.update(ctx, domain.TablePaymentAttempt, rec,
		sq.C("merchant_id").Eq(original.MerchantID),
		sq.C("attempt_id").Eq(original.AttemptID),
		sq.C("modified_at").Eq(original.ModifiedAt.UnixMilli()),
	)
	if err != nil {
		return original, err
	}
	if n == 0 {
		return original, fmt.Errorf("%w: payment attempt %s", ErrStaleUpdate, original.AttemptID)
	}
	return next, nil
}

func (s *Store) FindPaymentAttempt(ctx context.Context, merchantID, attemptID string) (domain.PaymentAttempt, error) {
	query, args, err := s.dialect().
		From(domain.TablePaymentAttempt).
		Select(attemptColumns...).
		Where(sq.C("merchant_id").Eq(merchantID), sq.C("attempt_id").Eq(attemptID)).
		ToSQL()
	if err != nil {
		return domain.PaymentAttempt{}, err
	}

	p, err := scanAttempt(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PaymentAttempt{}, ErrNotFound
	}
	return p, err
}

func (s *Store) FindPaymentAttemptsByPayment(ctx context.Context, merchantID, paymentID string) ([]domain.PaymentAttempt, error) {
	query, args, err := s.dialect().
		From(domain.TablePaymentAttempt).
		Select(attemptColumns...).
		Where(sq.C("merchant_id").Eq(merchantID), sq.C("payment_id").Eq(paymentID)).
		Order(sq.C("attempt_id").Asc()).
		ToSQL()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PaymentAttempt
	for rows.Next() {
		p, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func captureRecord(c domain.Capture) sq.Record {
	return sq.Record{
		"merchant_id":          c.MerchantID,
		"capture_id":           c.CaptureID,
		"payment_id":           c.PaymentID,
		"attempt_id":           c.AttemptID,
		"status":               c.Status,
		"amount":               c.Amount,
		"currency":             c.Currency,
		"connector_capture_id": c.ConnectorCaptureID,
		"error_message":        c.ErrorMessage,
		"created_at":           c.CreatedAt.UnixMilli(),
		"modified_at":          c.ModifiedAt.UnixMilli(),
	}
}

func scanCapture(row scanner) (domain.Capture, error) {
	var (
		c                 domain.Capture
		created, modified int64
	)
	err := row.Scan(
		&c.MerchantID, &c.CaptureID, &c.PaymentID, &c.AttemptID, &c.Status, &c.Amount,
		&c.Currency, &c.ConnectorCaptureID, &c.ErrorMessage, &created, &modified,
	)
	c.CreatedAt = fromMillis(created)
	c.ModifiedAt = fromMillis(modified)
	return c, err
}

// InsertCapture returns ErrDuplicate if the capture exists.
func (s *Store) InsertCapture(ctx context.Context, c domain.Capture) error {
	return s.insert(ctx, domain.TableCaptures, captureRecord(c))
}

// UpdateCapture applies u to original, conditional on the stored row still
// being original.  ErrStaleUpdate is returned otherwise.
func (s *Store) UpdateCapture(ctx context.Context, original domain.Capture, u domain.CaptureUpdate) (domain.Capture, error) {
	next := u.Apply(original)
	rec := captureRecord(next)
	delete(rec, "merchant_id")
	delete(rec, "capture_id")
	delete(rec, "created_at")

	n, err := s.update(ctx, domain.TableCaptures, rec,
		sq.C("merchant_id").Eq(original.MerchantID),
		sq.C("capture_id").Eq(original.CaptureID),
		sq.C("modified_at").Eq(original.ModifiedAt.UnixMilli()),
	)
	if err != nil {
		return original, err
	}
	if n == 0 {
		return original, fmt.Errorf("%w: capture %s", ErrStaleUpdate, original.CaptureID)
	}
	return next, nil
}

func (s *Store) FindCapture(ctx context.Context, merchantID, captureID string) (domain.Capture, error) {
	query, args, err := s.dialect().
		From(domain.TableCaptures).
		Select(captureColumns...).
		Where(sq.C("merchant_id").Eq(merchantID), sq.C("capture_id").Eq(captureID)).
		ToSQL()
	if err != nil {
		return domain.Capture{}, err
	}

	c, err := scanCapture(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Capture{}, ErrNotFound
	}
	return c, err
}

func (s *Store) FindCapturesByAttempt(ctx context.Context, merchantID, attemptID string) ([]domain.Capture, error) {
	query, args, err := s.dialect().
		From(domain.TableCaptures).
		Select(captureColumns...).
		Where(sq.C("merchant_id").Eq(merchantID), sq.C("attempt_id").Eq(attemptID)).
		Order(sq.C("capture_id").Asc()).
		ToSQL()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Capture
	for rows.Next() {
		c, err := scanCapture(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsertReverseLookup records a lookup.  An existing lookup is left as is.
func (s *Store) InsertReverseLookup(ctx context.Context, l domain.ReverseLookup) error {
	return s.insert(ctx, domain.TableReverseLookup, sq.Record{
		"lookup_id":  l.LookupID,
		"pk_id":      l.PartitionKey,
		"sk_id":      l.Field,
		"source":     l.SourceTable,
		"updated_by": l.UpdatedBy,
	})
}

func (s *Store) FindReverseLookup(ctx context.Context, lookupID string) (domain.ReverseLookup, error) {
	query, args, err := s.dialect().
		From(domain.TableReverseLookup).
		Select(lookupColumns...).
		Where(sq.C("lookup_id").Eq(lookupID)).
		ToSQL()
	if err != nil {
		return domain.ReverseLookup{}, err
	}

	var l domain.ReverseLookup
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&l.LookupID, &l.PartitionKey, &l.Field, &l.SourceTable, &l.UpdatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ReverseLookup{}, ErrNotFound
	}
	return l, err
}
