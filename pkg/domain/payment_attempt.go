package domain

import "time"

type PaymentAttempt struct {
	AttemptID              string    `json:"attempt_id"`
	PaymentID              string    `json:"payment_id"`
	MerchantID             string    `json:"merchant_id"`
	Status                 string    `json:"status"`
	Amount                 int64     `json:"amount"`
	Currency               string    `json:"currency"`
	Connector              string    `json:"connector,omitempty"`
	PaymentMethod          string    `json:"payment_method,omitempty"`
	ConnectorTransactionID string    `json:"connector_transaction_id,omitempty"`
	ErrorMessage           string    `json:"error_message,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
	ModifiedAt             time.Time `json:"modified_at"`
}

func (p PaymentAttempt) PartitionKey() string {
	return PartitionKey(p.MerchantID, p.PaymentID)
}

func (p PaymentAttempt) Field() string {
	return AttemptField(p.AttemptID)
}

func (p PaymentAttempt) LookupID() string {
	return LookupID(p.MerchantID, p.AttemptID)
}

// PaymentAttemptUpdate is a changeset over a PaymentAttempt.  Nil fields are
// left unchanged.
type PaymentAttemptUpdate struct {
	Status                 *string   `json:"status,omitempty"`
	Amount                 *int64    `json:"amount,omitempty"`
	Connector              *string   `json:"connector,omitempty"`
	ConnectorTransactionID *string   `json:"connector_transaction_id,omitempty"`
	ErrorMessage           *string   `json:"error_message,omitempty"`
	ModifiedAt             time.Time `json:"modified_at"`
}

// Apply returns prior with the changeset applied.  prior is not modified.
func (u PaymentAttemptUpdate) Apply(prior PaymentAttempt) PaymentAttempt {
	next := prior
	if u.Status != nil {
		next.Status = *u.Status
	}
	if u.Amount != nil {
		next.Amount = *u.Amount
	}
	if u.Connector != nil {
		next.Connector = *u.Connector
	}
	if u.ConnectorTransactionID != nil {
		next.ConnectorTransactionID = *u.ConnectorTransactionID
	}
	if u.ErrorMessage != nil {
		next.ErrorMessage = *u.ErrorMessage
	}
	if !u.ModifiedAt.IsZero() {
		next.ModifiedAt = u.ModifiedAt
	}
	return next
}
