package domain

import "time"

type Capture struct {
	CaptureID          string    `json:"capture_id"`
	PaymentID          string    `json:"payment_id"`
	MerchantID         string    `json:"merchant_id"`
	AttemptID          string    `json:"attempt_id"`
	Status             string    `json:"status"`
	Amount             int64     `json:"amount"`
	Currency           string    `json:"currency"`
	ConnectorCaptureID string    `json:"connector_capture_id,omitempty"`
	ErrorMessage       string    `json:"error_message,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	ModifiedAt         time.Time `json:"modified_at"`
}

func (c Capture) PartitionKey() string {
	return PartitionKey(c.MerchantID, c.PaymentID)
}

func (c Capture) Field() string {
	return CaptureField(c.CaptureID)
}

func (c Capture) LookupID() string {
	return LookupID(c.MerchantID, c.CaptureID)
}

// CaptureUpdate is a changeset over a Capture.  Nil fields are left unchanged.
type CaptureUpdate struct {
	Status             *string   `json:"status,omitempty"`
	ConnectorCaptureID *string   `json:"connector_capture_id,omitempty"`
	ErrorMessage       *string   `json:"error_message,omitempty"`
	ModifiedAt         time.Time `json:"modified_at"`
}

func (u CaptureUpdate) Apply(prior Capture) Capture {
	next := prior
	if u.Status != nil {
		next.Status = *u.Status
	}
	if u.ConnectorCaptureID != nil {
		next.ConnectorCaptureID = *u.ConnectorCaptureID
	}
	if u.ErrorMessage != nil {
		next.ErrorMessage = *u.ErrorMessage
	}
	if !u.ModifiedAt.IsZero() {
		next.ModifiedAt = u.ModifiedAt
	}
	return next
}
