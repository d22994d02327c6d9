// Package domain holds the transactional entities persisted by paysync and
// the changesets applied to them.
package domain

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	TablePaymentAttempt = "payment_attempt"
	TableCaptures       = "captures"
	TableReverseLookup  = "reverse_lookup"
	TableProcessTracker = "process_tracker"
)

// PartitionKey is the KV partition holding every entity of one payment.
func PartitionKey(merchantID, paymentID string) string {
	return fmt.Sprintf("%s_%s", merchantID, paymentID)
}

// LookupID is the reverse lookup id of an entity owned by a merchant.
func LookupID(merchantID, entityID string) string {
	return fmt.Sprintf("%s_%s", merchantID, entityID)
}

func AttemptField(attemptID string) string {
	return "pa_" + attemptID
}

func CaptureField(captureID string) string {
	return "cpt_" + captureID
}

// Now returns the clock's time in UTC at the millisecond precision used by
// every store.
func Now(c clockwork.Clock) time.Time {
	return c.Now().UTC().Truncate(time.Millisecond)
}

// ReverseLookup maps a secondary id to the KV location of an entity.
type ReverseLookup struct {
	LookupID     string `json:"lookup_id"`
	PartitionKey string `json:"pk_id"`
	Field        string `json:"sk_id"`
	SourceTable  string `json:"source"`
	UpdatedBy    string `json:"updated_by"`
}
