// Package workflows holds the workflows run by the scheduler consumer.
package workflows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/paysync/paysync/pkg/domain"
	"github.com/paysync/paysync/pkg/logger"
	"github.com/paysync/paysync/pkg/scheduler"
	"github.com/paysync/paysync/pkg/storage"
)

const (
	RunnerPaymentSync = "PAYMENT_SYNC_WORKFLOW"

	BusinessStatusSynced = "SYNCED"
)

// terminalAttemptStatuses are the attempt statuses a connector no longer
// changes.
var terminalAttemptStatuses = []string{
	"charged",
	"failure",
	"voided",
	"authorization_failed",
	"capture_failed",
}

// ErrInvalidTrackingData is returned when a tracker does not reference a
// payment attempt.
var ErrInvalidTrackingData = fmt.Errorf("invalid tracking data")

// AttemptFinder reads payment attempts.  storage.Store implements it.
type AttemptFinder interface {
	FindPaymentAttemptByID(ctx context.Context, merchantID, attemptID string) (domain.PaymentAttempt, error)
}

// PaymentSyncData is the tracking data of a payment sync tracker.
type PaymentSyncData struct {
	MerchantID    string `json:"merchant_id"`
	PaymentID     string `json:"payment_id"`
	AttemptID     string `json:"attempt_id"`
	PaymentMethod string `json:"payment_method,omitempty"`
}

// PaymentSync polls a payment attempt on the tracker's retry schedule until
// it reaches a terminal status.
func PaymentSync(attempts AttemptFinder) scheduler.Workflow {
	return scheduler.RetryingWorkflow{
		BusinessStatus: BusinessStatusSynced,
		Retryable: func(err error) bool {
			return !errors.Is(err, ErrInvalidTrackingData) && !errors.Is(err, storage.ErrNotFound)
		},
		Step: func(ctx context.Context, p domain.ProcessTracker) (bool, error) {
			var data PaymentSyncData
			if err := json.Unmarshal(p.TrackingData, &data); err != nil {
				return false, fmt.Errorf("%w: %w", ErrInvalidTrackingData, err)
			}
			if data.MerchantID == "" || data.AttemptID == "" {
				return false, fmt.Errorf("%w: merchant_id and attempt_id are required", ErrInvalidTrackingData)
			}

			attempt, err := attempts.FindPaymentAttemptByID(ctx, data.MerchantID, data.AttemptID)
			if err != nil {
				return false, err
			}

			done := slices.Contains(terminalAttemptStatuses, attempt.Status)
			logger.StdlibLogger(ctx).Debug("synced payment attempt",
				"tracker_id", p.ID,
				"attempt_id", attempt.AttemptID,
				"status", attempt.Status,
				"done", done,
			)
			return done, nil
		},
	}
}

// Registry returns every workflow known to the consumer, keyed by runner.
func Registry(attempts AttemptFinder) scheduler.Workflows {
	return scheduler.Workflows{
		RunnerPaymentSync: PaymentSync(attempts),
	}
}
