package domain

import (
	"encoding/json"
	"time"

	"github.com/paysync/paysync/pkg/enums"
)

// ProcessTracker is a schedulable background task.  Its persisted fields are
// the contract other subsystems rely on when scheduling work.
type ProcessTracker struct {
	ID             string                     `json:"id"`
	Name           string                     `json:"name"`
	Tag            []string                   `json:"tag"`
	Runner         string                     `json:"runner"`
	RetryCount     int                        `json:"retry_count"`
	ScheduleTime   time.Time                  `json:"schedule_time"`
	TrackingData   json.RawMessage            `json:"tracking_data"`
	BusinessStatus string                     `json:"business_status"`
	Status         enums.ProcessTrackerStatus `json:"status"`
	CreatedAt      time.Time                  `json:"created_at"`
	UpdatedAt      time.Time                  `json:"updated_at"`
}

// ProcessTrackerUpdate is a changeset over a ProcessTracker.  Nil fields are
// left unchanged.
type ProcessTrackerUpdate struct {
	Status         *enums.ProcessTrackerStatus
	BusinessStatus *string
	RetryCount     *int
	ScheduleTime   *time.Time
	TrackingData   json.RawMessage
}

// TrackingRef is the part of a tracker's tracking data used to resolve its
// retry schedule.
type TrackingRef struct {
	MerchantID    string `json:"merchant_id"`
	PaymentID     string `json:"payment_id,omitempty"`
	PaymentMethod string `json:"payment_method,omitempty"`
}

// Ref decodes the tracker's tracking data.  Unparseable data yields an empty
// ref, which resolves to the default retry schedule.
func (p ProcessTracker) Ref() TrackingRef {
	var ref TrackingRef
	if len(p.TrackingData) > 0 {
		_ = json.Unmarshal(p.TrackingData, &ref)
	}
	return ref
}
