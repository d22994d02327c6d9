package scheduler

import (
	"time"

	"github.com/paysync/paysync/pkg/config"
)

// GetDelay returns the delay in seconds before retry number retryCount.
// Frequencies form a step function: the first Count retries wait Delay, the
// next bucket's Count retries wait its Delay, and so on.  It returns false
// for retryCount <= 0 and once every bucket is used up.
func GetDelay(retryCount int, frequencies []config.Frequency) (int, bool) {
	if retryCount <= 0 {
		return 0, false
	}

	cumulative := 0
	for _, f := range frequencies {
		cumulative += f.Count
		if retryCount <= cumulative {
			return f.Delay, true
		}
	}
	return 0, false
}

// RetryResolver selects the retry mapping of a task.  Merchant overrides win
// over payment method overrides, which win over the default mapping.
type RetryResolver struct {
	conf config.Retry
}

func NewRetryResolver(conf config.Retry) *RetryResolver {
	return &RetryResolver{conf: conf}
}

// Mapping returns the retry mapping for a merchant and payment method.
func (r *RetryResolver) Mapping(merchantID, paymentMethod string) config.RetryMapping {
	if m, ok := r.conf.Merchants[merchantID]; ok && merchantID != "" {
		return m
	}
	if m, ok := r.conf.PaymentMethods[paymentMethod]; ok && paymentMethod != "" {
		return m
	}
	return r.conf.Default
}

// Resolve returns the delay before the given retry.  Zero retries resolves to
// the mapping's start_after.
func (r *RetryResolver) Resolve(merchantID, paymentMethod string, retryCount int) (time.Duration, bool) {
	m := r.Mapping(merchantID, paymentMethod)
	if retryCount == 0 {
		return time.Duration(m.StartAfter) * time.Second, true
	}
	delay, ok := GetDelay(retryCount, m.Frequencies)
	if !ok {
		return 0, false
	}
	return time.Duration(delay) * time.Second, true
}

// NextScheduleTime returns when the given retry should run, or false when
// the retries are exhausted.
func (r *RetryResolver) NextScheduleTime(merchantID, paymentMethod string, retryCount int, now time.Time) (time.Time, bool) {
	delay, ok := r.Resolve(merchantID, paymentMethod, retryCount)
	if !ok {
		return time.Time{}, false
	}
	return now.Add(delay), true
}
