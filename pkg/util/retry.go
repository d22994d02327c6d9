package util

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/paysync/paysync/pkg/logger"
)

var ErrMaxAttemptReached = errors.New("maximum retry attempts reached")

// Retryable is a unit of work that may be attempted more than once.
type Retryable[T any] func(ctx context.Context) (T, error)

// RetryConf bounds how a Retryable is re-attempted.
type RetryConf struct {
	MaxAttempts    int           `json:"max_attempts"`
	InitialBackoff time.Duration `json:"initial_backoff"`
	MaxBackoff     time.Duration `json:"max_backoff"`
	BackoffFactor  int           `json:"backoff_factor"`
	// ShouldRetry reports whether err is worth another attempt.  Nil retries
	// every error.
	ShouldRetry func(error) bool `json:"-"`
}

type RetryOpt func(rc *RetryConf)

func WithMaxAttempts(i int) RetryOpt {
	return func(rc *RetryConf) {
		rc.MaxAttempts = i
	}
}

func WithInitialBackoff(dur time.Duration) RetryOpt {
	return func(rc *RetryConf) {
		rc.InitialBackoff = dur
	}
}

func WithMaxBackoff(dur time.Duration) RetryOpt {
	return func(rc *RetryConf) {
		rc.MaxBackoff = dur
	}
}

func WithShouldRetry(fn func(error) bool) RetryOpt {
	return func(rc *RetryConf) {
		rc.ShouldRetry = fn
	}
}

func NewRetryConf(opts ...RetryOpt) RetryConf {
	conf := RetryConf{
		MaxAttempts:    3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     time.Second,
		BackoffFactor:  2,
	}
	for _, apply := range opts {
		apply(&conf)
	}
	if conf.MaxAttempts < 1 {
		conf.MaxAttempts = 1
	}
	return conf
}

// WithRetry runs fn until it succeeds, returns a non-retryable error, the
// attempts run out, or ctx is done.  action names the work in logs.
func WithRetry[T any](ctx context.Context, action string, fn Retryable[T], conf RetryConf) (T, error) {
	var (
		zero    T
		lastErr error
	)

	l := logger.StdlibLogger(ctx).With("action", action)
	backoff := conf.InitialBackoff

	for attempt := 1; attempt <= conf.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if conf.ShouldRetry != nil && !conf.ShouldRetry(err) {
			return zero, err
		}
		if attempt == conf.MaxAttempts {
			break
		}

		l.Warn("retrying action", "error", err, "attempt", attempt)

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("%s: %w (last error: %w)", action, ctx.Err(), lastErr)
		}

		backoff *= time.Duration(conf.BackoffFactor)
		if backoff > conf.MaxBackoff {
			backoff = conf.MaxBackoff
		}
	}

	l.Error("action failed after retries", "error", lastErr, "attempts", conf.MaxAttempts)
	return zero, fmt.Errorf("%s: %w: %w", action, ErrMaxAttemptReached, lastErr)
}
