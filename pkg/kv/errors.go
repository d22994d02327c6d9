package kv

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateValue is returned when a conditional insert finds its
	// field, or its reverse lookup, already present.  Another writer created
	// the entity; retrying will not succeed.
	ErrDuplicateValue = fmt.Errorf("duplicate value")
	// ErrNotFound is returned when a field or lookup is not cached.
	ErrNotFound = fmt.Errorf("not found in kv")
)

// Error wraps a transport or serialization failure against the KV store.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("kv %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the operation may be retried.  Transport and
// serialization failures always may.
func (e *Error) Retryable() bool {
	return true
}

// IsRetryable reports whether err is a KV failure worth retrying.
func IsRetryable(err error) bool {
	var kerr *Error
	return errors.As(err, &kerr) && kerr.Retryable()
}
