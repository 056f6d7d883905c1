package photolala

import (
	"context"
	"errors"
	"fmt"
)

// TransientError marks a failure worth retrying: network timeouts,
// throttling, flaky connectivity. The retry policy unwraps it; everything
// else is treated as permanent.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retriable. Returns nil for nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err (or anything it wraps) is retriable.
// Context cancellation is never transient: the caller gave up.
func IsTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var te *TransientError
	return errors.As(err, &te)
}

// ArchivedError signals that an object's bytes live in the cold archive
// tier and cannot be read until thawed. It is a distinguishable "needs
// thaw" condition, not a generic failure, and callers must fail fast on it
// rather than block.
type ArchivedError struct {
	ContentHash string
}

func (e *ArchivedError) Error() string {
	return fmt.Sprintf("content %s is archived and needs thaw before reading", e.ContentHash)
}

// IsArchived reports whether err indicates an archived, unreadable object.
func IsArchived(err error) bool {
	var ae *ArchivedError
	return errors.As(err, &ae)
}

// QuotaExceededError is returned when a cache write cannot fit the
// configured byte quota even after eviction.
type QuotaExceededError struct {
	Requested int64
	Quota     int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("artifact of %d bytes exceeds cache quota of %d bytes", e.Requested, e.Quota)
}

// ErrNotFound is returned when an object or record does not exist.
var ErrNotFound = errors.New("not found")

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
