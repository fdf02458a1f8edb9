package crawler

import (
	"context"
	"errors"
)

// Error taxonomy. Adapters and sinks wrap these so callers can use errors.Is.
var (
	// ErrSoftMiss means the source confirmed the record has no detail.
	ErrSoftMiss = errors.New("soft miss")
	// ErrTransientFetch covers network failures, unexpected statuses and
	// malformed envelopes.
	ErrTransientFetch = errors.New("transient fetch failure")
	// ErrPageParse means a list page did not have the expected shape.
	ErrPageParse = errors.New("page parse failure")
	// ErrPersistence covers schema and batch failures while loading an era.
	ErrPersistence = errors.New("persistence failure")
	// ErrObjectNotFound means a blob store holds nothing at the path.
	ErrObjectNotFound = errors.New("object not found")
)

// IsSoftMiss reports whether err is a soft miss.
func IsSoftMiss(err error) bool {
	return errors.Is(err, ErrSoftMiss)
}

// IsRetryable reports whether err is a hard failure worth another attempt.
func IsRetryable(err error) bool {
	if err == nil || IsSoftMiss(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
