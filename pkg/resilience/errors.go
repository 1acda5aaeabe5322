package resilience

import (
	"context"
	"errors"
	"net"
)

var (
	// ErrUnavailable is returned when the circuit is open or the retry budget
	// for a call is exhausted. Call sites treat it the same as an empty result.
	ErrUnavailable = errors.New("dependency unavailable")

	// ErrTimeout marks an attempt that exceeded its per-attempt deadline.
	// It is retried like any other transient failure but stays distinguishable
	// from a caller-initiated cancellation.
	ErrTimeout = errors.New("attempt timed out")
)

type transientError struct {
	err error
}

func (e *transientError) Error() string   { return e.err.Error() }
func (e *transientError) Unwrap() error   { return e.err }
func (e *transientError) Transient() bool { return true }

// Transient marks err as retryable. Providers wrap network and HTTP-class
// failures with it so the retry policy does not have to know every provider's
// error taxonomy.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err should be retried. Caller cancellation is
// never transient; attempt timeouts always are.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var marker interface{ Transient() bool }
	if errors.As(err, &marker) {
		return marker.Transient()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}
