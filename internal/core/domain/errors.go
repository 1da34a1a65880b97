package domain

import (
	"errors"
	"fmt"
)

// DefaultCancelReason is reported when a request is cancelled without a
// reason.
const DefaultCancelReason = "The request has been canceled"

var (
	// ErrCertificateNotFound is returned by certificate stores for unknown ids.
	ErrCertificateNotFound = errors.New("client certificate not found")

	// ErrHookTimeout marks a pre-request barrier that gave up waiting on its
	// pending operations. It never reaches the caller; the request proceeds.
	ErrHookTimeout = errors.New("pre-request handlers timed out")

	// ErrSuperseded marks an entry replaced by a resubmission of its id.
	ErrSuperseded = errors.New("request superseded by a newer submission")
)

// EvaluationError reports a variable evaluation failure. The pipeline
// recovers from it and continues with the unsubstituted request.
type EvaluationError struct {
	Field string
	Err   error
}

func (e *EvaluationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("variable evaluation failed: %v", e.Err)
	}
	return fmt.Sprintf("variable evaluation of %s failed: %v", e.Field, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// HookRejectionError is the terminal error of a request whose pending
// pre-request operation failed.
type HookRejectionError struct {
	Hook string
	Err  error
}

func (e *HookRejectionError) Error() string {
	if e.Hook == "" {
		return fmt.Sprintf("pre-request operation rejected: %v", e.Err)
	}
	return fmt.Sprintf("pre-request operation of %s rejected: %v", e.Hook, e.Err)
}

func (e *HookRejectionError) Unwrap() error { return e.Err }

// CancellationError is the terminal error of a request cancelled by a
// pre-request participant or by an explicit abort.
type CancellationError struct {
	Reason string
}

func (e *CancellationError) Error() string {
	if e.Reason == "" {
		return DefaultCancelReason
	}
	return e.Reason
}

// NewCancellationError returns a CancellationError, substituting the default
// reason for an empty one.
func NewCancellationError(reason string) *CancellationError {
	if reason == "" {
		reason = DefaultCancelReason
	}
	return &CancellationError{Reason: reason}
}

// TransportError wraps a failure reported by the transport.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsCancellation reports whether err is a CancellationError.
func IsCancellation(err error) bool {
	var ce *CancellationError
	return errors.As(err, &ce)
}

// IsHookRejection reports whether err is a HookRejectionError.
func IsHookRejection(err error) bool {
	var he *HookRejectionError
	return errors.As(err, &he)
}

// IsTransportError reports whether err is a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
