package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessages(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"evaluation", &EvaluationError{Err: cause}, "variable evaluation failed: boom"},
		{"evaluation with field", &EvaluationError{Field: "url", Err: cause}, "variable evaluation of url failed: boom"},
		{"rejection", &HookRejectionError{Err: cause}, "pre-request operation rejected: boom"},
		{"rejection with hook", &HookRejectionError{Hook: "gate", Err: cause}, "pre-request operation of gate rejected: boom"},
		{"cancellation", NewCancellationError("stop"), "stop"},
		{"cancellation default", NewCancellationError(""), DefaultCancelReason},
		{"cancellation zero value", &CancellationError{}, DefaultCancelReason},
		{"transport", &TransportError{Err: cause}, "transport error: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestErrorPredicates(t *testing.T) {
	cause := errors.New("boom")
	wrap := func(err error) error { return fmt.Errorf("finalize: %w", err) }

	tests := []struct {
		name           string
		err            error
		cancellation   bool
		hookRejection  bool
		transportError bool
	}{
		{"cancellation", wrap(NewCancellationError("x")), true, false, false},
		{"rejection", wrap(&HookRejectionError{Err: cause}), false, true, false},
		{"transport", wrap(&TransportError{Err: cause}), false, false, true},
		{"plain", cause, false, false, false},
		{"nil", nil, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCancellation(tt.err); got != tt.cancellation {
				t.Errorf("IsCancellation() = %v", got)
			}
			if got := IsHookRejection(tt.err); got != tt.hookRejection {
				t.Errorf("IsHookRejection() = %v", got)
			}
			if got := IsTransportError(tt.err); got != tt.transportError {
				t.Errorf("IsTransportError() = %v", got)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")

	for _, err := range []error{
		&EvaluationError{Err: cause},
		&HookRejectionError{Err: cause},
		&TransportError{Err: cause},
	} {
		if !errors.Is(err, cause) {
			t.Errorf("%T does not unwrap to its cause", err)
		}
	}
}
