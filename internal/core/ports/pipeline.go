// Package ports defines the interfaces between the request-logic core and its
// collaborators.
// This file contains the pre-request and response hook contracts.
package ports

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tjfontaine/polyglot-request-logic/internal/core/domain"
)

// StageType determines when a configured hook runs.
type StageType string

const (
	// StagePre runs before authorization and dispatch.
	StagePre StageType = "pre"
	// StagePost runs after a response is received.
	StagePost StageType = "post"
)

// DecisionAction is the outcome a pre-request hook asks for.
type DecisionAction string

const (
	// ActionProceed lets the request continue without waiting.
	ActionProceed DecisionAction = "proceed"
	// ActionCancel stops the request with a reason.
	ActionCancel DecisionAction = "cancel"
	// ActionDefer registers pending operations the barrier must wait on.
	ActionDefer DecisionAction = "defer"
)

// Mutation changes the request once its pending operation settled.
type Mutation func(req *domain.Request)

// Operation is an asynchronous unit of work registered by a hook. A nil
// Mutation is valid and leaves the request untouched.
type Operation func(ctx context.Context) (Mutation, error)

// Deferral is a pending operation with an optional timeout hint.
type Deferral struct {
	Name string
	Run  Operation
	// Timeout is nil when the operation declares no hint. A hint of exactly
	// zero disables the barrier timeout altogether.
	Timeout *time.Duration
}

// WithTimeout returns a copy of d declaring the timeout hint t.
func (d Deferral) WithTimeout(t time.Duration) Deferral {
	d.Timeout = &t
	return d
}

// Decision is returned by a PreRequestHook.
type Decision struct {
	Action   DecisionAction
	Reason   string
	Deferred []Deferral
}

// Proceed returns a decision that lets the request continue.
func Proceed() Decision {
	return Decision{Action: ActionProceed}
}

// Cancel returns a decision that stops the request. An empty reason is
// replaced by domain.DefaultCancelReason.
func Cancel(reason string) Decision {
	return Decision{Action: ActionCancel, Reason: reason}
}

// Defer returns a decision registering the given pending operations.
func Defer(ops ...Deferral) Decision {
	return Decision{Action: ActionDefer, Deferred: ops}
}

// Op wraps fn as an unnamed Deferral without a timeout hint.
func Op(fn Operation) Deferral {
	return Deferral{Run: fn}
}

// PreRequestHook observes a request after variable substitution and before
// authorization. It may mutate the request directly while it is called.
type PreRequestHook interface {
	Name() string
	BeforeRequest(ctx context.Context, req *domain.Request) (Decision, error)
}

// ResponseActionsInput is passed to response hooks.
type ResponseActionsInput struct {
	ID       string                   `json:"id"`
	Actions  []json.RawMessage        `json:"actions"`
	Request  *domain.TransportRequest `json:"request,omitempty"`
	Response *domain.Response         `json:"response,omitempty"`
}

// ResponseDecision is returned by a ResponseHook. When Handled is set, Result
// replaces the actions result delivered with the response.
type ResponseDecision struct {
	Handled bool
	Result  any
}

// ResponseHook runs the response actions declared by a request.
type ResponseHook interface {
	Name() string
	RunResponseActions(ctx context.Context, in *ResponseActionsInput) (ResponseDecision, error)
}

// PreRequestHookFunc adapts a function to PreRequestHook.
type PreRequestHookFunc struct {
	HookName string
	Fn       func(ctx context.Context, req *domain.Request) (Decision, error)
}

func (h PreRequestHookFunc) Name() string { return h.HookName }

func (h PreRequestHookFunc) BeforeRequest(ctx context.Context, req *domain.Request) (Decision, error) {
	return h.Fn(ctx, req)
}

// ResponseHookFunc adapts a function to ResponseHook.
type ResponseHookFunc struct {
	HookName string
	Fn       func(ctx context.Context, in *ResponseActionsInput) (ResponseDecision, error)
}

func (h ResponseHookFunc) Name() string { return h.HookName }

func (h ResponseHookFunc) RunResponseActions(ctx context.Context, in *ResponseActionsInput) (ResponseDecision, error) {
	return h.Fn(ctx, in)
}
