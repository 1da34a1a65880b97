// Package barrier implements the pre-request hook barrier: it asks every
// registered pre-request hook for a decision, then waits for the deferred
// operations, a timer and an explicit continuation signal, whichever decides
// first.
package barrier

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tjfontaine/polyglot-request-logic/internal/core/domain"
	"github.com/tjfontaine/polyglot-request-logic/internal/core/ports"
	"github.com/tjfontaine/polyglot-request-logic/internal/queue"
)

// OutcomeKind is the barrier's decision.
type OutcomeKind int

const (
	// OutcomeProceed lets the request continue to authorization.
	OutcomeProceed OutcomeKind = iota
	// OutcomeAborted stops the request with a cancellation error.
	OutcomeAborted
	// OutcomeErrored stops the request with a hook rejection or context error.
	OutcomeErrored
	// OutcomeSuperseded ends a request replaced by a resubmission. Nothing is
	// reported for it.
	OutcomeSuperseded
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeProceed:
		return "proceed"
	case OutcomeAborted:
		return "aborted"
	case OutcomeErrored:
		return "errored"
	case OutcomeSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// Outcome is returned by Run.
type Outcome struct {
	Kind    OutcomeKind
	Request *domain.Request
	Err     error
	// TimedOut is set when the request proceeds because the timer fired.
	TimedOut bool
	// Waited is the time spent waiting for deferred operations or a signal.
	Waited time.Duration
}

// HookSource supplies the pre-request hooks consulted for every request.
type HookSource interface {
	PreRequestHooks() []ports.PreRequestHook
}

// Barrier runs the pre-request phase of a request.
type Barrier struct {
	hooks   HookSource
	timeout atomic.Int64
	logger  *slog.Logger
}

// New creates a barrier consulting hooks with the default handler timeout
// def. A zero default disables the timer.
func New(hooks HookSource, def time.Duration, logger *slog.Logger) *Barrier {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Barrier{hooks: hooks, logger: logger}
	b.timeout.Store(int64(def))
	return b
}

// SetTimeout changes the default handler timeout for requests entering the
// barrier afterwards.
func (b *Barrier) SetTimeout(d time.Duration) {
	b.timeout.Store(int64(d))
}

// Timeout returns the default handler timeout.
func (b *Barrier) Timeout() time.Duration {
	return time.Duration(b.timeout.Load())
}

type settlement struct {
	name     string
	mutation ports.Mutation
	err      error
}

// Run broadcasts req to the hooks and waits until the request may proceed.
// req is mutated in place by hooks and by settled operations. The entry
// carries the transient state and the continue and abort signals.
func (b *Barrier) Run(ctx context.Context, entry *queue.Entry, req *domain.Request) Outcome {
	deferred, outcome, stop := b.broadcast(ctx, req)
	if stop {
		return outcome
	}

	timeout := ComputeTimeout(b.Timeout(), deferred)
	st := entry.Update(func(s *queue.State) {
		s.Resolved = len(deferred) == 0
		s.AwaitingContinue = timeout == NoTimeout
	})
	if st.Cancelled {
		return abortOutcome(entry, req)
	}
	if st.Resolved && !st.AwaitingContinue {
		return Outcome{Kind: OutcomeProceed, Request: req}
	}

	start := time.Now()
	settled := make(chan settlement, len(deferred))
	for _, d := range deferred {
		go func(d ports.Deferral) {
			m, err := d.Run(ctx)
			settled <- settlement{name: d.Name, mutation: m, err: err}
		}(d)
	}
	pending := len(deferred)
	results := (<-chan settlement)(settled)
	if pending == 0 {
		results = nil
	}

	var timerC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timerC = timer.C
	}

	done := func(o Outcome) Outcome {
		o.Request = req
		o.Waited = time.Since(start)
		return o
	}

	for {
		select {
		case s := <-results:
			if s.err != nil {
				return done(rejected(s))
			}
			if s.mutation != nil {
				s.mutation(req)
			}
			pending--
			if pending > 0 {
				continue
			}
			results = nil
			timerC = nil

			st := entry.Update(func(s *queue.State) { s.Resolved = true })
			if st.Cancelled {
				return done(abortOutcome(entry, req))
			}
			if !st.AwaitingContinue {
				return done(Outcome{Kind: OutcomeProceed})
			}

		case <-timerC:
			if o, ok := preempt(entry, results); ok {
				return done(o)
			}
			entry.Update(func(s *queue.State) { s.TimedOut = true })
			b.logger.Info("pre-request handlers timed out, continuing",
				slog.String("request_id", req.ID),
				slog.Int("pending", pending),
				slog.Duration("timeout", timeout),
				slog.String("error", domain.ErrHookTimeout.Error()))
			return done(Outcome{Kind: OutcomeProceed, TimedOut: true})

		case <-entry.ContinueSignal():
			st := entry.State()
			if st.Resolved {
				return done(Outcome{Kind: OutcomeProceed})
			}
			entry.Update(func(s *queue.State) { s.AwaitingContinue = false })

		case <-entry.Aborted():
			if o, ok := pendingRejection(results); ok {
				return done(o)
			}
			return done(abortOutcome(entry, req))

		case <-ctx.Done():
			return done(Outcome{Kind: OutcomeErrored, Err: ctx.Err()})
		}
	}
}

// broadcast collects the hooks' decisions. It stops early on the first
// cancellation or hook error.
func (b *Barrier) broadcast(ctx context.Context, req *domain.Request) ([]ports.Deferral, Outcome, bool) {
	if b.hooks == nil {
		return nil, Outcome{}, false
	}

	var deferred []ports.Deferral
	for _, h := range b.hooks.PreRequestHooks() {
		d, err := h.BeforeRequest(ctx, req)
		if err != nil {
			return nil, Outcome{
				Kind:    OutcomeErrored,
				Request: req,
				Err:     &domain.HookRejectionError{Hook: h.Name(), Err: err},
			}, true
		}

		switch d.Action {
		case ports.ActionCancel:
			b.logger.Debug("pre-request hook cancelled request",
				slog.String("request_id", req.ID),
				slog.String("hook", h.Name()))
			return nil, Outcome{
				Kind:    OutcomeAborted,
				Request: req,
				Err:     domain.NewCancellationError(d.Reason),
			}, true
		case ports.ActionDefer:
			for _, op := range d.Deferred {
				if op.Run == nil {
					continue
				}
				if op.Name == "" {
					op.Name = h.Name()
				}
				deferred = append(deferred, op)
			}
		}
	}
	return deferred, Outcome{}, false
}

// preempt gives rejections and aborts that are already pending priority over
// a timer that fired at the same time.
func preempt(entry *queue.Entry, results <-chan settlement) (Outcome, bool) {
	if o, ok := pendingRejection(results); ok {
		return o, true
	}
	select {
	case <-entry.Aborted():
		return abortOutcome(entry, nil), true
	default:
	}
	return Outcome{}, false
}

// pendingRejection drains settlements that are already available and returns
// the first rejection among them. A rejection outranks an abort or a timeout
// that became ready in the same iteration.
func pendingRejection(results <-chan settlement) (Outcome, bool) {
	for {
		select {
		case s := <-results:
			if s.err != nil {
				return rejected(s), true
			}
		default:
			return Outcome{}, false
		}
	}
}

func rejected(s settlement) Outcome {
	return Outcome{
		Kind: OutcomeErrored,
		Err:  &domain.HookRejectionError{Hook: s.name, Err: s.err},
	}
}

func abortOutcome(entry *queue.Entry, req *domain.Request) Outcome {
	err := entry.AbortErr()
	if errors.Is(err, domain.ErrSuperseded) {
		return Outcome{Kind: OutcomeSuperseded, Request: req}
	}
	if err == nil {
		err = domain.NewCancellationError("")
	}
	return Outcome{Kind: OutcomeAborted, Request: req, Err: err}
}
