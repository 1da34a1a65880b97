package barrier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/tjfontaine/polyglot-request-logic/internal/core/domain"
	"github.com/tjfontaine/polyglot-request-logic/internal/core/ports"
	"github.com/tjfontaine/polyglot-request-logic/internal/queue"
)

// hookList is a static HookSource.
type hookList []ports.PreRequestHook

func (h hookList) PreRequestHooks() []ports.PreRequestHook { return h }

func hook(name string, fn func(ctx context.Context, req *domain.Request) (ports.Decision, error)) ports.PreRequestHook {
	return ports.PreRequestHookFunc{HookName: name, Fn: fn}
}

func deferHook(name string, ops ...ports.Deferral) ports.PreRequestHook {
	return hook(name, func(ctx context.Context, req *domain.Request) (ports.Decision, error) {
		return ports.Defer(ops...), nil
	})
}

func newTestBarrier(def time.Duration, hooks ...ports.PreRequestHook) *Barrier {
	return New(hookList(hooks), def, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func enqueue(id string) (*queue.Entry, *domain.Request) {
	q := queue.New()
	req := &domain.Request{ID: id, URL: "https://example.com", Method: "GET"}
	e, _ := q.Enqueue(req)
	return e, req
}

type runResult struct {
	outcome Outcome
}

func runAsync(b *Barrier, e *queue.Entry, req *domain.Request) <-chan runResult {
	ch := make(chan runResult, 1)
	go func() {
		ch <- runResult{outcome: b.Run(context.Background(), e, req)}
	}()
	return ch
}

func waitOutcome(t *testing.T, ch <-chan runResult) Outcome {
	t.Helper()
	select {
	case r := <-ch:
		return r.outcome
	case <-time.After(2 * time.Second):
		t.Fatal("barrier did not finish")
		return Outcome{}
	}
}

func assertPending(t *testing.T, ch <-chan runResult) {
	t.Helper()
	select {
	case r := <-ch:
		t.Fatalf("barrier finished early with %v", r.outcome.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func waitAwaiting(t *testing.T, e *queue.Entry) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !e.State().AwaitingContinue {
		if time.Now().After(deadline) {
			t.Fatal("entry never started awaiting continuation")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRun_NoHooksProceeds(t *testing.T) {
	b := newTestBarrier(2 * time.Second)
	e, req := enqueue("r1")

	out := b.Run(context.Background(), e, req)
	if out.Kind != OutcomeProceed {
		t.Fatalf("Kind = %v, want proceed", out.Kind)
	}
	if out.Request != req {
		t.Error("expected the same request")
	}
}

func TestRun_CancelDecision(t *testing.T) {
	tests := []struct {
		name   string
		reason string
		want   string
	}{
		{name: "with reason", reason: "blocked", want: "blocked"},
		{name: "default reason", reason: "", want: domain.DefaultCancelReason},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			laterCalled := false
			b := newTestBarrier(time.Second,
				hook("cancel", func(ctx context.Context, req *domain.Request) (ports.Decision, error) {
					return ports.Cancel(tt.reason), nil
				}),
				hook("later", func(ctx context.Context, req *domain.Request) (ports.Decision, error) {
					laterCalled = true
					return ports.Proceed(), nil
				}),
			)
			e, req := enqueue("r1")

			out := b.Run(context.Background(), e, req)
			if out.Kind != OutcomeAborted {
				t.Fatalf("Kind = %v, want aborted", out.Kind)
			}
			if !domain.IsCancellation(out.Err) || out.Err.Error() != tt.want {
				t.Errorf("Err = %v, want cancellation %q", out.Err, tt.want)
			}
			if laterCalled {
				t.Error("hooks after a cancellation must not run")
			}
		})
	}
}

func TestRun_HookMutatesDirectly(t *testing.T) {
	b := newTestBarrier(time.Second,
		hook("mutate", func(ctx context.Context, req *domain.Request) (ports.Decision, error) {
			req.Headers = "x-hook: 1"
			return ports.Proceed(), nil
		}),
	)
	e, req := enqueue("r1")

	out := b.Run(context.Background(), e, req)
	if out.Kind != OutcomeProceed || out.Request.Headers != "x-hook: 1" {
		t.Errorf("outcome = %v headers %q", out.Kind, out.Request.Headers)
	}
}

func TestRun_DeferredResolveProceedsWithMutations(t *testing.T) {
	b := newTestBarrier(time.Second, deferHook("d",
		ports.Op(func(ctx context.Context) (ports.Mutation, error) {
			return func(req *domain.Request) { req.URL = "https://changed.example.com" }, nil
		}),
		ports.Op(func(ctx context.Context) (ports.Mutation, error) {
			time.Sleep(10 * time.Millisecond)
			return nil, nil
		}),
	))
	e, req := enqueue("r1")

	out := b.Run(context.Background(), e, req)
	if out.Kind != OutcomeProceed {
		t.Fatalf("Kind = %v, want proceed", out.Kind)
	}
	if out.TimedOut {
		t.Error("did not expect a timeout")
	}
	if out.Request.URL != "https://changed.example.com" {
		t.Errorf("URL = %q", out.Request.URL)
	}
	if !e.State().Resolved {
		t.Error("entry should be resolved")
	}
}

func TestRun_RejectionWins(t *testing.T) {
	b := newTestBarrier(time.Second, deferHook("auth-refresh",
		ports.Op(func(ctx context.Context) (ports.Mutation, error) {
			return nil, nil
		}),
		ports.Op(func(ctx context.Context) (ports.Mutation, error) {
			return nil, errors.New("token refresh failed")
		}),
	))
	e, req := enqueue("r1")

	out := b.Run(context.Background(), e, req)
	if out.Kind != OutcomeErrored {
		t.Fatalf("Kind = %v, want errored", out.Kind)
	}
	if !domain.IsHookRejection(out.Err) {
		t.Errorf("Err = %v, want hook rejection", out.Err)
	}
}

func TestRun_HookErrorIsRejection(t *testing.T) {
	b := newTestBarrier(time.Second,
		hook("broken", func(ctx context.Context, req *domain.Request) (ports.Decision, error) {
			return ports.Decision{}, errors.New("broken hook")
		}),
	)
	e, req := enqueue("r1")

	out := b.Run(context.Background(), e, req)
	if out.Kind != OutcomeErrored || !domain.IsHookRejection(out.Err) {
		t.Errorf("outcome = %v, %v", out.Kind, out.Err)
	}
}

func TestRun_TimeoutProceeds(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	b := newTestBarrier(20*time.Millisecond, deferHook("slow",
		ports.Op(func(ctx context.Context) (ports.Mutation, error) {
			<-block
			return func(req *domain.Request) { req.URL = "late" }, nil
		}),
	))
	e, req := enqueue("r1")

	out := b.Run(context.Background(), e, req)
	if out.Kind != OutcomeProceed {
		t.Fatalf("Kind = %v, want proceed", out.Kind)
	}
	if !out.TimedOut {
		t.Error("expected TimedOut")
	}
	if !e.State().TimedOut {
		t.Error("entry state should record the timeout")
	}
	if out.Request.URL == "late" {
		t.Error("late mutation must not be applied")
	}
}

func TestRun_HintExtendsTimeout(t *testing.T) {
	b := newTestBarrier(10*time.Millisecond, deferHook("hinted",
		ports.Op(func(ctx context.Context) (ports.Mutation, error) {
			time.Sleep(60 * time.Millisecond)
			return nil, nil
		}).WithTimeout(time.Second),
	))
	e, req := enqueue("r1")

	out := b.Run(context.Background(), e, req)
	if out.Kind != OutcomeProceed || out.TimedOut {
		t.Errorf("outcome = %v timedOut=%v, want natural resolution", out.Kind, out.TimedOut)
	}
}

func TestRun_NoTimeoutWaitsForContinue(t *testing.T) {
	b := newTestBarrier(0)
	e, req := enqueue("r1")

	ch := runAsync(b, e, req)
	waitAwaiting(t, e)
	assertPending(t, ch)

	if !e.RequestContinue() {
		t.Fatal("continue should be accepted")
	}
	out := waitOutcome(t, ch)
	if out.Kind != OutcomeProceed {
		t.Errorf("Kind = %v, want proceed", out.Kind)
	}
}

func TestRun_ZeroHintResolvedWaitsForContinue(t *testing.T) {
	b := newTestBarrier(time.Second, deferHook("manual",
		ports.Op(func(ctx context.Context) (ports.Mutation, error) {
			return nil, nil
		}).WithTimeout(0),
	))
	e, req := enqueue("r1")

	ch := runAsync(b, e, req)
	waitAwaiting(t, e)
	assertPending(t, ch)

	if !e.State().Resolved {
		t.Fatal("operations should have resolved")
	}
	e.RequestContinue()
	if out := waitOutcome(t, ch); out.Kind != OutcomeProceed {
		t.Errorf("Kind = %v, want proceed", out.Kind)
	}
}

func TestRun_EarlyContinueDefersUntilResolved(t *testing.T) {
	release := make(chan struct{})
	b := newTestBarrier(time.Second, deferHook("manual",
		ports.Op(func(ctx context.Context) (ports.Mutation, error) {
			<-release
			return nil, nil
		}).WithTimeout(0),
	))
	e, req := enqueue("r1")

	ch := runAsync(b, e, req)
	waitAwaiting(t, e)

	if !e.RequestContinue() {
		t.Fatal("continue should be accepted while awaiting")
	}
	deadline := time.Now().Add(time.Second)
	for e.State().AwaitingContinue {
		if time.Now().After(deadline) {
			t.Fatal("awaiting flag was not cleared")
		}
		time.Sleep(time.Millisecond)
	}
	assertPending(t, ch)

	close(release)
	if out := waitOutcome(t, ch); out.Kind != OutcomeProceed {
		t.Errorf("Kind = %v, want proceed", out.Kind)
	}
}

func TestRun_AbortWhileWaiting(t *testing.T) {
	b := newTestBarrier(0)
	e, req := enqueue("r1")

	ch := runAsync(b, e, req)
	waitAwaiting(t, e)
	e.Abort(domain.NewCancellationError("user aborted"))

	out := waitOutcome(t, ch)
	if out.Kind != OutcomeAborted {
		t.Fatalf("Kind = %v, want aborted", out.Kind)
	}
	if out.Err.Error() != "user aborted" {
		t.Errorf("Err = %v", out.Err)
	}
}

func TestRun_SupersededWhileWaiting(t *testing.T) {
	b := newTestBarrier(0)
	e, req := enqueue("r1")

	ch := runAsync(b, e, req)
	waitAwaiting(t, e)
	e.Abort(domain.ErrSuperseded)

	if out := waitOutcome(t, ch); out.Kind != OutcomeSuperseded {
		t.Errorf("Kind = %v, want superseded", out.Kind)
	}
}

func TestRun_CancelledBeforeResolution(t *testing.T) {
	release := make(chan struct{})
	b := newTestBarrier(time.Second, deferHook("slow",
		ports.Op(func(ctx context.Context) (ports.Mutation, error) {
			<-release
			return nil, nil
		}),
	))
	e, req := enqueue("r1")

	ch := runAsync(b, e, req)
	e.Abort(nil)
	close(release)

	out := waitOutcome(t, ch)
	if out.Kind != OutcomeAborted {
		t.Fatalf("Kind = %v, want aborted", out.Kind)
	}
	if !domain.IsCancellation(out.Err) {
		t.Errorf("Err = %v, want default cancellation", out.Err)
	}
}

func TestPreempt_RejectionOutranksAbort(t *testing.T) {
	tests := []struct {
		name     string
		settled  []settlement
		aborted  bool
		wantOK   bool
		wantKind OutcomeKind
	}{
		{
			name:     "rejection and abort ready together",
			settled:  []settlement{{name: "ok"}, {name: "refresh", err: errors.New("denied")}},
			aborted:  true,
			wantOK:   true,
			wantKind: OutcomeErrored,
		},
		{
			name:     "abort only",
			settled:  []settlement{{name: "ok"}},
			aborted:  true,
			wantOK:   true,
			wantKind: OutcomeAborted,
		},
		{
			name:     "rejection only",
			settled:  []settlement{{name: "refresh", err: errors.New("denied")}},
			wantOK:   true,
			wantKind: OutcomeErrored,
		},
		{
			name:    "nothing pending",
			settled: []settlement{{name: "ok"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := enqueue("r1")
			results := make(chan settlement, len(tt.settled))
			for _, s := range tt.settled {
				results <- s
			}
			if tt.aborted {
				e.Abort(domain.NewCancellationError("user aborted"))
			}

			out, ok := preempt(e, results)
			if ok != tt.wantOK {
				t.Fatalf("preempt() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && out.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", out.Kind, tt.wantKind)
			}
			if tt.wantKind == OutcomeErrored && !domain.IsHookRejection(out.Err) {
				t.Errorf("Err = %v, want hook rejection", out.Err)
			}
		})
	}
}

func TestPendingRejection_AbortBranch(t *testing.T) {
	results := make(chan settlement, 2)
	results <- settlement{name: "ok"}
	results <- settlement{name: "refresh", err: errors.New("denied")}

	out, ok := pendingRejection(results)
	if !ok || out.Kind != OutcomeErrored {
		t.Fatalf("pendingRejection() = %v, %v", out.Kind, ok)
	}

	if _, ok := pendingRejection(nil); ok {
		t.Error("nil results must not report a rejection")
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	b := newTestBarrier(0)
	e, req := enqueue("r1")
	ctx, cancel := context.WithCancel(context.Background())

	ch := make(chan Outcome, 1)
	go func() { ch <- b.Run(ctx, e, req) }()
	waitAwaiting(t, e)
	cancel()

	select {
	case out := <-ch:
		if out.Kind != OutcomeErrored || !errors.Is(out.Err, context.Canceled) {
			t.Errorf("outcome = %v, %v", out.Kind, out.Err)
		}
	case <-time.After(time.Second):
		t.Fatal("barrier ignored context cancellation")
	}
}

func TestBarrier_SetTimeout(t *testing.T) {
	b := newTestBarrier(time.Second)
	b.SetTimeout(0)
	if b.Timeout() != 0 {
		t.Errorf("Timeout() = %v, want 0", b.Timeout())
	}
}
