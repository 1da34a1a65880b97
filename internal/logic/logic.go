// Package logic drives requests through the request pipeline: variable
// substitution, the pre-request hook barrier, authorization and dispatch,
// followed by response hooks and finalization once the transport reports.
package logic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/polyglot-request-logic/internal/authz"
	"github.com/tjfontaine/polyglot-request-logic/internal/barrier"
	"github.com/tjfontaine/polyglot-request-logic/internal/core/domain"
	"github.com/tjfontaine/polyglot-request-logic/internal/core/ports"
	"github.com/tjfontaine/polyglot-request-logic/internal/dispatch"
	"github.com/tjfontaine/polyglot-request-logic/internal/metrics"
	"github.com/tjfontaine/polyglot-request-logic/internal/queue"
	"github.com/tjfontaine/polyglot-request-logic/internal/variables"
)

const tracerName = "github.com/tjfontaine/polyglot-request-logic/internal/logic"

// DefaultHandlersTimeout is used when no handlers timeout is configured.
const DefaultHandlersTimeout = 2 * time.Second

// ErrInvalidRequest is returned for submissions without an id.
var ErrInvalidRequest = errors.New("invalid request")

// HookProvider supplies the hooks consulted for every request.
type HookProvider interface {
	PreRequestHooks() []ports.PreRequestHook
	ResponseHooks() []ports.ResponseHook
}

type noHooks struct{}

func (noHooks) PreRequestHooks() []ports.PreRequestHook { return nil }
func (noHooks) ResponseHooks() []ports.ResponseHook     { return nil }

// Logic owns the request queue and runs each submission through the
// pipeline. Every queued id yields exactly one terminal result unless it is
// superseded by a resubmission first.
type Logic struct {
	queue      *queue.Queue
	vars       *variables.Stage
	barrier    *barrier.Barrier
	enricher   *authz.Enricher
	dispatcher *dispatch.Dispatcher

	evaluator ports.Evaluator
	hooks     HookProvider
	transport ports.Transport
	sink      ports.ResultSink
	history   ports.HistoryRecorder
	listener  ports.VariableListener
	certs     ports.CertificateStore

	handlersTimeout   time.Duration
	variablesDisabled bool

	metrics *metrics.Metrics
	tracer  trace.Tracer
	logger  *slog.Logger

	wg sync.WaitGroup
}

// New creates a Logic with the given options.
func New(opts ...Option) (*Logic, error) {
	l := &Logic{
		queue:           queue.New(),
		handlersTimeout: DefaultHandlersTimeout,
		logger:          slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if l.transport == nil {
		return nil, fmt.Errorf("transport required (use WithTransport)")
	}
	if l.evaluator == nil {
		l.evaluator = variables.NewExprEvaluator(nil)
	}
	if l.hooks == nil {
		l.hooks = noHooks{}
	}
	if l.tracer == nil {
		l.tracer = otel.Tracer(tracerName)
	}

	stageOpts := []variables.StageOption{
		variables.WithDisabled(l.variablesDisabled),
		variables.WithStageLogger(l.logger),
		variables.WithFallbackHandler(func(error) { l.metrics.VariableFallback() }),
	}
	if l.listener != nil {
		stageOpts = append(stageOpts, variables.WithListener(l.listener))
	}
	l.vars = variables.NewStage(l.evaluator, stageOpts...)

	l.barrier = barrier.New(l.hooks, l.handlersTimeout, l.logger)

	authOpts := []authz.Option{authz.WithLogger(l.logger)}
	if l.certs != nil {
		authOpts = append(authOpts, authz.WithCertificateStore(l.certs))
	}
	l.enricher = authz.NewEnricher(authOpts...)

	l.dispatcher = dispatch.New(l.transport, ports.ReporterFunc(l.Report), l.logger)
	return l, nil
}

// SetHandlersTimeout changes the default pre-request handler timeout for
// requests reaching the barrier afterwards.
func (l *Logic) SetHandlersTimeout(d time.Duration) {
	if d < 0 {
		d = 0
	}
	l.barrier.SetTimeout(d)
}

// SetVariablesDisabled toggles variable interpolation.
func (l *Logic) SetVariablesDisabled(disabled bool) {
	l.vars.SetDisabled(disabled)
}

// SetEnvironment replaces the ambient variables when the evaluator supports
// it. It reports whether the environment was applied.
func (l *Logic) SetEnvironment(env map[string]string) bool {
	s, ok := l.evaluator.(interface{ SetEnvironment(map[string]string) })
	if !ok {
		return false
	}
	s.SetEnvironment(env)
	return true
}

// Pending returns the number of requests that have not been finalized.
func (l *Logic) Pending() int {
	return l.queue.Len()
}

// Submit queues req and processes it in the background. It returns once the
// request is queued; cancelling ctx afterwards does not stop processing.
// Submitting an id that is still in flight replaces the earlier submission.
func (l *Logic) Submit(ctx context.Context, req *domain.Request) error {
	entry, err := l.admit(ctx, req)
	if err != nil {
		return err
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.run(context.WithoutCancel(ctx), entry)
	}()
	return nil
}

// Process queues req and runs it up to dispatch on the calling goroutine.
// The terminal result is still delivered to the result sink.
func (l *Logic) Process(ctx context.Context, req *domain.Request) error {
	entry, err := l.admit(ctx, req)
	if err != nil {
		return err
	}
	l.run(ctx, entry)
	return nil
}

// Continue delivers an explicit continuation for id. It reports whether the
// request was waiting for one.
func (l *Logic) Continue(id string) bool {
	entry, ok := l.queue.Lookup(id)
	if !ok {
		return false
	}
	return entry.RequestContinue()
}

// Resend resubmits the latest state of the queued request id, replacing the
// submission in flight. It reports whether id was queued.
func (l *Logic) Resend(ctx context.Context, id string) bool {
	entry, ok := l.queue.Lookup(id)
	if !ok {
		return false
	}
	if err := l.Submit(ctx, entry.Request()); err != nil {
		l.logger.Warn("resend failed", slog.String("request_id", id), slog.String("error", err.Error()))
		return false
	}
	return true
}

// Abort finalizes id with a cancellation error. It reports whether id was
// queued.
func (l *Logic) Abort(ctx context.Context, id, reason string) bool {
	entry, ok := l.queue.Lookup(id)
	if !ok {
		return false
	}
	err := domain.NewCancellationError(reason)
	entry.Abort(err)
	l.reportError(ctx, entry, err)
	return true
}

// Shutdown aborts every queued request and waits for background work.
func (l *Logic) Shutdown(ctx context.Context) error {
	for _, entry := range l.queue.Entries() {
		err := domain.NewCancellationError("request logic is shutting down")
		entry.Abort(err)
		l.reportError(ctx, entry, err)
	}

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Logic) admit(ctx context.Context, req *domain.Request) (*queue.Entry, error) {
	if req == nil || req.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidRequest)
	}

	r := req.Clone()
	if r.Payload != nil && !domain.HasBody(r.Method) {
		r.Payload = nil
	}

	entry, prev := l.queue.Enqueue(r)
	if prev != nil && prev.Abort(domain.ErrSuperseded) {
		l.logger.Debug("superseded in-flight request",
			slog.String("request_id", r.ID),
			slog.Uint64("generation", prev.Generation()))
	}
	l.metrics.Submitted()
	l.metrics.QueueSize(l.queue.Len())

	if l.history != nil && r.URL != "" {
		l.wg.Add(1)
		go func(url string) {
			defer l.wg.Done()
			if err := l.history.RecordURL(context.WithoutCancel(ctx), url); err != nil {
				l.logger.Warn("failed to record url history",
					slog.String("request_id", r.ID),
					slog.String("error", err.Error()))
			}
		}(r.URL)
	}
	return entry, nil
}

// run takes one entry from the queue to the transport. Every step rechecks
// that the entry is still the queued one; a replaced or finalized entry stops
// silently.
func (l *Logic) run(ctx context.Context, entry *queue.Entry) {
	id := entry.ID()
	ctx, span := l.tracer.Start(ctx, "request_logic.process", trace.WithAttributes(
		attribute.String("request.id", id),
		attribute.Int64("request.generation", int64(entry.Generation())),
	))
	defer span.End()

	req := l.vars.Substitute(ctx, entry.Request())
	if !l.queue.Current(id, entry) {
		span.AddEvent("replaced")
		return
	}
	entry.Checkpoint(req)

	out := l.barrier.Run(ctx, entry, req)
	l.metrics.BarrierDecided(barrierLabel(out), out.Waited)
	span.SetAttributes(
		attribute.String("barrier.outcome", out.Kind.String()),
		attribute.Bool("barrier.timed_out", out.TimedOut),
	)

	switch out.Kind {
	case barrier.OutcomeSuperseded:
		span.AddEvent("replaced")
		return
	case barrier.OutcomeAborted, barrier.OutcomeErrored:
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, out.Err.Error())
		l.reportError(ctx, entry, out.Err)
		return
	}

	entry.ClearState()
	if !l.queue.Current(id, entry) {
		span.AddEvent("replaced")
		return
	}
	entry.Checkpoint(req)

	l.enricher.Enrich(ctx, req)
	if !l.queue.Current(id, entry) {
		span.AddEvent("replaced")
		return
	}
	entry.Checkpoint(req)

	snap := l.dispatcher.Dispatch(ctx, req, entry.Generation())
	span.AddEvent("dispatched", trace.WithAttributes(
		attribute.String("http.method", snap.Method()),
	))
}

func barrierLabel(o barrier.Outcome) string {
	if o.Kind == barrier.OutcomeProceed && o.TimedOut {
		return "timeout"
	}
	return o.Kind.String()
}
