package logic

import (
	"context"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/polyglot-request-logic/internal/core/domain"
	"github.com/tjfontaine/polyglot-request-logic/internal/core/ports"
	"github.com/tjfontaine/polyglot-request-logic/internal/queue"
)

// Report finalizes the request a transport completion belongs to. Unknown
// ids, completions of replaced submissions and repeated reports are ignored.
// A zero generation matches whichever submission is queued.
func (l *Logic) Report(ctx context.Context, c *domain.Completion) {
	if c == nil {
		return
	}

	entry, ok := l.queue.Lookup(c.ID)
	if !ok {
		l.logger.Debug("completion for unknown request", slog.String("request_id", c.ID))
		return
	}
	if c.Generation != 0 && c.Generation != entry.Generation() {
		l.logger.Debug("dropping stale completion",
			slog.String("request_id", c.ID),
			slog.Uint64("generation", c.Generation),
			slog.Uint64("current_generation", entry.Generation()))
		return
	}
	if !l.queue.Remove(c.ID, entry) {
		return
	}

	l.finalize(ctx, entry, c)
}

func (l *Logic) finalize(ctx context.Context, entry *queue.Entry, c *domain.Completion) {
	ctx, span := l.tracer.Start(ctx, "request_logic.finalize", trace.WithAttributes(
		attribute.String("request.id", c.ID),
		attribute.Bool("result.is_error", c.IsError),
	))
	defer span.End()

	req := entry.Request()
	res := &domain.Result{
		ID:               c.ID,
		IsError:          c.IsError,
		Err:              c.Err,
		Request:          req,
		TransportRequest: c.Request,
		Response:         c.Response,
		LoadingTime:      c.LoadingTime,
		IsXHR:            c.IsXHR,
	}
	if c.IsError && c.Err != nil {
		span.RecordError(c.Err)
		span.SetStatus(codes.Error, c.Err.Error())
	}

	if !c.IsError && len(req.ResponseActions) > 0 {
		res.ActionsResult = l.runResponseHooks(ctx, req, c)
	}
	l.deliver(ctx, res)
}

// runResponseHooks gives every response hook a chance to run the request's
// response actions. The first hook that handles them supplies the result.
func (l *Logic) runResponseHooks(ctx context.Context, req *domain.Request, c *domain.Completion) any {
	in := &ports.ResponseActionsInput{
		ID:       req.ID,
		Actions:  slices.Clone(req.ResponseActions),
		Request:  c.Request,
		Response: c.Response,
	}

	for _, h := range l.hooks.ResponseHooks() {
		d, err := h.RunResponseActions(ctx, in)
		if err != nil {
			l.metrics.ResponseHookRan(h.Name(), "error")
			l.logger.Warn("response hook failed",
				slog.String("request_id", req.ID),
				slog.String("hook", h.Name()),
				slog.String("error", err.Error()))
			continue
		}
		if d.Handled {
			l.metrics.ResponseHookRan(h.Name(), "handled")
			return d.Result
		}
		l.metrics.ResponseHookRan(h.Name(), "skipped")
	}
	return nil
}

// reportError finalizes entry with err unless it was finalized or replaced
// already. The loading time of such results is always zero.
func (l *Logic) reportError(ctx context.Context, entry *queue.Entry, err error) {
	id := entry.ID()
	if !l.queue.Remove(id, entry) {
		return
	}
	l.deliver(ctx, &domain.Result{
		ID:      id,
		IsError: true,
		Err:     err,
		Request: entry.Request(),
	})
}

func (l *Logic) deliver(ctx context.Context, res *domain.Result) {
	outcome := "success"
	if res.IsError {
		outcome = "error"
	}
	l.metrics.Finalized(outcome)
	l.metrics.QueueSize(l.queue.Len())

	attrs := []any{slog.String("request_id", res.ID), slog.String("outcome", outcome)}
	if res.Err != nil {
		attrs = append(attrs, slog.String("error", res.Err.Error()))
	}
	l.logger.Debug("request finalized", attrs...)

	if l.sink != nil {
		l.sink.Deliver(ctx, res)
	}
}
