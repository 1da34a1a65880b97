// Package dispatch freezes requests and hands them to a transport.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/tjfontaine/polyglot-request-logic/internal/core/domain"
	"github.com/tjfontaine/polyglot-request-logic/internal/core/ports"
)

// Dispatcher sends snapshots through a transport without waiting for the
// round trip. Completions flow back through the transport's reporter.
type Dispatcher struct {
	transport ports.Transport
	reporter  ports.Reporter
	logger    *slog.Logger
}

// New creates a dispatcher. reporter receives a TransportError completion
// when the transport refuses a snapshot.
func New(transport ports.Transport, reporter ports.Reporter, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{transport: transport, reporter: reporter, logger: logger}
}

// Dispatch freezes req under generation and sends it.
func (d *Dispatcher) Dispatch(ctx context.Context, req *domain.Request, generation uint64) *domain.Snapshot {
	snap := domain.NewSnapshot(req, generation)

	if d.transport == nil {
		d.fail(ctx, snap, errNoTransport)
		return snap
	}
	if err := d.transport.Send(ctx, snap); err != nil {
		d.fail(ctx, snap, err)
	}
	return snap
}

func (d *Dispatcher) fail(ctx context.Context, snap *domain.Snapshot, err error) {
	d.logger.Warn("transport rejected request",
		slog.String("request_id", snap.ID()),
		slog.String("error", err.Error()))
	if d.reporter == nil {
		return
	}

	payload, ok := snap.Payload()
	tr := &domain.TransportRequest{
		URL:     snap.URL(),
		Method:  snap.Method(),
		Headers: snap.Headers(),
	}
	if ok {
		tr.Payload = &payload
	}
	d.reporter.Report(ctx, &domain.Completion{
		ID:         snap.ID(),
		Generation: snap.Generation(),
		IsError:    true,
		Err:        &domain.TransportError{Err: err},
		Request:    tr,
	})
}
