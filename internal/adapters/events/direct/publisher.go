// Package direct provides a result sink that writes results straight to
// storage and wakes callers waiting for them.
package direct

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tjfontaine/polyglot-request-logic/internal/core/domain"
	"github.com/tjfontaine/polyglot-request-logic/internal/core/ports"
)

// Publisher implements ports.ResultSink by writing directly to storage.
// This is the default implementation for single-instance deployments.
type Publisher struct {
	store  ports.ResultStore
	logger *slog.Logger

	mu      sync.Mutex
	waiters map[string][]chan struct{}
}

// NewPublisher creates a new direct result publisher.
func NewPublisher(store ports.ResultStore, logger *slog.Logger) (*Publisher, error) {
	if store == nil {
		return nil, fmt.Errorf("result store required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		store:   store,
		logger:  logger,
		waiters: make(map[string][]chan struct{}),
	}, nil
}

// Deliver stores result and wakes everyone awaiting its id. Storage errors
// are logged; waiters are woken regardless.
func (p *Publisher) Deliver(ctx context.Context, result *domain.Result) {
	if err := p.store.SaveResult(ctx, result); err != nil {
		p.logger.Error("failed to store result",
			slog.String("request_id", result.ID),
			slog.String("error", err.Error()))
	}

	p.mu.Lock()
	waiters := p.waiters[result.ID]
	delete(p.waiters, result.ID)
	p.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
}

// Await returns the stored result for id, waiting until one is delivered
// or ctx is done.
func (p *Publisher) Await(ctx context.Context, id string) ([]byte, error) {
	ch := make(chan struct{})
	p.mu.Lock()
	p.waiters[id] = append(p.waiters[id], ch)
	p.mu.Unlock()
	defer p.forget(id, ch)

	body, err := p.store.GetResult(ctx, id)
	if err == nil || !errors.Is(err, ports.ErrNotFound) {
		return body, err
	}

	select {
	case <-ch:
		return p.store.GetResult(ctx, id)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Publisher) forget(id string, ch chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()

	list := p.waiters[id]
	for i, c := range list {
		if c == ch {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(p.waiters, id)
	} else {
		p.waiters[id] = list
	}
}

// Close is a no-op for direct publisher.
func (p *Publisher) Close() error {
	return nil
}

var _ ports.ResultSink = (*Publisher)(nil)
