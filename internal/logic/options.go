package logic

import (
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/polyglot-request-logic/internal/core/ports"
	"github.com/tjfontaine/polyglot-request-logic/internal/metrics"
)

// Option is a functional option for configuring Logic.
type Option func(*Logic) error

// WithTransport sets the transport requests are dispatched through. Required.
func WithTransport(t ports.Transport) Option {
	return func(l *Logic) error {
		l.transport = t
		return nil
	}
}

// WithEvaluator replaces the default expression evaluator.
func WithEvaluator(e ports.Evaluator) Option {
	return func(l *Logic) error {
		l.evaluator = e
		return nil
	}
}

// WithHooks sets the source of pre-request and response hooks.
func WithHooks(h HookProvider) Option {
	return func(l *Logic) error {
		l.hooks = h
		return nil
	}
}

// WithResultSink sets the receiver of terminal results.
func WithResultSink(s ports.ResultSink) Option {
	return func(l *Logic) error {
		l.sink = s
		return nil
	}
}

// WithHistory records the URL of every submission.
func WithHistory(h ports.HistoryRecorder) Option {
	return func(l *Logic) error {
		l.history = h
		return nil
	}
}

// WithVariableListener is notified of variables resolved from request actions.
func WithVariableListener(v ports.VariableListener) Option {
	return func(l *Logic) error {
		l.listener = v
		return nil
	}
}

// WithCertificateStore sets the store used for client certificate auth.
func WithCertificateStore(s ports.CertificateStore) Option {
	return func(l *Logic) error {
		l.certs = s
		return nil
	}
}

// WithHandlersTimeout sets the default pre-request handler timeout. Zero
// means requests with deferred work wait for explicit continuation.
func WithHandlersTimeout(d time.Duration) Option {
	return func(l *Logic) error {
		if d < 0 {
			return fmt.Errorf("handlers timeout must not be negative, got %s", d)
		}
		l.handlersTimeout = d
		return nil
	}
}

// WithVariablesDisabled turns variable interpolation off.
func WithVariablesDisabled(disabled bool) Option {
	return func(l *Logic) error {
		l.variablesDisabled = disabled
		return nil
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Logic) error {
		l.metrics = m
		return nil
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(l *Logic) error {
		l.tracer = t
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Logic) error {
		l.logger = logger
		return nil
	}
}
