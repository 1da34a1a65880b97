package ports

import (
	"context"

	"github.com/tjfontaine/polyglot-request-logic/internal/core/domain"
	"github.com/tjfontaine/polyglot-request-logic/internal/pkg/config"
)

// ConfigProvider loads and manages configuration.
// Implementations: file-based (default).
type ConfigProvider interface {
	Load(ctx context.Context) (*config.Config, error)
	Watch(ctx context.Context, onChange func(*config.Config)) error
	Close() error
}

// Evaluator resolves variables and interpolates them into a request.
type Evaluator interface {
	// Evaluate resolves the override values against the ambient environment.
	Evaluate(ctx context.Context, overrides map[string]string) (map[string]string, error)
	// Substitute interpolates url, headers and payload of req. It returns a
	// new request and leaves req untouched.
	Substitute(ctx context.Context, req *domain.Request, vars map[string]string) (*domain.Request, error)
}

// Transport sends a frozen request. Send must not block on the round trip;
// completion is reported asynchronously to a Reporter keyed by request id.
type Transport interface {
	Send(ctx context.Context, snapshot *domain.Snapshot) error
}

// Reporter receives transport completions.
type Reporter interface {
	Report(ctx context.Context, c *domain.Completion)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, c *domain.Completion)

func (f ReporterFunc) Report(ctx context.Context, c *domain.Completion) { f(ctx, c) }

// CertificateStore looks up client certificates by id. A missing entry is
// reported as domain.ErrCertificateNotFound.
type CertificateStore interface {
	GetCertificate(ctx context.Context, id string) (*domain.Certificate, error)
}

// HistoryRecorder records the URL of every submitted request.
type HistoryRecorder interface {
	RecordURL(ctx context.Context, url string) error
}

// VariableListener is notified of every variable resolved from a request's
// variable actions.
type VariableListener interface {
	VariableUpdated(ctx context.Context, name, value string)
}

// ResultSink receives exactly one terminal result per finalized request.
type ResultSink interface {
	Deliver(ctx context.Context, result *domain.Result)
}

// ResultSinkFunc adapts a function to ResultSink.
type ResultSinkFunc func(ctx context.Context, result *domain.Result)

func (f ResultSinkFunc) Deliver(ctx context.Context, result *domain.Result) { f(ctx, result) }

// Caller identifies an authenticated API client.
type Caller struct {
	Name string
}

// Authenticator validates API tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Caller, error)
}
