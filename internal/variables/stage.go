package variables

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync/atomic"

	"github.com/tjfontaine/polyglot-request-logic/internal/core/domain"
	"github.com/tjfontaine/polyglot-request-logic/internal/core/ports"
)

// Stage applies a request's variable actions and interpolates variables into
// the request before it reaches the pre-request hooks.
type Stage struct {
	evaluator ports.Evaluator
	listener  ports.VariableListener
	disabled  atomic.Bool
	logger    *slog.Logger

	onFallback func(err error)
}

// StageOption configures a Stage.
type StageOption func(*Stage)

// WithListener notifies l of every resolved override variable.
func WithListener(l ports.VariableListener) StageOption {
	return func(s *Stage) { s.listener = l }
}

// WithDisabled turns interpolation off. Variable actions are still evaluated
// and reported to the listener.
func WithDisabled(disabled bool) StageOption {
	return func(s *Stage) { s.disabled.Store(disabled) }
}

// WithFallbackHandler registers fn to be called whenever substitution falls
// back to the unsubstituted request.
func WithFallbackHandler(fn func(err error)) StageOption {
	return func(s *Stage) { s.onFallback = fn }
}

// WithStageLogger sets the logger used to report recovered failures.
func WithStageLogger(logger *slog.Logger) StageOption {
	return func(s *Stage) { s.logger = logger }
}

// NewStage creates a substitution stage backed by evaluator.
func NewStage(evaluator ports.Evaluator, opts ...StageOption) *Stage {
	s := &Stage{
		evaluator: evaluator,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetDisabled toggles interpolation at runtime.
func (s *Stage) SetDisabled(disabled bool) {
	s.disabled.Store(disabled)
}

// Disabled reports whether interpolation is turned off.
func (s *Stage) Disabled() bool {
	return s.disabled.Load()
}

// Substitute returns the request with variables interpolated. Evaluation
// failures are logged and the original request is returned unchanged.
func (s *Stage) Substitute(ctx context.Context, req *domain.Request) *domain.Request {
	overrides := Overrides(req)

	var resolved map[string]string
	if len(overrides) > 0 {
		var err error
		resolved, err = s.evaluator.Evaluate(ctx, overrides)
		if err != nil {
			s.recovered(req, err)
			return req
		}
		s.notify(ctx, resolved)
	}

	if s.disabled.Load() {
		return req
	}

	out, err := s.evaluator.Substitute(ctx, req, resolved)
	if err != nil {
		s.recovered(req, err)
		return req
	}
	return out
}

// Overrides builds the override map from the request's variable actions.
// Disabled definitions are skipped and later definitions win.
func Overrides(req *domain.Request) map[string]string {
	if req.RequestActions == nil || len(req.RequestActions.Variables) == 0 {
		return nil
	}
	out := make(map[string]string, len(req.RequestActions.Variables))
	for _, v := range req.RequestActions.Variables {
		if !v.IsEnabled() {
			continue
		}
		out[v.Variable] = v.Value
	}
	return out
}

func (s *Stage) notify(ctx context.Context, resolved map[string]string) {
	if s.listener == nil {
		return
	}
	for _, name := range slices.Sorted(maps.Keys(resolved)) {
		s.listener.VariableUpdated(ctx, name, resolved[name])
	}
}

// TODO: surface evaluation failures to the caller once clients can tell a
// misconfigured variable apart from an intentionally literal placeholder.
func (s *Stage) recovered(req *domain.Request, err error) {
	s.logger.Warn("variable evaluation failed, using unsubstituted request",
		slog.String("request_id", req.ID),
		slog.String("error", err.Error()))
	if s.onFallback != nil {
		s.onFallback(err)
	}
}
