// Package variables implements variable evaluation and the substitution stage
// that interpolates ${...} placeholders into a request.
package variables

import (
	"context"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tjfontaine/polyglot-request-logic/internal/core/domain"
	"github.com/tjfontaine/polyglot-request-logic/internal/core/ports"
)

var placeholderPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ProgramCacheSize bounds the number of compiled expressions kept. The least
// recently used program is evicted first.
const ProgramCacheSize = 512

// ExprEvaluator resolves ${...} placeholders. A placeholder naming a known
// variable is replaced by its value; any other body is compiled as an expr
// expression and run against the variables.
type ExprEvaluator struct {
	mu  sync.RWMutex
	env map[string]string

	programs *lru.Cache[string, *vm.Program]
}

// NewExprEvaluator creates an evaluator over the ambient environment env.
func NewExprEvaluator(env map[string]string) *ExprEvaluator {
	return newExprEvaluator(env, ProgramCacheSize)
}

func newExprEvaluator(env map[string]string, cacheSize int) *ExprEvaluator {
	programs, err := lru.New[string, *vm.Program](cacheSize)
	if err != nil {
		panic(fmt.Sprintf("variables: program cache: %v", err))
	}
	return &ExprEvaluator{
		env:      maps.Clone(env),
		programs: programs,
	}
}

// SetEnvironment replaces the ambient environment.
func (e *ExprEvaluator) SetEnvironment(env map[string]string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.env = maps.Clone(env)
}

func (e *ExprEvaluator) environment() map[string]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]string, len(e.env))
	maps.Copy(out, e.env)
	return out
}

// Evaluate resolves every override value against the environment. Overrides
// are processed in name order and may reference overrides resolved before
// them.
func (e *ExprEvaluator) Evaluate(ctx context.Context, overrides map[string]string) (map[string]string, error) {
	scope := e.environment()
	out := make(map[string]string, len(overrides))
	for _, name := range slices.Sorted(maps.Keys(overrides)) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := e.interpolate(overrides[name], scope)
		if err != nil {
			return nil, &domain.EvaluationError{Field: "variable " + name, Err: err}
		}
		out[name] = v
		scope[name] = v
	}
	return out, nil
}

// Substitute interpolates url, headers and payload of req using the
// environment overlaid with vars.
func (e *ExprEvaluator) Substitute(ctx context.Context, req *domain.Request, vars map[string]string) (*domain.Request, error) {
	scope := e.environment()
	maps.Copy(scope, vars)

	out := req.Clone()
	var err error
	if out.URL, err = e.interpolate(req.URL, scope); err != nil {
		return nil, &domain.EvaluationError{Field: "url", Err: err}
	}
	if out.Headers, err = e.interpolate(req.Headers, scope); err != nil {
		return nil, &domain.EvaluationError{Field: "headers", Err: err}
	}
	if req.Payload != nil {
		p, err := e.interpolate(*req.Payload, scope)
		if err != nil {
			return nil, &domain.EvaluationError{Field: "payload", Err: err}
		}
		out.SetPayload(p)
	}
	return out, ctx.Err()
}

func (e *ExprEvaluator) interpolate(s string, scope map[string]string) (string, error) {
	if !strings.Contains(s, "${") {
		return s, nil
	}

	var firstErr error
	out := placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}
		body := strings.TrimSpace(placeholderPattern.FindStringSubmatch(match)[1])
		if v, ok := scope[body]; ok {
			return v
		}
		v, err := e.run(body, scope)
		if err != nil {
			firstErr = err
			return match
		}
		return v
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

func (e *ExprEvaluator) run(expression string, scope map[string]string) (string, error) {
	env := make(map[string]any, len(scope))
	for k, v := range scope {
		env[k] = v
	}

	program, err := e.compile(expression, env)
	if err != nil {
		return "", fmt.Errorf("compile %q: %w", expression, err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return "", fmt.Errorf("eval %q: %w", expression, err)
	}
	if result == nil {
		return "", nil
	}
	return fmt.Sprint(result), nil
}

func (e *ExprEvaluator) compile(expression string, env map[string]any) (*vm.Program, error) {
	cacheKey := expression + "\x00" + strings.Join(slices.Sorted(maps.Keys(env)), "\x00")

	if program, ok := e.programs.Get(cacheKey); ok {
		return program, nil
	}

	program, err := expr.Compile(expression, expr.Env(env))
	if err != nil {
		return nil, err
	}
	e.programs.Add(cacheKey, program)
	return program, nil
}

var _ ports.Evaluator = (*ExprEvaluator)(nil)
