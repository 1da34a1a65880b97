package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tjfontaine/polyglot-request-logic/internal/core/ports"
)

// Registry holds the ordered pre-request and response hooks. The hook lists
// can be replaced at runtime; requests already past a phase keep the hooks
// they saw.
type Registry struct {
	mu   sync.RWMutex
	pre  []ports.PreRequestHook
	post []ports.ResponseHook
}

// HookConfig places a hook in the registry.
type HookConfig struct {
	Name  string
	Type  ports.StageType
	Order int
	// Pre is set for ports.StagePre hooks, Post for ports.StagePost hooks.
	Pre  ports.PreRequestHook
	Post ports.ResponseHook
}

// NewRegistry creates a registry from hook configurations.
func NewRegistry(hooks ...HookConfig) *Registry {
	r := &Registry{}
	r.Replace(hooks...)
	return r
}

// Replace swaps all hooks for the given ones, ordered by Order. Hooks with
// equal order keep their relative position.
func (r *Registry) Replace(hooks ...HookConfig) {
	var preHooks, postHooks []HookConfig

	for _, h := range hooks {
		switch {
		case h.Type == ports.StagePre && h.Pre != nil:
			preHooks = append(preHooks, h)
		case h.Type == ports.StagePost && h.Post != nil:
			postHooks = append(postHooks, h)
		}
	}

	// Sort by order
	sort.SliceStable(preHooks, func(i, j int) bool {
		return preHooks[i].Order < preHooks[j].Order
	})
	sort.SliceStable(postHooks, func(i, j int) bool {
		return postHooks[i].Order < postHooks[j].Order
	})

	pre := make([]ports.PreRequestHook, len(preHooks))
	for i, h := range preHooks {
		pre[i] = h.Pre
	}
	post := make([]ports.ResponseHook, len(postHooks))
	for i, h := range postHooks {
		post[i] = h.Post
	}

	r.mu.Lock()
	r.pre, r.post = pre, post
	r.mu.Unlock()
}

// PreRequestHooks returns the pre-request hooks in execution order.
func (r *Registry) PreRequestHooks() []ports.PreRequestHook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pre
}

// ResponseHooks returns the response hooks in execution order.
func (r *Registry) ResponseHooks() []ports.ResponseHook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.post
}

// HasPreHooks returns true if there are any pre-request hooks configured.
func (r *Registry) HasPreHooks() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pre) > 0
}

// HasPostHooks returns true if there are any response hooks configured.
func (r *Registry) HasPostHooks() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.post) > 0
}

// DeniedError is returned when a hook denies a request.
type DeniedError struct {
	HookName string
	Reason   string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("request denied by %s: %s", e.HookName, e.Reason)
}

// IsDenied returns true if the error is a hook denial.
func IsDenied(err error) bool {
	var de *DeniedError
	return errors.As(err, &de)
}
