package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tjfontaine/polyglot-request-logic/internal/core/ports"
	"github.com/tjfontaine/polyglot-request-logic/internal/pkg/config"
)

// DefaultWebhookTimeout applies to hooks configured without a timeout.
const DefaultWebhookTimeout = 5 * time.Second

var validate = validator.New()

// HooksFromConfig builds webhook hook configurations for a registry.
func HooksFromConfig(cfg config.HooksConfig, logger *slog.Logger) ([]HookConfig, error) {
	hooks := make([]HookConfig, 0, len(cfg.Pre)+len(cfg.Post))

	for _, hc := range cfg.Pre {
		h, err := newWebhookFromConfig(hc, ports.StagePre, logger)
		if err != nil {
			return nil, fmt.Errorf("pre hook %s: %w", hc.Name, err)
		}
		hooks = append(hooks, HookConfig{Name: hc.Name, Type: ports.StagePre, Order: hc.Order, Pre: h})
	}
	for _, hc := range cfg.Post {
		h, err := newWebhookFromConfig(hc, ports.StagePost, logger)
		if err != nil {
			return nil, fmt.Errorf("post hook %s: %w", hc.Name, err)
		}
		hooks = append(hooks, HookConfig{Name: hc.Name, Type: ports.StagePost, Order: hc.Order, Post: h})
	}

	return hooks, nil
}

// NewRegistryFromConfig creates a registry holding the configured webhooks.
func NewRegistryFromConfig(cfg config.HooksConfig, logger *slog.Logger) (*Registry, error) {
	hooks, err := HooksFromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewRegistry(hooks...), nil
}

func newWebhookFromConfig(cfg config.HookConfig, hookType ports.StageType, logger *slog.Logger) (*WebhookHook, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid hook config: %w", err)
	}

	timeout := DefaultWebhookTimeout
	if cfg.Timeout != "" {
		var err error
		timeout, err = time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", cfg.Timeout, err)
		}
	}

	onError := ActionDeny
	if cfg.OnError == string(ActionAllow) {
		onError = ActionAllow
	}

	return NewWebhookHook(WebhookConfig{
		Name:          cfg.Name,
		Type:          hookType,
		URL:           cfg.URL,
		Timeout:       timeout,
		OnError:       onError,
		Retries:       cfg.Retries,
		AwaitContinue: cfg.AwaitContinue && hookType == ports.StagePre,
		Headers:       cfg.Headers,
		Logger:        logger,
	}), nil
}
