package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/polyglot-request-logic/internal/core/domain"
	"github.com/tjfontaine/polyglot-request-logic/internal/core/ports"
)

// Action is the answer of a webhook.
type Action string

const (
	ActionAllow  Action = "allow"
	ActionDeny   Action = "deny"
	ActionMutate Action = "mutate"
)

// WebhookInput is posted to webhooks.
type WebhookInput struct {
	Phase    string                   `json:"phase"`
	Request  json.RawMessage          `json:"request,omitempty"`
	Response *domain.Response         `json:"response,omitempty"`
	Actions  []json.RawMessage        `json:"actions,omitempty"`
	Sent     *domain.TransportRequest `json:"sent,omitempty"`
	Metadata map[string]any           `json:"metadata,omitempty"`
}

// RequestPatch lists the request fields a webhook replaces. Absent fields are
// left unchanged.
type RequestPatch struct {
	URL     *string `json:"url,omitempty"`
	Method  *string `json:"method,omitempty"`
	Headers *string `json:"headers,omitempty"`
	Payload *string `json:"payload,omitempty"`
}

// Apply writes the patch to req.
func (p *RequestPatch) Apply(req *domain.Request) {
	if p == nil {
		return
	}
	if p.URL != nil {
		req.URL = *p.URL
	}
	if p.Method != nil {
		req.Method = *p.Method
	}
	if p.Headers != nil {
		req.Headers = *p.Headers
	}
	if p.Payload != nil {
		req.SetPayload(*p.Payload)
	}
}

// WebhookOutput is returned by webhooks.
type WebhookOutput struct {
	Action     Action          `json:"action"`
	Request    *RequestPatch   `json:"request,omitempty"`
	DenyReason string          `json:"deny_reason,omitempty"`
	Handled    bool            `json:"handled,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// WebhookHook calls an external HTTP endpoint. It serves as a pre-request
// hook or as a response hook depending on its type.
type WebhookHook struct {
	name          string
	hookType      ports.StageType
	url           string
	timeout       time.Duration
	onError       Action // Action to take on error (allow or deny)
	retries       int
	awaitContinue bool
	headers       map[string]string
	client        *http.Client
	logger        *slog.Logger
}

// WebhookConfig configures a webhook hook.
type WebhookConfig struct {
	Name    string
	Type    ports.StageType
	URL     string
	Timeout time.Duration
	OnError Action // "allow" or "deny" (default: deny)
	Retries int
	// AwaitContinue declares a zero timeout hint, so the request waits for an
	// explicit continuation once the webhook answered.
	AwaitContinue bool
	Headers       map[string]string
	// Client overrides the HTTP client. Its timeout is left untouched.
	Client *http.Client
	Logger *slog.Logger
}

// NewWebhookHook creates a new webhook hook.
func NewWebhookHook(cfg WebhookConfig) *WebhookHook {
	onError := cfg.OnError
	if onError == "" {
		onError = ActionDeny // Default to fail-closed
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &WebhookHook{
		name:          cfg.Name,
		hookType:      cfg.Type,
		url:           cfg.URL,
		timeout:       cfg.Timeout,
		onError:       onError,
		retries:       cfg.Retries,
		awaitContinue: cfg.AwaitContinue,
		headers:       cfg.Headers,
		client:        client,
		logger:        logger,
	}
}

// Name returns the hook identifier.
func (h *WebhookHook) Name() string {
	return h.name
}

// Type returns when this hook runs.
func (h *WebhookHook) Type() ports.StageType {
	return h.hookType
}

// BeforeRequest registers the webhook call as a pending operation. The
// request is encoded now; later changes are not sent.
func (h *WebhookHook) BeforeRequest(ctx context.Context, req *domain.Request) (ports.Decision, error) {
	encoded, err := json.Marshal(req)
	if err != nil {
		return ports.Decision{}, fmt.Errorf("marshal request: %w", err)
	}
	in := &WebhookInput{
		Phase:    "request",
		Request:  encoded,
		Metadata: map[string]any{"request_id": req.ID, "hook": h.name},
	}

	id := req.ID
	op := ports.Deferral{
		Name: h.name,
		Run: func(ctx context.Context) (ports.Mutation, error) {
			return h.runPre(ctx, id, in)
		},
	}
	switch {
	case h.awaitContinue:
		op = op.WithTimeout(0)
	case h.timeout > 0:
		op = op.WithTimeout(h.timeout)
	}
	return ports.Defer(op), nil
}

func (h *WebhookHook) runPre(ctx context.Context, id string, in *WebhookInput) (ports.Mutation, error) {
	out, err := h.call(ctx, in)
	if err != nil {
		return h.handlePreError(id, err)
	}

	switch out.Action {
	case ActionDeny:
		reason := out.DenyReason
		if reason == "" {
			reason = "denied by hook " + h.name
		}
		return nil, &DeniedError{HookName: h.name, Reason: reason}
	case ActionMutate:
		patch := out.Request
		return func(req *domain.Request) { patch.Apply(req) }, nil
	default:
		return nil, nil
	}
}

func (h *WebhookHook) handlePreError(id string, err error) (ports.Mutation, error) {
	switch h.onError {
	case ActionAllow:
		// Fail-open: log and allow
		h.logger.Warn("webhook failed, allowing request",
			slog.String("request_id", id),
			slog.String("hook", h.name),
			slog.String("error", err.Error()))
		return nil, nil
	default:
		return nil, &DeniedError{
			HookName: h.name,
			Reason:   fmt.Sprintf("webhook error: %v", err),
		}
	}
}

// RunResponseActions posts the response and the declared actions to the
// webhook. A webhook answering handled=true supplies the actions result.
func (h *WebhookHook) RunResponseActions(ctx context.Context, in *ports.ResponseActionsInput) (ports.ResponseDecision, error) {
	out, err := h.call(ctx, &WebhookInput{
		Phase:    "response",
		Response: in.Response,
		Actions:  in.Actions,
		Sent:     in.Request,
		Metadata: map[string]any{"request_id": in.ID, "hook": h.name},
	})
	if err != nil {
		if h.onError == ActionAllow {
			h.logger.Warn("webhook failed, skipping response actions",
				slog.String("request_id", in.ID),
				slog.String("hook", h.name),
				slog.String("error", err.Error()))
			return ports.ResponseDecision{}, nil
		}
		return ports.ResponseDecision{}, fmt.Errorf("webhook hook %s failed: %w", h.name, err)
	}

	if !out.Handled {
		return ports.ResponseDecision{}, nil
	}
	var result any
	if len(out.Result) > 0 {
		if err := json.Unmarshal(out.Result, &result); err != nil {
			return ports.ResponseDecision{}, fmt.Errorf("unmarshal webhook result: %w", err)
		}
	}
	return ports.ResponseDecision{Handled: true, Result: result}, nil
}

// call posts in, retrying failed attempts.
func (h *WebhookHook) call(ctx context.Context, in *WebhookInput) (*WebhookOutput, error) {
	var lastErr error

	attempts := h.retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		output, err := h.doRequest(ctx, in)
		if err == nil {
			return output, nil
		}
		lastErr = err

		// Don't retry on context cancellation
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (h *WebhookHook) doRequest(ctx context.Context, in *WebhookInput) (*WebhookOutput, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal webhook input: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	// Add custom headers
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var output WebhookOutput
	if err := json.Unmarshal(respBody, &output); err != nil {
		return nil, fmt.Errorf("unmarshal webhook output: %w", err)
	}

	switch output.Action {
	case ActionAllow, ActionDeny, ActionMutate:
	case "":
		output.Action = ActionAllow // Default to allow if not specified
	default:
		return nil, fmt.Errorf("invalid action from webhook: %s", output.Action)
	}

	return &output, nil
}

var (
	_ ports.PreRequestHook = (*WebhookHook)(nil)
	_ ports.ResponseHook   = (*WebhookHook)(nil)
)
