package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/aretw0/parley/pkg/domain"
)

// HandlerFunc implements a webhook in-process. args is the request exactly as an HTTP
// webhook would receive it, decoded into a generic map.
//
// The result may be nil, a *domain.WebhookResponse, a Result, or a map with the
// keys of Result.
type HandlerFunc func(ctx context.Context, args map[string]any) (any, error)

// Result is the loosely typed reply of an in-process webhook.
type Result struct {
	Messages          []string       `mapstructure:"messages"`
	Parameters        map[string]any `mapstructure:"parameters"`
	InvalidParameters []string       `mapstructure:"invalid_parameters"`
	TargetPage        string         `mapstructure:"target_page"`
	TargetFlow        string         `mapstructure:"target_flow"`
	Payload           map[string]any `mapstructure:"payload"`
}

// Registry manages in-process webhook handlers keyed by webhook id.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register adds a handler. A handler with the same id is overwritten.
func (r *Registry) Register(webhookID string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[webhookID] = fn
}

// Has reports whether a handler is registered for the webhook.
func (r *Registry) Has(webhookID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[webhookID]
	return ok
}

// Bind adapts a typed handler. The request map is decoded into T using its
// mapstructure tags; domain.WebhookRequest itself is a valid T.
func Bind[T any](fn func(ctx context.Context, in T) (any, error)) HandlerFunc {
	return func(ctx context.Context, args map[string]any) (any, error) {
		var in T
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &in,
			WeaklyTypedInput: true,
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(args); err != nil {
			return nil, fmt.Errorf("failed to decode webhook request: %w", err)
		}
		return fn(ctx, in)
	}
}

// Invoke runs the handler registered under the webhook id.
func (r *Registry) Invoke(ctx context.Context, wh *domain.Webhook, req *domain.WebhookRequest) (resp *domain.WebhookResponse, err error) {
	r.mu.RLock()
	fn, ok := r.handlers[wh.ID]
	r.mu.RUnlock()
	if !ok {
		return nil, &domain.WebhookError{Kind: domain.WebhookUnreachable, Webhook: wh.ID, Message: "no handler registered"}
	}

	args, err := requestArgs(req)
	if err != nil {
		return nil, err
	}

	defer func() {
		if p := recover(); p != nil {
			resp = nil
			err = &domain.WebhookError{Kind: domain.WebhookApplicationError, Webhook: wh.ID, Message: fmt.Sprintf("panic: %v", p)}
		}
	}()

	out, err := fn(ctx, args)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &domain.WebhookError{Kind: domain.WebhookTimeout, Webhook: wh.ID, Err: err}
		}
		var we *domain.WebhookError
		if errors.As(err, &we) {
			return nil, we
		}
		return nil, &domain.WebhookError{Kind: domain.WebhookApplicationError, Webhook: wh.ID, Err: err}
	}
	return toResponse(wh.ID, out)
}

func requestArgs(req *domain.WebhookRequest) (map[string]any, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode webhook request: %w", err)
	}
	var args map[string]any
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, fmt.Errorf("failed to decode webhook request: %w", err)
	}
	return args, nil
}

func toResponse(webhookID string, out any) (*domain.WebhookResponse, error) {
	var res Result
	switch v := out.(type) {
	case nil:
		return &domain.WebhookResponse{}, nil
	case *domain.WebhookResponse:
		if v == nil {
			return &domain.WebhookResponse{}, nil
		}
		return v, nil
	case domain.WebhookResponse:
		return &v, nil
	case Result:
		res = v
	case *Result:
		res = *v
	case map[string]any:
		if err := mapstructure.Decode(v, &res); err != nil {
			return nil, &domain.WebhookError{Kind: domain.WebhookInvalidResponse, Webhook: webhookID, Err: err}
		}
	default:
		return nil, &domain.WebhookError{Kind: domain.WebhookInvalidResponse, Webhook: webhookID,
			Message: fmt.Sprintf("unsupported result type %T", out)}
	}

	if res.TargetPage != "" && res.TargetFlow != "" {
		return nil, &domain.WebhookError{Kind: domain.WebhookInvalidResponse, Webhook: webhookID,
			Message: "target_page and target_flow are mutually exclusive"}
	}
	resp := &domain.WebhookResponse{
		Parameters:        res.Parameters,
		InvalidParameters: res.InvalidParameters,
		Payload:           res.Payload,
	}
	for _, text := range res.Messages {
		resp.Messages = append(resp.Messages, domain.TextResponse(text))
	}
	switch {
	case res.TargetPage != "":
		resp.Target = domain.PageTarget(res.TargetPage)
	case res.TargetFlow != "":
		resp.Target = domain.FlowTarget(res.TargetFlow)
	}
	return resp, nil
}
