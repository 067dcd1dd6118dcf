package ports

import (
	"context"

	"github.com/aretw0/parley/pkg/domain"
)

// WebhookInvoker calls external fulfillment endpoints.
type WebhookInvoker interface {
	// Invoke calls the webhook. Failures should be returned as *domain.WebhookError;
	// any other error is classified as unreachable.
	Invoke(ctx context.Context, webhook *domain.Webhook, req *domain.WebhookRequest) (*domain.WebhookResponse, error)
}

// WebhookInvokerFunc adapts a function to the WebhookInvoker interface.
type WebhookInvokerFunc func(ctx context.Context, webhook *domain.Webhook, req *domain.WebhookRequest) (*domain.WebhookResponse, error)

// Invoke calls f.
func (f WebhookInvokerFunc) Invoke(ctx context.Context, webhook *domain.Webhook, req *domain.WebhookRequest) (*domain.WebhookResponse, error) {
	return f(ctx, webhook, req)
}
