package webhook

import (
	"context"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

// ExecScheme prefixes webhook URLs served by a local process.
const ExecScheme = "exec:"

// Mux sends a webhook to the in-process registry when a handler is registered for
// its id, to the process invoker for exec: URLs, and over HTTP otherwise.
type Mux struct {
	Registry *Registry
	HTTP     *HTTPInvoker
	Exec     ports.WebhookInvoker
}

// NewMux creates a Mux. Either side may be nil.
func NewMux(registry *Registry, httpInvoker *HTTPInvoker) *Mux {
	return &Mux{Registry: registry, HTTP: httpInvoker}
}

// WithExec routes exec: webhooks to inv.
func (m *Mux) WithExec(inv ports.WebhookInvoker) *Mux {
	m.Exec = inv
	return m
}

// Invoke implements ports.WebhookInvoker.
func (m *Mux) Invoke(ctx context.Context, wh *domain.Webhook, req *domain.WebhookRequest) (*domain.WebhookResponse, error) {
	switch {
	case m.Registry != nil && m.Registry.Has(wh.ID):
		return m.Registry.Invoke(ctx, wh, req)
	case strings.HasPrefix(wh.URL, ExecScheme):
		if m.Exec != nil {
			return m.Exec.Invoke(ctx, wh, req)
		}
	case m.HTTP != nil:
		return m.HTTP.Invoke(ctx, wh, req)
	}
	return nil, &domain.WebhookError{Kind: domain.WebhookUnreachable, Webhook: wh.ID, Message: "no invoker for webhook"}
}
