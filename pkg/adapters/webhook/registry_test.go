package webhook_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/parley/pkg/adapters/webhook"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

func TestRegistry_MapResult(t *testing.T) {
	reg := webhook.NewRegistry()
	reg.Register("crm", func(_ context.Context, args map[string]any) (any, error) {
		assert.Equal(t, "s1", args["session_id"])
		params := args["parameters"].(map[string]any)
		return map[string]any{
			"messages":           []string{"Hello " + params["size"].(string)},
			"parameters":         map[string]any{"checked": true},
			"invalid_parameters": []string{"crust"},
			"target_flow":        "billing",
		}, nil
	})

	resp, err := reg.Invoke(context.Background(), &domain.Webhook{ID: "crm"}, sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello large"}, resp.Messages[0].Text.Text)
	assert.Equal(t, map[string]any{"checked": true}, resp.Parameters)
	assert.Equal(t, []string{"crust"}, resp.InvalidParameters)
	assert.Equal(t, domain.FlowTarget("billing"), resp.Target)
}

func TestRegistry_Bind(t *testing.T) {
	type lookup struct {
		SessionID string `mapstructure:"session_id"`
		Tag       string `mapstructure:"tag"`
		Intent    struct {
			Name       string  `mapstructure:"intent"`
			Confidence float64 `mapstructure:"confidence"`
		} `mapstructure:"intent_info"`
	}

	reg := webhook.NewRegistry()
	reg.Register("typed", webhook.Bind(func(_ context.Context, in lookup) (any, error) {
		return webhook.Result{Parameters: map[string]any{"seen": in.SessionID + "/" + in.Tag + "/" + in.Intent.Name}}, nil
	}))
	reg.Register("request", webhook.Bind(func(_ context.Context, in domain.WebhookRequest) (any, error) {
		return &domain.WebhookResponse{Parameters: map[string]any{"page": in.PageInfo.Page, "state": string(in.PageInfo.FormInfo.Parameters[0].State)}}, nil
	}))

	resp, err := reg.Invoke(context.Background(), &domain.Webhook{ID: "typed"}, sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "s1/lookup/order", resp.Parameters["seen"])

	resp, err = reg.Invoke(context.Background(), &domain.Webhook{ID: "request"}, sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"page": "size", "state": "FILLED"}, resp.Parameters)
}

func TestRegistry_Errors(t *testing.T) {
	reg := webhook.NewRegistry()
	reg.Register("fails", func(context.Context, map[string]any) (any, error) { return nil, errors.New("nope") })
	reg.Register("panics", func(context.Context, map[string]any) (any, error) { panic("boom") })
	reg.Register("weird", func(context.Context, map[string]any) (any, error) { return 42, nil })
	reg.Register("typed-error", func(context.Context, map[string]any) (any, error) {
		return nil, &domain.WebhookError{Kind: domain.WebhookTimeout, Webhook: "typed-error"}
	})

	tests := map[string]domain.WebhookErrorKind{
		"fails":       domain.WebhookApplicationError,
		"panics":      domain.WebhookApplicationError,
		"weird":       domain.WebhookInvalidResponse,
		"typed-error": domain.WebhookTimeout,
		"missing":     domain.WebhookUnreachable,
	}
	for id, kind := range tests {
		t.Run(id, func(t *testing.T) {
			_, err := reg.Invoke(context.Background(), &domain.Webhook{ID: id}, sampleRequest())
			var we *domain.WebhookError
			require.ErrorAs(t, err, &we)
			assert.Equal(t, kind, we.Kind)
		})
	}
}

func TestMux(t *testing.T) {
	reg := webhook.NewRegistry()
	reg.Register("local", func(context.Context, map[string]any) (any, error) {
		return webhook.Result{Messages: []string{"local"}}, nil
	})
	wh, _ := serve(t, 200, `{"fulfillment_response": {"messages": [{"text": {"text": ["remote"]}}]}}`)
	mux := webhook.NewMux(reg, webhook.NewHTTPInvoker())

	resp, err := mux.Invoke(context.Background(), &domain.Webhook{ID: "local"}, sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "local", resp.Messages[0].PlainText())

	resp, err = mux.Invoke(context.Background(), wh, sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "remote", resp.Messages[0].PlainText())

	exec := ports.WebhookInvokerFunc(func(_ context.Context, wh *domain.Webhook, _ *domain.WebhookRequest) (*domain.WebhookResponse, error) {
		return &domain.WebhookResponse{Messages: []domain.ResponseMessage{domain.TextResponse("ran " + wh.URL)}}, nil
	})
	resp, err = mux.WithExec(exec).Invoke(context.Background(), &domain.Webhook{ID: "script", URL: "exec:lookup"}, sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "ran exec:lookup", resp.Messages[0].PlainText())

	_, err = webhook.NewMux(reg, webhook.NewHTTPInvoker()).Invoke(context.Background(), &domain.Webhook{ID: "script", URL: "exec:lookup"}, sampleRequest())
	assert.Error(t, err, "exec webhooks never go over HTTP")

	_, err = webhook.NewMux(nil, nil).Invoke(context.Background(), wh, sampleRequest())
	assert.Error(t, err)
}
