package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/parley/pkg/domain"
)

// fulfillmentOutcome carries the webhook effects that change control flow.
type fulfillmentOutcome struct {
	target     domain.Target
	webhookErr *domain.WebhookError
	invalid    []string
}

// execute runs a fulfillment: messages, parameter actions, conditional cases, webhook.
func (t *turn) execute(f *domain.Fulfillment) (fulfillmentOutcome, error) {
	if f.IsEmpty() {
		return fulfillmentOutcome{}, nil
	}
	for _, m := range f.Messages {
		t.emit(m)
	}
	t.applyActions(f.SetParameterActions)
	if err := t.resolveCases(f.ConditionalCases); err != nil {
		return fulfillmentOutcome{}, err
	}
	if f.Webhook == "" {
		return fulfillmentOutcome{}, nil
	}
	return t.callWebhook(f.Webhook, f.Tag)
}

// callWebhook invokes a webhook and applies its response. Invoker failures are returned
// in the outcome; only loop detection and cancellation abort the turn.
func (t *turn) callWebhook(id, tag string) (fulfillmentOutcome, error) {
	switch {
	case t.recovering:
		return fulfillmentOutcome{}, fmt.Errorf("%w: %q called while handling a failure", domain.ErrWebhookLoopDetected, id)
	case t.failed[id]:
		return fulfillmentOutcome{}, fmt.Errorf("%w: %q already failed in this turn", domain.ErrWebhookLoopDetected, id)
	case t.webhookCalls >= t.engine.maxWebhookCalls:
		return fulfillmentOutcome{}, fmt.Errorf("%w: more than %d webhook calls", domain.ErrWebhookLoopDetected, t.engine.maxWebhookCalls)
	}
	t.webhookCalls++

	wh, ok := t.agent.Webhook(id)
	if !ok {
		t.failed[id] = true
		return fulfillmentOutcome{webhookErr: &domain.WebhookError{
			Kind: domain.WebhookUnreachable, Webhook: id, Message: "webhook not defined",
		}}, nil
	}

	timeout := wh.Timeout
	if timeout <= 0 {
		timeout = t.engine.webhookTimeout
	}
	req := t.webhookRequest(tag)

	t.engine.emitWebhookCall(t.ctx, t.state, id, tag)
	started := t.engine.now()

	resp, err := t.invoke(wh, req, timeout)
	if err == nil {
		err = t.checkResponse(id, resp)
	}

	latency := t.engine.now().Sub(started)
	call := domain.WebhookCall{Webhook: id, Tag: tag, Latency: latency}

	if err != nil {
		if ctxErr := t.ctx.Err(); ctxErr != nil {
			return fulfillmentOutcome{}, ctxErr
		}
		we := domain.AsWebhookError(id, err)
		if we.Webhook == "" {
			we.Webhook = id
		}
		t.failed[id] = true
		call.Error = we.Error()
		t.diag.Webhooks = append(t.diag.Webhooks, call)
		t.engine.emitWebhookReturn(t.ctx, t.state, id, tag, latency, we)
		t.engine.logger.Warn("Webhook call failed",
			"session_id", t.state.SessionID, "webhook", id, "kind", we.Kind, "latency", latency, "err", err)
		return fulfillmentOutcome{webhookErr: we}, nil
	}

	t.diag.Webhooks = append(t.diag.Webhooks, call)
	t.engine.emitWebhookReturn(t.ctx, t.state, id, tag, latency, nil)
	t.engine.logger.Debug("Webhook returned", "session_id", t.state.SessionID, "webhook", id, "latency", latency)

	return t.applyWebhookResponse(resp), nil
}

func (t *turn) invoke(wh *domain.Webhook, req *domain.WebhookRequest, timeout time.Duration) (*domain.WebhookResponse, error) {
	if t.engine.webhooks == nil {
		return nil, &domain.WebhookError{Kind: domain.WebhookUnreachable, Webhook: wh.ID, Message: "no webhook invoker configured"}
	}
	wctx, cancel := context.WithTimeout(t.ctx, timeout)
	defer cancel()

	resp, err := t.engine.webhooks.Invoke(wctx, wh, req)
	if err != nil {
		if errors.Is(wctx.Err(), context.DeadlineExceeded) && t.ctx.Err() == nil {
			var we *domain.WebhookError
			if !errors.As(err, &we) || we.Kind != domain.WebhookTimeout {
				return nil, &domain.WebhookError{Kind: domain.WebhookTimeout, Webhook: wh.ID, Err: err}
			}
		}
		return nil, err
	}
	if resp == nil {
		resp = &domain.WebhookResponse{}
	}
	return resp, nil
}

// checkResponse rejects a response whose target names no page or flow of the agent.
// The whole response is discarded and the failure is handled like any other webhook
// error, so sys.webhook-error handlers apply.
func (t *turn) checkResponse(id string, resp *domain.WebhookResponse) error {
	target := resp.Target
	switch {
	case target.IsZero(), target.EndsSession():
		return nil
	case target.IsFlow():
		if _, ok := t.agent.StartPage(target.ID()); ok {
			return nil
		}
	default:
		switch target.ID() {
		case domain.PageEndFlow, domain.PageCurrent, domain.PageStart:
			return nil
		}
		if _, ok := t.agent.FlowOf(target.ID()); ok {
			return nil
		}
	}
	return &domain.WebhookError{
		Kind:    domain.WebhookInvalidResponse,
		Webhook: id,
		Message: "unknown target " + target.String(),
	}
}

func (t *turn) applyWebhookResponse(resp *domain.WebhookResponse) fulfillmentOutcome {
	for _, m := range resp.Messages {
		t.emit(m)
	}
	for k, v := range resp.Parameters {
		if v == nil {
			delete(t.state.Parameters, k)
			continue
		}
		t.state.Parameters[k] = v
	}
	if resp.Payload != nil {
		t.emit(domain.ResponseMessage{Payload: resp.Payload})
	}
	return fulfillmentOutcome{
		target:  resp.Target,
		invalid: resp.InvalidParameters,
	}
}

// webhookRequest snapshots the turn for a webhook.
func (t *turn) webhookRequest(tag string) *domain.WebhookRequest {
	req := &domain.WebhookRequest{
		RequestID:  uuid.NewString(),
		SessionID:  t.state.SessionID,
		Tag:        tag,
		Language:   language(t.agent, t.input),
		Text:       t.match.ResolvedInput,
		Parameters: domain.CloneParams(t.state.Parameters),
		PageInfo:   domain.PageInfo{Flow: t.state.Flow, Page: t.state.Page},
		Messages:   append([]domain.ResponseMessage(nil), t.messages...),
	}
	if req.Text == "" {
		req.Text = t.input.Text
	}
	if t.match.HasIntent() {
		req.Intent = &domain.IntentInfo{
			Intent:     t.match.Intent,
			Confidence: t.match.Confidence,
			Parameters: domain.CloneParams(t.match.Parameters),
		}
	}
	if form := t.page().Form; form != nil {
		for _, p := range form.Parameters {
			info := domain.ParameterInfo{Name: p.Name, Required: p.Required, State: domain.ParameterEmpty}
			if v, ok := req.Parameters[p.Name]; ok && !isEmptyValue(v) {
				info.State = domain.ParameterFilled
				info.Value = v
			}
			req.PageInfo.FormInfo.Parameters = append(req.PageInfo.FormInfo.Parameters, info)
		}
	}
	return req
}
