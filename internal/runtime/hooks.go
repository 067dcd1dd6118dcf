package runtime

import (
	"context"
	"time"

	"github.com/aretw0/parley/pkg/domain"
)

func (e *Engine) emitPageEnter(ctx context.Context, st *domain.State) {
	if e.hooks.OnPageEnter == nil {
		return
	}
	e.hooks.OnPageEnter(ctx, &domain.PageEvent{
		EventBase: e.base(domain.EventPageEnter, st.SessionID),
		FlowID:    st.Flow,
		PageID:    st.Page,
	})
}

func (e *Engine) emitPageLeave(ctx context.Context, st *domain.State) {
	if e.hooks.OnPageLeave == nil {
		return
	}
	e.hooks.OnPageLeave(ctx, &domain.PageEvent{
		EventBase: e.base(domain.EventPageLeave, st.SessionID),
		FlowID:    st.Flow,
		PageID:    st.Page,
	})
}

func (e *Engine) emitWebhookCall(ctx context.Context, st *domain.State, webhook, tag string) {
	if e.hooks.OnWebhookCall == nil {
		return
	}
	e.hooks.OnWebhookCall(ctx, &domain.WebhookEvent{
		EventBase: e.base(domain.EventWebhookCall, st.SessionID),
		FlowID:    st.Flow,
		PageID:    st.Page,
		Webhook:   webhook,
		Tag:       tag,
	})
}

func (e *Engine) emitWebhookReturn(ctx context.Context, st *domain.State, webhook, tag string, latency time.Duration, we *domain.WebhookError) {
	if e.hooks.OnWebhookReturn == nil {
		return
	}
	evt := &domain.WebhookEvent{
		EventBase: e.base(domain.EventWebhookReturn, st.SessionID),
		FlowID:    st.Flow,
		PageID:    st.Page,
		Webhook:   webhook,
		Tag:       tag,
		Latency:   latency,
	}
	if we != nil {
		evt.IsError = true
		evt.ErrorKind = we.Kind
	}
	e.hooks.OnWebhookReturn(ctx, evt)
}

func (e *Engine) emitTurnComplete(ctx context.Context, sessionID string, match domain.Match, started time.Time, fatal, closed bool) {
	if e.hooks.OnTurnComplete == nil {
		return
	}
	e.hooks.OnTurnComplete(ctx, &domain.TurnEvent{
		EventBase: e.base(domain.EventTurnComplete, sessionID),
		MatchType: match.Type,
		Duration:  e.now().Sub(started),
		Fatal:     fatal,
		Closed:    closed,
	})
}

func (e *Engine) base(typ domain.EventType, sessionID string) domain.EventBase {
	return domain.EventBase{Timestamp: e.now(), Type: typ, SessionID: sessionID}
}
