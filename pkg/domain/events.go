package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventPageEnter     EventType = "page_enter"
	EventPageLeave     EventType = "page_leave"
	EventWebhookCall   EventType = "webhook_call"
	EventWebhookReturn EventType = "webhook_return"
	EventTurnComplete  EventType = "turn_complete"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
}

// PageEvent represents entry or exit from a page.
type PageEvent struct {
	EventBase
	FlowID string `json:"flow_id"`
	PageID string `json:"page_id"`
}

// WebhookEvent represents a webhook invocation.
type WebhookEvent struct {
	EventBase
	FlowID    string           `json:"flow_id"`
	PageID    string           `json:"page_id"`
	Webhook   string           `json:"webhook"`
	Tag       string           `json:"tag,omitempty"`
	Latency   time.Duration    `json:"latency,omitempty"`
	IsError   bool             `json:"is_error,omitempty"`
	ErrorKind WebhookErrorKind `json:"error_kind,omitempty"`
}

// TurnEvent summarises a finished turn.
type TurnEvent struct {
	EventBase
	MatchType MatchType     `json:"match_type"`
	Duration  time.Duration `json:"duration"`
	Fatal     bool          `json:"fatal,omitempty"`
	Closed    bool          `json:"closed,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnPageEnter     func(context.Context, *PageEvent)
	OnPageLeave     func(context.Context, *PageEvent)
	OnWebhookCall   func(context.Context, *WebhookEvent)
	OnWebhookReturn func(context.Context, *WebhookEvent)
	OnTurnComplete  func(context.Context, *TurnEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnPageEnter:     chain(h.OnPageEnter, other.OnPageEnter),
		OnPageLeave:     chain(h.OnPageLeave, other.OnPageLeave),
		OnWebhookCall:   chain(h.OnWebhookCall, other.OnWebhookCall),
		OnWebhookReturn: chain(h.OnWebhookReturn, other.OnWebhookReturn),
		OnTurnComplete:  chain(h.OnTurnComplete, other.OnTurnComplete),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
