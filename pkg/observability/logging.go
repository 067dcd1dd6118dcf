package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/parley/pkg/domain"
)

// LoggingHooks writes an audit line for every lifecycle event.
// Page movements and webhook calls log at Debug; turns at Info, fatal turns at Error.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnPageEnter: func(ctx context.Context, e *domain.PageEvent) {
			logger.DebugContext(ctx, "Page entered", "session_id", e.SessionID, "flow", e.FlowID, "page", e.PageID)
		},
		OnPageLeave: func(ctx context.Context, e *domain.PageEvent) {
			logger.DebugContext(ctx, "Page left", "session_id", e.SessionID, "flow", e.FlowID, "page", e.PageID)
		},
		OnWebhookCall: func(ctx context.Context, e *domain.WebhookEvent) {
			logger.DebugContext(ctx, "Webhook called", "session_id", e.SessionID, "webhook", e.Webhook, "tag", e.Tag)
		},
		OnWebhookReturn: func(ctx context.Context, e *domain.WebhookEvent) {
			if e.IsError {
				logger.WarnContext(ctx, "Webhook failed",
					"session_id", e.SessionID, "webhook", e.Webhook, "kind", e.ErrorKind, "latency", e.Latency)
				return
			}
			logger.DebugContext(ctx, "Webhook returned", "session_id", e.SessionID, "webhook", e.Webhook, "latency", e.Latency)
		},
		OnTurnComplete: func(ctx context.Context, e *domain.TurnEvent) {
			attrs := []any{"session_id", e.SessionID, "match", e.MatchType, "duration", e.Duration, "closed", e.Closed}
			if e.Fatal {
				logger.ErrorContext(ctx, "Turn failed", attrs...)
				return
			}
			logger.InfoContext(ctx, "Turn complete", attrs...)
		},
	}
}
