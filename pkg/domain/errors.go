package domain

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrAgentNotLoaded is returned when a turn arrives before any agent was loaded.
var ErrAgentNotLoaded = errors.New("agent not loaded")

// ErrInvalidAgent is wrapped by ValidationError.
var ErrInvalidAgent = errors.New("invalid agent")

// ErrInvalidTarget is returned when a target sets both a page and a flow.
var ErrInvalidTarget = errors.New("invalid target")

// ErrFlowNotFound is returned when the session points at a flow the agent does not define.
var ErrFlowNotFound = errors.New("flow not found")

// ErrPageNotFound is returned when the session points at a page the agent does not define.
var ErrPageNotFound = errors.New("page not found")

// ErrMalformedFulfillment is returned when conditional cases nest deeper than the runtime allows.
var ErrMalformedFulfillment = errors.New("malformed fulfillment")

// ErrWebhookLoopDetected is returned when a webhook failure handler leads to another webhook call
// within the same turn.
var ErrWebhookLoopDetected = errors.New("webhook loop detected")

// ErrTransitionLimit is returned when a single turn chains more page transitions than allowed.
var ErrTransitionLimit = errors.New("transition limit exceeded")

// ErrMatcherUnavailable is recorded when the matcher fails; the turn continues as a no-match.
var ErrMatcherUnavailable = errors.New("matcher unavailable")

// WebhookErrorKind classifies webhook failures.
type WebhookErrorKind string

const (
	WebhookTimeout          WebhookErrorKind = "TIMEOUT"
	WebhookUnreachable      WebhookErrorKind = "UNREACHABLE"
	WebhookInvalidResponse  WebhookErrorKind = "INVALID_RESPONSE"
	WebhookApplicationError WebhookErrorKind = "APPLICATION_ERROR"
)

// WebhookError is returned by webhook invokers.
type WebhookError struct {
	Kind    WebhookErrorKind
	Webhook string
	Status  int
	Message string
	Err     error
}

func (e *WebhookError) Error() string {
	msg := fmt.Sprintf("webhook %q: %s", e.Webhook, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *WebhookError) Unwrap() error { return e.Err }

// Event returns the built-in event raised for this failure.
func (e *WebhookError) Event() string {
	if e.Kind == WebhookTimeout {
		return EventWebhookTimeout
	}
	return EventWebhookError
}

// AsWebhookError classifies any error returned by an invoker. Unclassified errors are
// reported as Unreachable.
func AsWebhookError(webhookID string, err error) *WebhookError {
	var we *WebhookError
	if errors.As(err, &we) {
		return we
	}
	return &WebhookError{Kind: WebhookUnreachable, Webhook: webhookID, Err: err}
}
