package domain

import "time"

// TurnRequest is the caller-facing input of a turn.
type TurnRequest struct {
	SessionID string    `json:"session_id"`
	Input     TurnInput `json:"input"`

	// CurrentPage, when set, repositions the session on that page before the turn.
	CurrentPage string `json:"current_page,omitempty"`

	// Parameters are merged into the session before matching. A nil value clears.
	Parameters map[string]any `json:"parameters,omitempty"`
}

// TurnResult is the outcome of a turn.
type TurnResult struct {
	SessionID  string            `json:"session_id"`
	Messages   []ResponseMessage `json:"messages"`
	Flow       string            `json:"flow"`
	Page       string            `json:"page"`
	Parameters map[string]any    `json:"parameters"`
	Match      Match             `json:"match"`
	Closed     bool              `json:"closed,omitempty"`

	Diagnostics Diagnostics `json:"diagnostics"`
}

// Texts returns the text of every text message, in order.
func (r *TurnResult) Texts() []string {
	var out []string
	for _, m := range r.Messages {
		if m.Text != nil {
			out = append(out, m.PlainText())
		}
	}
	return out
}

// Diagnostics records what happened during a turn.
type Diagnostics struct {
	Fired           []FiredRule      `json:"fired,omitempty"`
	Webhooks        []WebhookCall    `json:"webhooks,omitempty"`
	ConditionErrors []string         `json:"condition_errors,omitempty"`
	MatcherError    string           `json:"matcher_error,omitempty"`
	Errors          []string         `json:"errors,omitempty"`
	FatalError      string           `json:"fatal_error,omitempty"`
	ParameterDelta  map[string]any   `json:"parameter_delta,omitempty"`
	Transitions     []PageTransition `json:"transitions,omitempty"`
}

// RuleKind names what kind of rule fired.
type RuleKind string

const (
	RuleRoute    RuleKind = "route"
	RuleEvent    RuleKind = "event"
	RuleReprompt RuleKind = "reprompt"
)

// FiredRule describes a route or handler that fired.
type FiredRule struct {
	Kind   RuleKind `json:"kind"`
	Name   string   `json:"name,omitempty"`
	Flow   string   `json:"flow"`
	Page   string   `json:"page"`
	Tier   int      `json:"tier,omitempty"`
	Intent string   `json:"intent,omitempty"`
	Event  string   `json:"event,omitempty"`
	Target string   `json:"target,omitempty"`
}

// WebhookCall records one webhook invocation.
type WebhookCall struct {
	Webhook string        `json:"webhook"`
	Tag     string        `json:"tag,omitempty"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

// PageTransition records a page change.
type PageTransition struct {
	FromFlow string `json:"from_flow"`
	FromPage string `json:"from_page"`
	ToFlow   string `json:"to_flow"`
	ToPage   string `json:"to_page"`
}
