package domain

// ResponseMessage is one item of agent output. Exactly one of the variant fields is set.
type ResponseMessage struct {
	// Text holds one or more variants; the runtime emits exactly one of them.
	Text *TextMessage `json:"text,omitempty" yaml:"text,omitempty"`

	// Payload is a free-form structured message passed through to the channel.
	Payload map[string]any `json:"payload,omitempty" yaml:"payload,omitempty"`

	// EndInteraction signals that the conversation is over.
	EndInteraction *EndInteraction `json:"end_interaction,omitempty" yaml:"end_interaction,omitempty"`

	// LiveAgentHandoff asks the channel to transfer the user to a human.
	LiveAgentHandoff *LiveAgentHandoff `json:"live_agent_handoff,omitempty" yaml:"live_agent_handoff,omitempty"`

	// Channel restricts the message to a specific channel (empty means all).
	Channel string `json:"channel,omitempty" yaml:"channel,omitempty"`
}

// TextMessage is a plain text response with optional variants.
type TextMessage struct {
	Text []string `json:"text" yaml:"text"`
}

// EndInteraction marks the end of the conversation.
type EndInteraction struct{}

// LiveAgentHandoff carries channel specific handoff metadata.
type LiveAgentHandoff struct {
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// TextResponse is a convenience constructor for a single-variant text message.
func TextResponse(text ...string) ResponseMessage {
	return ResponseMessage{Text: &TextMessage{Text: text}}
}

// PlainText returns the first text variant, or "" for non-text messages.
func (m ResponseMessage) PlainText() string {
	if m.Text == nil || len(m.Text.Text) == 0 {
		return ""
	}
	return m.Text.Text[0]
}

// SetParameterAction assigns a session parameter. A nil Value clears it.
type SetParameterAction struct {
	Parameter string `json:"parameter" yaml:"parameter"`
	Value     any    `json:"value" yaml:"value"`
}

// Fulfillment is executed when a page is entered, a route fires or a handler fires.
// Execution order: messages, parameter actions, conditional cases, then the webhook.
type Fulfillment struct {
	Messages            []ResponseMessage    `json:"messages,omitempty" yaml:"messages,omitempty"`
	SetParameterActions []SetParameterAction `json:"set_parameter_actions,omitempty" yaml:"set_parameter_actions,omitempty"`
	ConditionalCases    []ConditionalCases   `json:"conditional_cases,omitempty" yaml:"conditional_cases,omitempty"`

	// Webhook references a Webhook by id. Tag is forwarded to it.
	Webhook string `json:"webhook,omitempty" yaml:"webhook,omitempty"`
	Tag     string `json:"tag,omitempty" yaml:"tag,omitempty"`
}

// IsEmpty reports whether executing the fulfillment would have no effect.
func (f *Fulfillment) IsEmpty() bool {
	return f == nil || (len(f.Messages) == 0 && len(f.SetParameterActions) == 0 &&
		len(f.ConditionalCases) == 0 && f.Webhook == "")
}

// ConditionalCases is an ordered list of cases; the first case whose condition holds wins.
type ConditionalCases struct {
	Cases []Case `json:"cases" yaml:"cases"`
}

// Case pairs a condition with content. An empty condition always holds.
type Case struct {
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`

	// SetParameterActions are applied when the case wins, before its content.
	SetParameterActions []SetParameterAction `json:"set_parameter_actions,omitempty" yaml:"set_parameter_actions,omitempty"`

	CaseContent []CaseContent `json:"case_content,omitempty" yaml:"case_content,omitempty"`
}

// CaseContent is either a message or a nested ConditionalCases. Agent.Prepare rejects
// items that set both or neither.
type CaseContent struct {
	Message         *ResponseMessage  `json:"message,omitempty" yaml:"message,omitempty"`
	AdditionalCases *ConditionalCases `json:"additional_cases,omitempty" yaml:"additional_cases,omitempty"`
}
