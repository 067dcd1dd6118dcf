package domain

// ParameterState is the fill state of a form parameter as seen by a webhook.
type ParameterState string

const (
	ParameterEmpty   ParameterState = "EMPTY"
	ParameterInvalid ParameterState = "INVALID"
	ParameterFilled  ParameterState = "FILLED"
)

// WebhookRequest is the payload sent to a webhook.
type WebhookRequest struct {
	RequestID  string            `json:"request_id" mapstructure:"request_id"`
	SessionID  string            `json:"session_id" mapstructure:"session_id"`
	Tag        string            `json:"tag,omitempty" mapstructure:"tag"`
	Language   string            `json:"language,omitempty" mapstructure:"language"`
	Text       string            `json:"text,omitempty" mapstructure:"text"`
	Intent     *IntentInfo       `json:"intent_info,omitempty" mapstructure:"intent_info"`
	Parameters map[string]any    `json:"parameters" mapstructure:"parameters"`
	PageInfo   PageInfo          `json:"page_info" mapstructure:"page_info"`
	Messages   []ResponseMessage `json:"messages,omitempty" mapstructure:"-"`
}

// IntentInfo describes the matched intent.
type IntentInfo struct {
	Intent     string         `json:"intent" mapstructure:"intent"`
	Confidence float64        `json:"confidence" mapstructure:"confidence"`
	Parameters map[string]any `json:"parameters,omitempty" mapstructure:"parameters"`
}

// PageInfo describes the page the webhook is called from.
type PageInfo struct {
	Flow     string   `json:"flow" mapstructure:"flow"`
	Page     string   `json:"page" mapstructure:"page"`
	FormInfo FormInfo `json:"form_info" mapstructure:"form_info"`
}

// FormInfo lists the form parameters of the page.
type FormInfo struct {
	Parameters []ParameterInfo `json:"parameter_info,omitempty" mapstructure:"parameter_info"`
}

// ParameterInfo is the webhook view of one form parameter.
type ParameterInfo struct {
	Name     string         `json:"display_name" mapstructure:"display_name"`
	Required bool           `json:"required" mapstructure:"required"`
	State    ParameterState `json:"state" mapstructure:"state"`
	Value    any            `json:"value,omitempty" mapstructure:"value"`
}

// WebhookResponse is what a webhook returns.
type WebhookResponse struct {
	Messages []ResponseMessage

	// Parameters override session parameters. A nil value clears the parameter.
	Parameters map[string]any

	// InvalidParameters lists form parameters the webhook rejected.
	InvalidParameters []string

	// Target, when set, moves the session directly without resolving routes.
	Target Target

	Payload map[string]any
}
