package domain

// MatchType identifies how a turn's input was interpreted.
type MatchType string

const (
	MatchIntent           MatchType = "INTENT"
	MatchDirectIntent     MatchType = "DIRECT_INTENT"
	MatchParameterFilling MatchType = "PARAMETER_FILLING"
	MatchEvent            MatchType = "EVENT"
	MatchNoMatch          MatchType = "NO_MATCH"
	MatchNoInput          MatchType = "NO_INPUT"
)

// Match is the interpretation of one turn's input.
type Match struct {
	Type       MatchType      `json:"type"`
	Intent     string         `json:"intent,omitempty"`
	Event      string         `json:"event,omitempty"`
	Confidence float64        `json:"confidence,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`

	// ResolvedInput is the text the matcher worked on.
	ResolvedInput string `json:"resolved_input,omitempty"`
}

// HasIntent reports whether the match carries an intent.
func (m Match) HasIntent() bool {
	return (m.Type == MatchIntent || m.Type == MatchDirectIntent) && m.Intent != ""
}

// IsEvent reports whether the match is a direct event trigger.
func (m Match) IsEvent() bool { return m.Type == MatchEvent && m.Event != "" }

// Clone returns a deep-enough copy (parameters map copied).
func (m Match) Clone() Match {
	m.Parameters = CloneParams(m.Parameters)
	return m
}

// TurnInput is what the caller sends for one turn. At most one field is expected to
// be set; an empty input is a no-input turn.
type TurnInput struct {
	Text     string `json:"text,omitempty"`
	Intent   string `json:"intent,omitempty"`
	Event    string `json:"event,omitempty"`
	DTMF     string `json:"dtmf,omitempty"`
	Language string `json:"language,omitempty"`
}

// IsEmpty reports a no-input turn.
func (in TurnInput) IsEmpty() bool {
	return in.Text == "" && in.Intent == "" && in.Event == "" && in.DTMF == ""
}

// MatchRequest is sent to the matcher.
type MatchRequest struct {
	SessionID  string         `json:"session_id"`
	Text       string         `json:"text,omitempty"`
	DTMF       string         `json:"dtmf,omitempty"`
	Language   string         `json:"language,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`

	// ExpectedParameter and ExpectedEntityType describe the form slot being filled, if any.
	ExpectedParameter  string `json:"expected_parameter,omitempty"`
	ExpectedEntityType string `json:"expected_entity_type,omitempty"`
}
