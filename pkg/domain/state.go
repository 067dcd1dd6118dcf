package domain

import "time"

// MaxReturnStack bounds the flow return stack; the oldest frame is dropped beyond it.
const MaxReturnStack = 16

// State represents the current snapshot of a session.
type State struct {
	SessionID string `json:"session_id"`

	// Flow and Page identify the active page. Both are always set on a live session.
	Flow string `json:"flow"`
	Page string `json:"page"`

	// Parameters are session scoped and survive flow transitions.
	Parameters map[string]any `json:"parameters"`

	// Counters tracks no-match / no-input attempts per form parameter of the active page.
	Counters map[string]ParamCounters `json:"counters,omitempty"`

	// ReturnStack records the callers of nested flows, innermost last.
	ReturnStack []ReturnFrame `json:"return_stack,omitempty"`

	// Closed marks a session that reached the end of the interaction.
	Closed bool `json:"closed,omitempty"`

	// TurnCount is the number of committed turns.
	TurnCount int `json:"turn_count"`

	UpdatedAt time.Time `json:"updated_at"`
}

// ParamCounters holds the retry counters of a single form parameter.
type ParamCounters struct {
	NoMatch int `json:"no_match,omitempty"`
	NoInput int `json:"no_input,omitempty"`
}

// ReturnFrame is one entry of the flow return stack.
type ReturnFrame struct {
	Flow string `json:"flow"`
	Page string `json:"page"`

	// PendingMatch is the match that entered the nested flow. It is kept for audit
	// and debugging only: a return offers the current turn's match to the caller,
	// never this one.
	PendingMatch *Match `json:"pending_match,omitempty"`
}

// NewState creates a clean session positioned on a flow's page.
func NewState(sessionID, flowID, pageID string) *State {
	return &State{
		SessionID:  sessionID,
		Flow:       flowID,
		Page:       pageID,
		Parameters: make(map[string]any),
		Counters:   make(map[string]ParamCounters),
	}
}

// Clone returns a deep copy so the runtime can mutate freely and discard on failure.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	c.Parameters = CloneParams(s.Parameters)
	if c.Parameters == nil {
		c.Parameters = make(map[string]any)
	}
	c.Counters = make(map[string]ParamCounters, len(s.Counters))
	for k, v := range s.Counters {
		c.Counters[k] = v
	}
	if s.ReturnStack != nil {
		c.ReturnStack = make([]ReturnFrame, len(s.ReturnStack))
		for i, f := range s.ReturnStack {
			if f.PendingMatch != nil {
				m := f.PendingMatch.Clone()
				f.PendingMatch = &m
			}
			c.ReturnStack[i] = f
		}
	}
	return &c
}

// InStack reports the index of the innermost frame for the flow, or -1.
func (s *State) InStack(flowID string) int {
	for i := len(s.ReturnStack) - 1; i >= 0; i-- {
		if s.ReturnStack[i].Flow == flowID {
			return i
		}
	}
	return -1
}

// CloneParams deep copies a parameter map, including nested maps and slices.
func CloneParams(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneParams(t)
	case []any:
		c := make([]any, len(t))
		for i, item := range t {
			c[i] = cloneValue(item)
		}
		return c
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
