package domain

import (
	"reflect"
)

// StateDiff represents the changes between two states.
// It is designed to be serialized to JSON for partial updates on the client.
type StateDiff struct {
	// SessionID is always present to identify the target.
	SessionID string `json:"session_id"`

	Flow   *string `json:"flow,omitempty"`
	Page   *string `json:"page,omitempty"`
	Closed *bool   `json:"closed,omitempty"`

	// Parameters contains only changed, added or deleted keys.
	// For deletions, the key is present with a nil value.
	Parameters map[string]any `json:"parameters,omitempty"`

	// ReturnDepth is set when the flow return stack grew or shrank.
	ReturnDepth *int `json:"return_depth,omitempty"`
}

// Diff calculates the difference between oldState and newState.
// If oldState is nil, it returns a diff representing the entire newState (initial load).
func Diff(oldState, newState *State) *StateDiff {
	if newState == nil {
		return nil
	}

	diff := &StateDiff{
		SessionID: newState.SessionID,
	}

	if oldState == nil || oldState.Flow != newState.Flow {
		diff.Flow = &newState.Flow
	}
	if oldState == nil || oldState.Page != newState.Page {
		diff.Page = &newState.Page
	}
	if (oldState == nil && newState.Closed) || (oldState != nil && oldState.Closed != newState.Closed) {
		diff.Closed = &newState.Closed
	}
	if oldState == nil || len(oldState.ReturnStack) != len(newState.ReturnStack) {
		depth := len(newState.ReturnStack)
		if oldState != nil || depth > 0 {
			diff.ReturnDepth = &depth
		}
	}

	var oldParams map[string]any
	if oldState != nil {
		oldParams = oldState.Parameters
	}
	diff.Parameters = DiffParams(oldParams, newState.Parameters)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

// DiffParams returns added or modified keys with their new value, and deleted keys as nil.
// It returns nil when nothing changed.
func DiffParams(old, new map[string]any) map[string]any {
	delta := make(map[string]any)

	for k, newVal := range new {
		oldVal, exists := old[k]
		if !exists || !reflect.DeepEqual(oldVal, newVal) {
			delta[k] = newVal
		}
	}

	for k := range old {
		if _, exists := new[k]; !exists {
			delta[k] = nil
		}
	}

	if len(delta) == 0 {
		return nil
	}
	return delta
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *StateDiff) IsEmpty() bool {
	return d.Flow == nil &&
		d.Page == nil &&
		d.Closed == nil &&
		d.ReturnDepth == nil &&
		len(d.Parameters) == 0
}
