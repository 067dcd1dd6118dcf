package domain

import "time"

// Agent is the immutable, fully loaded conversation definition.
// Call Prepare once after decoding; the runtime only reads prepared agents.
type Agent struct {
	ID              string `json:"id" yaml:"id"`
	DisplayName     string `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	DefaultLanguage string `json:"default_language,omitempty" yaml:"default_language,omitempty"`

	// StartFlow is the flow new sessions begin in. Defaults to the first flow.
	StartFlow string `json:"start_flow,omitempty" yaml:"start_flow,omitempty"`

	// ClassificationThreshold is the minimum confidence for an intent match.
	ClassificationThreshold float64 `json:"classification_threshold,omitempty" yaml:"classification_threshold,omitempty"`

	Flows       []Flow       `json:"flows" yaml:"flows"`
	Intents     []Intent     `json:"intents,omitempty" yaml:"intents,omitempty"`
	EntityTypes []EntityType `json:"entity_types,omitempty" yaml:"entity_types,omitempty"`
	Webhooks    []Webhook    `json:"webhooks,omitempty" yaml:"webhooks,omitempty"`

	index *agentIndex
}

// Flow is a named sub-graph of pages.
type Flow struct {
	ID          string `json:"id" yaml:"id"`
	DisplayName string `json:"display_name,omitempty" yaml:"display_name,omitempty"`

	// StartPage names the page that is current when the flow becomes active.
	// When empty the flow starts on its implicit, empty START_PAGE.
	StartPage string `json:"start_page,omitempty" yaml:"start_page,omitempty"`

	Pages            []Page            `json:"pages,omitempty" yaml:"pages,omitempty"`
	TransitionRoutes []TransitionRoute `json:"transition_routes,omitempty" yaml:"transition_routes,omitempty"`
	EventHandlers    []EventHandler    `json:"event_handlers,omitempty" yaml:"event_handlers,omitempty"`

	// TransitionRouteGroups references groups from RouteGroups, in evaluation order.
	TransitionRouteGroups []string `json:"transition_route_groups,omitempty" yaml:"transition_route_groups,omitempty"`

	// RouteGroups defines the reusable route groups of this flow.
	RouteGroups []TransitionRouteGroup `json:"route_groups,omitempty" yaml:"route_groups,omitempty"`
}

// Page is a single conversational state.
type Page struct {
	ID               string       `json:"id" yaml:"id"`
	DisplayName      string       `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	EntryFulfillment *Fulfillment `json:"entry_fulfillment,omitempty" yaml:"entry_fulfillment,omitempty"`
	Form             *Form        `json:"form,omitempty" yaml:"form,omitempty"`

	TransitionRoutes      []TransitionRoute `json:"transition_routes,omitempty" yaml:"transition_routes,omitempty"`
	TransitionRouteGroups []string          `json:"transition_route_groups,omitempty" yaml:"transition_route_groups,omitempty"`
	EventHandlers         []EventHandler    `json:"event_handlers,omitempty" yaml:"event_handlers,omitempty"`
}

// Form is the ordered list of parameters a page collects.
type Form struct {
	Parameters []FormParameter `json:"parameters" yaml:"parameters"`
}

// FormParameter describes one slot of a form.
type FormParameter struct {
	Name         string       `json:"name" yaml:"name"`
	EntityType   string       `json:"entity_type,omitempty" yaml:"entity_type,omitempty"`
	Required     bool         `json:"required,omitempty" yaml:"required,omitempty"`
	IsList       bool         `json:"is_list,omitempty" yaml:"is_list,omitempty"`
	Redact       bool         `json:"redact,omitempty" yaml:"redact,omitempty"`
	DefaultValue any          `json:"default_value,omitempty" yaml:"default_value,omitempty"`
	FillBehavior FillBehavior `json:"fill_behavior" yaml:"fill_behavior"`
}

// FillBehavior holds the prompts of a form parameter.
type FillBehavior struct {
	InitialPrompt *Fulfillment `json:"initial_prompt_fulfillment,omitempty" yaml:"initial_prompt_fulfillment,omitempty"`

	// RepromptEventHandlers are keyed by event: sys.no-match-N, sys.no-input-N,
	// the -default variants and sys.invalid-parameter.
	RepromptEventHandlers []EventHandler `json:"reprompt_event_handlers,omitempty" yaml:"reprompt_event_handlers,omitempty"`
}

// Handler returns the reprompt handler for the given event name.
func (fb FillBehavior) Handler(event string) (*EventHandler, bool) {
	for i := range fb.RepromptEventHandlers {
		if fb.RepromptEventHandlers[i].Event == event {
			return &fb.RepromptEventHandlers[i], true
		}
	}
	return nil, false
}

// TransitionRoute fires on an intent, a condition, or both.
type TransitionRoute struct {
	Name               string       `json:"name,omitempty" yaml:"name,omitempty"`
	Intent             string       `json:"intent,omitempty" yaml:"intent,omitempty"`
	Condition          string       `json:"condition,omitempty" yaml:"condition,omitempty"`
	TriggerFulfillment *Fulfillment `json:"trigger_fulfillment,omitempty" yaml:"trigger_fulfillment,omitempty"`
	Target             Target       `json:"target,omitzero" yaml:"target,omitempty"`
}

// EventHandler fires on a named event.
type EventHandler struct {
	Name               string       `json:"name,omitempty" yaml:"name,omitempty"`
	Event              string       `json:"event" yaml:"event"`
	TriggerFulfillment *Fulfillment `json:"trigger_fulfillment,omitempty" yaml:"trigger_fulfillment,omitempty"`
	Target             Target       `json:"target,omitzero" yaml:"target,omitempty"`
}

// TransitionRouteGroup is a reusable, ordered set of routes.
type TransitionRouteGroup struct {
	ID     string            `json:"id" yaml:"id"`
	Routes []TransitionRoute `json:"routes" yaml:"routes"`
}

// Intent is a user goal the matcher can recognise.
type Intent struct {
	ID              string            `json:"id" yaml:"id"`
	DisplayName     string            `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	TrainingPhrases []string          `json:"training_phrases,omitempty" yaml:"training_phrases,omitempty"`
	Parameters      []IntentParameter `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// IntentParameter is a value extracted alongside an intent.
type IntentParameter struct {
	ID         string `json:"id" yaml:"id"`
	EntityType string `json:"entity_type" yaml:"entity_type"`
	IsList     bool   `json:"is_list,omitempty" yaml:"is_list,omitempty"`
}

// EntityType is a dictionary of values and their synonyms.
type EntityType struct {
	ID       string   `json:"id" yaml:"id"`
	Entities []Entity `json:"entities" yaml:"entities"`
}

// Entity is one canonical value of an EntityType.
type Entity struct {
	Value    string   `json:"value" yaml:"value"`
	Synonyms []string `json:"synonyms,omitempty" yaml:"synonyms,omitempty"`
}

// Webhook is an external fulfillment endpoint.
type Webhook struct {
	ID      string            `json:"id" yaml:"id"`
	URL     string            `json:"url,omitempty" yaml:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Timeout time.Duration     `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}
