package runtime

import (
	"strconv"

	"github.com/aretw0/parley/pkg/domain"
)

// FillOutcome is the result of one form filling step.
type FillOutcome int

const (
	// FillComplete means every required parameter has a value.
	FillComplete FillOutcome = iota
	// FillAwaitingInput means a prompt or reprompt was selected and the page stays.
	FillAwaitingInput
	// FillRedirected means a reprompt handler with a target took over.
	FillRedirected
)

func (o FillOutcome) String() string {
	switch o {
	case FillComplete:
		return "complete"
	case FillAwaitingInput:
		return "awaiting_input"
	case FillRedirected:
		return "redirected"
	}
	return "unknown"
}

// FillResult describes what the form filler decided.
type FillResult struct {
	Outcome FillOutcome

	// Param is the parameter being collected, when not complete.
	Param *domain.FormParameter

	// Handler is the reprompt handler to run. Nil with a non-nil Param means the
	// parameter's initial prompt.
	Handler *domain.EventHandler
}

func (r FillResult) decision(st *domain.State) *Decision {
	if r.Handler == nil {
		return nil
	}
	return &Decision{
		Kind:        domain.RuleReprompt,
		Name:        r.Handler.Name,
		Event:       r.Handler.Event,
		Flow:        st.Flow,
		Page:        st.Page,
		Fulfillment: r.Handler.TriggerFulfillment,
		Target:      r.Handler.Target,
	}
}

// advanceForm stores the values the match extracted for the form, then selects the next
// prompt. It mutates st.Parameters and st.Counters.
func advanceForm(form *domain.Form, st *domain.State, match domain.Match) FillResult {
	if form == nil {
		return FillResult{Outcome: FillComplete}
	}

	progress := false
	for i := range form.Parameters {
		p := &form.Parameters[i]
		v, ok := match.Parameters[p.Name]
		if !ok || isEmptyValue(v) {
			continue
		}
		st.Parameters[p.Name] = v
		delete(st.Counters, p.Name)
		progress = true
	}

	next := nextRequired(form, st.Parameters)
	if next == nil {
		return FillResult{Outcome: FillComplete}
	}
	if progress {
		return FillResult{Outcome: FillAwaitingInput, Param: next}
	}

	counters := st.Counters[next.Name]
	prefix := domain.EventNoMatchPrefix
	attempt := 0
	if match.Type == domain.MatchNoInput {
		counters.NoInput++
		attempt = counters.NoInput
		prefix = domain.EventNoInputPrefix
	} else {
		counters.NoMatch++
		attempt = counters.NoMatch
	}
	st.Counters[next.Name] = counters

	h := selectReprompt(next.FillBehavior, prefix, attempt)
	if h == nil {
		return FillResult{Outcome: FillAwaitingInput, Param: next}
	}
	if !h.Target.IsZero() {
		return FillResult{Outcome: FillRedirected, Param: next, Handler: h}
	}
	return FillResult{Outcome: FillAwaitingInput, Param: next, Handler: h}
}

// selectReprompt picks prefix+N while N is within the defined numbered handlers,
// then prefix+"default". A nil result means "use the initial prompt".
func selectReprompt(fb domain.FillBehavior, prefix string, attempt int) *domain.EventHandler {
	highest := 0
	for n := 1; n <= domain.MaxNumberedReprompts; n++ {
		if _, ok := fb.Handler(prefix + strconv.Itoa(n)); ok {
			highest = n
		}
	}
	if attempt <= highest {
		if h, ok := fb.Handler(prefix + strconv.Itoa(attempt)); ok {
			return h
		}
		return nil
	}
	if h, ok := fb.Handler(prefix + "default"); ok {
		return h
	}
	return nil
}

// nextRequired returns the first required parameter without a value.
func nextRequired(form *domain.Form, params map[string]any) *domain.FormParameter {
	if form == nil {
		return nil
	}
	for i := range form.Parameters {
		p := &form.Parameters[i]
		if p.Required && isEmptyValue(params[p.Name]) {
			return p
		}
	}
	return nil
}

func formComplete(form *domain.Form, params map[string]any) bool {
	return nextRequired(form, params) == nil
}

// applyDefaults fills unset form parameters that declare a default value.
func applyDefaults(form *domain.Form, params map[string]any) {
	if form == nil {
		return
	}
	for _, p := range form.Parameters {
		if p.DefaultValue == nil {
			continue
		}
		if _, ok := params[p.Name]; !ok {
			params[p.Name] = p.DefaultValue
		}
	}
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	}
	return false
}
