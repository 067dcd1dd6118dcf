package domain

import (
	"fmt"
	"sort"
	"strings"
)

type agentIndex struct {
	startFlow  string
	flows      map[string]*Flow
	pages      map[string]*Page
	pageFlow   map[string]string
	startPages map[string]*Page
	groups     map[string]map[string]*TransitionRouteGroup
	intents    map[string]*Intent
	entities   map[string]*EntityType
	webhooks   map[string]*Webhook
	redacted   map[string]bool
}

func isReservedPage(id string) bool {
	switch id {
	case PageStart, PageEndFlow, PageEndSession, PageCurrent:
		return true
	}
	return false
}

// Prepare validates the agent and builds its lookup indexes.
// It returns a *ValidationError listing every problem found.
func (a *Agent) Prepare() error {
	idx := &agentIndex{
		flows:      make(map[string]*Flow),
		pages:      make(map[string]*Page),
		pageFlow:   make(map[string]string),
		startPages: make(map[string]*Page),
		groups:     make(map[string]map[string]*TransitionRouteGroup),
		intents:    make(map[string]*Intent),
		entities:   make(map[string]*EntityType),
		webhooks:   make(map[string]*Webhook),
		redacted:   make(map[string]bool),
	}
	v := &validator{}

	if len(a.Flows) == 0 {
		v.addf("agent %q has no flows", a.ID)
	}

	for i := range a.Intents {
		in := &a.Intents[i]
		if in.ID == "" {
			v.addf("intent #%d has no id", i)
			continue
		}
		if _, dup := idx.intents[in.ID]; dup {
			v.addf("duplicate intent %q", in.ID)
		}
		idx.intents[in.ID] = in
	}
	for i := range a.EntityTypes {
		et := &a.EntityTypes[i]
		if _, dup := idx.entities[et.ID]; dup || et.ID == "" {
			v.addf("entity type #%d: missing or duplicate id %q", i, et.ID)
		}
		idx.entities[et.ID] = et
	}
	for i := range a.Webhooks {
		wh := &a.Webhooks[i]
		if _, dup := idx.webhooks[wh.ID]; dup || wh.ID == "" {
			v.addf("webhook #%d: missing or duplicate id %q", i, wh.ID)
		}
		idx.webhooks[wh.ID] = wh
	}

	// First pass: identities, so targets can point forward.
	for i := range a.Flows {
		f := &a.Flows[i]
		if f.ID == "" {
			v.addf("flow #%d has no id", i)
			continue
		}
		if _, dup := idx.flows[f.ID]; dup {
			v.addf("duplicate flow %q", f.ID)
			continue
		}
		idx.flows[f.ID] = f

		groups := make(map[string]*TransitionRouteGroup, len(f.RouteGroups))
		for j := range f.RouteGroups {
			g := &f.RouteGroups[j]
			if _, dup := groups[g.ID]; dup || g.ID == "" {
				v.addf("flow %q: missing or duplicate route group id %q", f.ID, g.ID)
			}
			groups[g.ID] = g
		}
		idx.groups[f.ID] = groups

		for j := range f.Pages {
			p := &f.Pages[j]
			switch {
			case p.ID == "":
				v.addf("flow %q: page #%d has no id", f.ID, j)
				continue
			case isReservedPage(p.ID):
				v.addf("flow %q: page id %q is reserved", f.ID, p.ID)
				continue
			}
			if owner, dup := idx.pages[p.ID]; dup {
				v.addf("page %q defined in flow %q and flow %q", p.ID, idx.pageFlow[owner.ID], f.ID)
				continue
			}
			idx.pages[p.ID] = p
			idx.pageFlow[p.ID] = f.ID
		}

		if f.StartPage == "" || f.StartPage == PageStart {
			idx.startPages[f.ID] = &Page{ID: PageStart}
		} else if p, ok := idx.pages[f.StartPage]; ok && idx.pageFlow[p.ID] == f.ID {
			idx.startPages[f.ID] = p
		} else {
			v.addf("flow %q: start page %q is not a page of the flow", f.ID, f.StartPage)
			idx.startPages[f.ID] = &Page{ID: PageStart}
		}
	}

	idx.startFlow = a.StartFlow
	if idx.startFlow == "" && len(a.Flows) > 0 {
		idx.startFlow = a.Flows[0].ID
	}
	if _, ok := idx.flows[idx.startFlow]; !ok && len(a.Flows) > 0 {
		v.addf("start flow %q does not exist", idx.startFlow)
	}

	// Second pass: references.
	for i := range a.Flows {
		f := &a.Flows[i]
		where := "flow " + f.ID
		v.routeGroupRefs(idx, f.ID, where, f.TransitionRouteGroups)
		v.routes(idx, where, f.TransitionRoutes)
		v.handlers(idx, where, f.EventHandlers)
		for _, g := range f.RouteGroups {
			v.routes(idx, where+" group "+g.ID, g.Routes)
		}
		for j := range f.Pages {
			p := &f.Pages[j]
			where := "page " + p.ID
			v.fulfillment(idx, where+" entry", p.EntryFulfillment)
			v.routeGroupRefs(idx, f.ID, where, p.TransitionRouteGroups)
			v.routes(idx, where, p.TransitionRoutes)
			v.handlers(idx, where, p.EventHandlers)
			v.form(idx, where, p.Form)
		}
	}

	if len(v.problems) > 0 {
		return &ValidationError{AgentID: a.ID, Problems: v.problems}
	}
	a.index = idx
	return nil
}

type validator struct {
	problems []string
}

func (v *validator) addf(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) routeGroupRefs(idx *agentIndex, flowID, where string, refs []string) {
	for _, ref := range refs {
		if _, ok := idx.groups[flowID][ref]; !ok {
			v.addf("%s: unknown route group %q", where, ref)
		}
	}
}

func (v *validator) routes(idx *agentIndex, where string, routes []TransitionRoute) {
	for i, r := range routes {
		name := fmt.Sprintf("%s route #%d", where, i)
		if r.Intent == "" && r.Condition == "" {
			v.addf("%s: needs an intent or a condition", name)
		}
		if r.Intent != "" && len(idx.intents) > 0 {
			if _, ok := idx.intents[r.Intent]; !ok {
				v.addf("%s: unknown intent %q", name, r.Intent)
			}
		}
		v.target(idx, name, r.Target)
		v.fulfillment(idx, name, r.TriggerFulfillment)
	}
}

func (v *validator) handlers(idx *agentIndex, where string, handlers []EventHandler) {
	for i, h := range handlers {
		name := fmt.Sprintf("%s handler #%d", where, i)
		if h.Event == "" {
			v.addf("%s: missing event", name)
		}
		v.target(idx, name, h.Target)
		v.fulfillment(idx, name, h.TriggerFulfillment)
		if (h.Event == EventWebhookError || h.Event == EventWebhookTimeout) &&
			h.TriggerFulfillment != nil && h.TriggerFulfillment.Webhook != "" {
			v.addf("%s: %s handler must not call a webhook", name, h.Event)
		}
	}
}

func (v *validator) form(idx *agentIndex, where string, form *Form) {
	if form == nil {
		return
	}
	seen := make(map[string]bool, len(form.Parameters))
	for _, p := range form.Parameters {
		if p.Name == "" {
			v.addf("%s: form parameter without name", where)
			continue
		}
		if seen[p.Name] {
			v.addf("%s: duplicate form parameter %q", where, p.Name)
		}
		seen[p.Name] = true
		if p.Redact {
			idx.redacted[p.Name] = true
		}
		v.fulfillment(idx, where+" param "+p.Name, p.FillBehavior.InitialPrompt)
		v.handlers(idx, where+" param "+p.Name, p.FillBehavior.RepromptEventHandlers)
	}
}

func (v *validator) target(idx *agentIndex, where string, t Target) {
	switch {
	case t.IsPage():
		if !isReservedPage(t.ID()) {
			if _, ok := idx.pages[t.ID()]; !ok {
				v.addf("%s: unknown target page %q", where, t.ID())
			}
		}
	case t.IsFlow():
		if t.ID() != "" {
			if _, ok := idx.flows[t.ID()]; !ok {
				v.addf("%s: unknown target flow %q", where, t.ID())
			}
		}
	}
}

func (v *validator) fulfillment(idx *agentIndex, where string, f *Fulfillment) {
	if f == nil {
		return
	}
	if f.Webhook != "" {
		if _, ok := idx.webhooks[f.Webhook]; !ok {
			v.addf("%s: unknown webhook %q", where, f.Webhook)
		}
	}
	pending := make([]*ConditionalCases, 0, len(f.ConditionalCases))
	for i := range f.ConditionalCases {
		pending = append(pending, &f.ConditionalCases[i])
	}
	for len(pending) > 0 {
		cc := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		for _, c := range cc.Cases {
			for _, item := range c.CaseContent {
				switch {
				case item.Message != nil && item.AdditionalCases != nil:
					v.addf("%s: case content sets both message and additional_cases", where)
				case item.Message == nil && item.AdditionalCases == nil:
					v.addf("%s: empty case content", where)
				case item.AdditionalCases != nil:
					pending = append(pending, item.AdditionalCases)
				}
			}
		}
	}
}

func (a *Agent) mustIndex() *agentIndex {
	if a.index == nil {
		panic("domain: agent used before Prepare")
	}
	return a.index
}

// Prepared reports whether Prepare succeeded on this agent.
func (a *Agent) Prepared() bool { return a.index != nil }

// StartFlowID returns the flow new sessions begin in.
func (a *Agent) StartFlowID() string { return a.mustIndex().startFlow }

// Flow looks up a flow by id.
func (a *Agent) Flow(id string) (*Flow, bool) {
	f, ok := a.mustIndex().flows[id]
	return f, ok
}

// StartPage returns the page a flow starts on.
func (a *Agent) StartPage(flowID string) (*Page, bool) {
	p, ok := a.mustIndex().startPages[flowID]
	return p, ok
}

// Page looks up a page within a flow. PageStart resolves to the flow's start page.
func (a *Agent) Page(flowID, pageID string) (*Page, bool) {
	idx := a.mustIndex()
	if pageID == PageStart {
		return a.StartPage(flowID)
	}
	p, ok := idx.pages[pageID]
	if !ok || idx.pageFlow[pageID] != flowID {
		return nil, false
	}
	return p, true
}

// FlowOf returns the flow that owns the page.
func (a *Agent) FlowOf(pageID string) (string, bool) {
	f, ok := a.mustIndex().pageFlow[pageID]
	return f, ok
}

// RouteGroup looks up a route group defined on a flow.
func (a *Agent) RouteGroup(flowID, groupID string) (*TransitionRouteGroup, bool) {
	g, ok := a.mustIndex().groups[flowID][groupID]
	return g, ok
}

// Intent looks up an intent by id.
func (a *Agent) Intent(id string) (*Intent, bool) {
	in, ok := a.mustIndex().intents[id]
	return in, ok
}

// EntityType looks up an entity type by id.
func (a *Agent) EntityType(id string) (*EntityType, bool) {
	et, ok := a.mustIndex().entities[id]
	return et, ok
}

// Webhook looks up a webhook by id.
func (a *Agent) Webhook(id string) (*Webhook, bool) {
	wh, ok := a.mustIndex().webhooks[id]
	return wh, ok
}

// ValidationError lists every problem found while preparing an agent.
type ValidationError struct {
	AgentID  string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid agent %q: %s", e.AgentID, strings.Join(e.Problems, "; "))
}

// Unwrap lets callers match ErrInvalidAgent.
func (e *ValidationError) Unwrap() error { return ErrInvalidAgent }

// IsRedacted reports whether any form declares the parameter as redacted.
func (a *Agent) IsRedacted(name string) bool { return a.mustIndex().redacted[name] }

// RedactedParameters lists the redacted parameter names, sorted.
func (a *Agent) RedactedParameters() []string {
	names := make([]string, 0, len(a.mustIndex().redacted))
	for name := range a.mustIndex().redacted {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
