package runtime

import (
	"github.com/aretw0/parley/internal/condition"
	"github.com/aretw0/parley/pkg/domain"
)

// Decision is the winning route or handler of a resolution.
type Decision struct {
	Kind   domain.RuleKind
	Tier   int
	Name   string
	Intent string
	Event  string

	// Flow and Page locate the rule; Page is empty for flow level rules.
	Flow string
	Page string

	Fulfillment *domain.Fulfillment
	Target      domain.Target
}

// Route tiers, in precedence order.
const (
	TierPageIntent = iota + 1
	TierPageGroupIntent
	TierFlowIntent
	TierFlowGroupIntent
	TierPageCondition
	TierPageGroupCondition
)

// resolve runs the full transition precedence for the current match on the active page.
// Events use first-match handler lookup, then fall through to the condition tiers.
func (t *turn) resolve() *Decision {
	if t.match.IsEvent() {
		if d := t.resolveEvent(t.match.Event); d != nil {
			return d
		}
		return t.resolveConditionTiers()
	}
	if d := t.resolveIntentTiers(); d != nil {
		return d
	}
	return t.resolveConditionTiers()
}

// resolveIntentTiers evaluates tiers 1 to 4. Routes carrying both an intent and a
// condition need both to hold.
func (t *turn) resolveIntentTiers() *Decision {
	if !t.match.HasIntent() {
		return nil
	}
	page, flow := t.page(), t.flow()
	scope := t.scope()

	for _, tier := range []struct {
		n      int
		page   string
		routes [][]domain.TransitionRoute
		names  []string
	}{
		{TierPageIntent, page.ID, [][]domain.TransitionRoute{page.TransitionRoutes}, []string{""}},
		{TierPageGroupIntent, page.ID, t.groupRoutes(page.TransitionRouteGroups), page.TransitionRouteGroups},
		{TierFlowIntent, "", [][]domain.TransitionRoute{flow.TransitionRoutes}, []string{""}},
		{TierFlowGroupIntent, "", t.groupRoutes(flow.TransitionRouteGroups), flow.TransitionRouteGroups},
	} {
		for gi, routes := range tier.routes {
			for i := range routes {
				r := &routes[i]
				if r.Intent == "" || r.Intent != t.match.Intent {
					continue
				}
				if !t.holds(r.Condition, scope) {
					continue
				}
				return t.routeDecision(tier.n, tier.page, tier.names[gi], r)
			}
		}
	}
	return nil
}

// resolveConditionTiers evaluates tiers 5 and 6: condition-only routes of the page and of
// its route groups. Flow level condition-only routes never fire.
func (t *turn) resolveConditionTiers() *Decision {
	page := t.page()
	scope := t.scope()

	for _, tier := range []struct {
		n      int
		routes [][]domain.TransitionRoute
		names  []string
	}{
		{TierPageCondition, [][]domain.TransitionRoute{page.TransitionRoutes}, []string{""}},
		{TierPageGroupCondition, t.groupRoutes(page.TransitionRouteGroups), page.TransitionRouteGroups},
	} {
		for gi, routes := range tier.routes {
			for i := range routes {
				r := &routes[i]
				if r.Intent != "" || r.Condition == "" {
					continue
				}
				if t.holds(r.Condition, scope) {
					return t.routeDecision(tier.n, page.ID, tier.names[gi], r)
				}
			}
		}
	}
	return nil
}

// resolveEvent finds the first handler for the event: page handlers, then flow handlers.
func (t *turn) resolveEvent(event string) *Decision {
	page, flow := t.page(), t.flow()
	for _, scope := range []struct {
		page     string
		handlers []domain.EventHandler
	}{
		{page.ID, page.EventHandlers},
		{"", flow.EventHandlers},
	} {
		for i := range scope.handlers {
			h := &scope.handlers[i]
			if h.Event == event {
				return &Decision{
					Kind:        domain.RuleEvent,
					Name:        h.Name,
					Event:       h.Event,
					Flow:        t.state.Flow,
					Page:        scope.page,
					Fulfillment: h.TriggerFulfillment,
					Target:      h.Target,
				}
			}
		}
	}
	return nil
}

func (t *turn) groupRoutes(refs []string) [][]domain.TransitionRoute {
	out := make([][]domain.TransitionRoute, 0, len(refs))
	for _, ref := range refs {
		if g, ok := t.agent.RouteGroup(t.state.Flow, ref); ok {
			out = append(out, g.Routes)
		} else {
			out = append(out, nil)
		}
	}
	return out
}

func (t *turn) routeDecision(tier int, pageID, group string, r *domain.TransitionRoute) *Decision {
	name := r.Name
	if name == "" && group != "" {
		name = group
	}
	return &Decision{
		Kind:        domain.RuleRoute,
		Tier:        tier,
		Name:        name,
		Intent:      r.Intent,
		Flow:        t.state.Flow,
		Page:        pageID,
		Fulfillment: r.TriggerFulfillment,
		Target:      r.Target,
	}
}

// scope builds the condition scope: session parameters plus the active page's form
// values and its completion status.
func (t *turn) scope() condition.Scope {
	pageParams := make(map[string]any)
	form := t.page().Form
	if form != nil {
		for _, p := range form.Parameters {
			if v, ok := t.state.Parameters[p.Name]; ok {
				pageParams[p.Name] = v
			}
		}
	}
	if formComplete(form, t.state.Parameters) {
		pageParams["status"] = domain.FormStatusFinal
	}
	return condition.Scope{Session: t.state.Parameters, Page: pageParams}
}

// holds evaluates a condition, recording failures as diagnostics and failing closed.
func (t *turn) holds(expression string, scope condition.Scope) bool {
	ok, err := t.engine.evaluator.Evaluate(expression, scope)
	if err != nil {
		t.diag.ConditionErrors = append(t.diag.ConditionErrors, err.Error())
		t.engine.logger.Warn("Condition evaluation failed",
			"session_id", t.state.SessionID, "flow", t.state.Flow, "page", t.state.Page, "err", err)
		return false
	}
	return ok
}
