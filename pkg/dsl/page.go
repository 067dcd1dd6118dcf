package dsl

import "github.com/aretw0/parley/pkg/domain"

// PageBuilder provides a fluent API for configuring a page.
type PageBuilder struct {
	page domain.Page
	flow *FlowBuilder
}

func (p *PageBuilder) entry() *domain.Fulfillment {
	if p.page.EntryFulfillment == nil {
		p.page.EntryFulfillment = &domain.Fulfillment{}
	}
	return p.page.EntryFulfillment
}

// Entry appends text messages to the entry fulfillment.
func (p *PageBuilder) Entry(texts ...string) *PageBuilder {
	f := p.entry()
	for _, t := range texts {
		f.Messages = append(f.Messages, domain.TextResponse(t))
	}
	return p
}

// Set appends a parameter action to the entry fulfillment. A nil value clears.
func (p *PageBuilder) Set(param string, value any) *PageBuilder {
	f := p.entry()
	f.SetParameterActions = append(f.SetParameterActions, domain.SetParameterAction{Parameter: param, Value: value})
	return p
}

// Cases appends conditional cases to the entry fulfillment.
func (p *PageBuilder) Cases(cases ...domain.Case) *PageBuilder {
	f := p.entry()
	f.ConditionalCases = append(f.ConditionalCases, domain.ConditionalCases{Cases: cases})
	return p
}

// Webhook makes the entry fulfillment call a webhook.
func (p *PageBuilder) Webhook(id, tag string) *PageBuilder {
	f := p.entry()
	f.Webhook = id
	f.Tag = tag
	return p
}

// Route adds a page-level transition route.
func (p *PageBuilder) Route(r domain.TransitionRoute) *PageBuilder {
	p.page.TransitionRoutes = append(p.page.TransitionRoutes, r)
	return p
}

// WhenIntent adds an intent route.
func (p *PageBuilder) WhenIntent(intent string, target domain.Target, say ...string) *PageBuilder {
	return p.Route(domain.TransitionRoute{Intent: intent, Target: target, TriggerFulfillment: Say(say...)})
}

// When adds a condition route.
func (p *PageBuilder) When(condition string, target domain.Target, say ...string) *PageBuilder {
	return p.Route(domain.TransitionRoute{Condition: condition, Target: target, TriggerFulfillment: Say(say...)})
}

// On adds an event handler.
func (p *PageBuilder) On(event string, target domain.Target, say ...string) *PageBuilder {
	p.page.EventHandlers = append(p.page.EventHandlers, domain.EventHandler{Event: event, Target: target, TriggerFulfillment: Say(say...)})
	return p
}

// Handler adds a fully specified event handler.
func (p *PageBuilder) Handler(h domain.EventHandler) *PageBuilder {
	p.page.EventHandlers = append(p.page.EventHandlers, h)
	return p
}

// UseGroups references flow route groups from this page.
func (p *PageBuilder) UseGroups(ids ...string) *PageBuilder {
	p.page.TransitionRouteGroups = append(p.page.TransitionRouteGroups, ids...)
	return p
}

// Param adds a form parameter to the page.
func (p *PageBuilder) Param(name, entityType string) *ParamBuilder {
	if p.page.Form == nil {
		p.page.Form = &domain.Form{}
	}
	p.page.Form.Parameters = append(p.page.Form.Parameters, domain.FormParameter{Name: name, EntityType: entityType})
	return &ParamBuilder{page: p, idx: len(p.page.Form.Parameters) - 1}
}

// Flow returns the owning flow builder.
func (p *PageBuilder) Flow() *FlowBuilder { return p.flow }

// ParamBuilder configures one form parameter.
type ParamBuilder struct {
	page *PageBuilder
	idx  int
}

func (pb *ParamBuilder) param() *domain.FormParameter {
	return &pb.page.page.Form.Parameters[pb.idx]
}

// Required marks the parameter as required.
func (pb *ParamBuilder) Required() *ParamBuilder {
	pb.param().Required = true
	return pb
}

// List marks the parameter as a list.
func (pb *ParamBuilder) List() *ParamBuilder {
	pb.param().IsList = true
	return pb
}

// Redact hides the value in logs and persisted diagnostics.
func (pb *ParamBuilder) Redact() *ParamBuilder {
	pb.param().Redact = true
	return pb
}

// Default sets the default value.
func (pb *ParamBuilder) Default(v any) *ParamBuilder {
	pb.param().DefaultValue = v
	return pb
}

// Prompt sets the initial prompt.
func (pb *ParamBuilder) Prompt(texts ...string) *ParamBuilder {
	pb.param().FillBehavior.InitialPrompt = Say(texts...)
	return pb
}

// Reprompt adds a reprompt handler such as sys.no-match-1 or sys.no-input-default.
func (pb *ParamBuilder) Reprompt(event string, texts ...string) *ParamBuilder {
	fb := &pb.param().FillBehavior
	fb.RepromptEventHandlers = append(fb.RepromptEventHandlers, domain.EventHandler{Event: event, TriggerFulfillment: Say(texts...)})
	return pb
}

// RepromptTo adds a reprompt handler that leaves the page.
func (pb *ParamBuilder) RepromptTo(event string, target domain.Target, texts ...string) *ParamBuilder {
	fb := &pb.param().FillBehavior
	fb.RepromptEventHandlers = append(fb.RepromptEventHandlers, domain.EventHandler{Event: event, Target: target, TriggerFulfillment: Say(texts...)})
	return pb
}

// Done returns to the page builder.
func (pb *ParamBuilder) Done() *PageBuilder { return pb.page }
