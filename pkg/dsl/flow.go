package dsl

import "github.com/aretw0/parley/pkg/domain"

// FlowBuilder provides a fluent API for configuring a flow.
type FlowBuilder struct {
	flow  domain.Flow
	pages []*PageBuilder
}

// StartPage sets the page the flow starts on.
func (f *FlowBuilder) StartPage(id string) *FlowBuilder {
	f.flow.StartPage = id
	return f
}

// Page creates a page, or returns the existing builder for id.
func (f *FlowBuilder) Page(id string) *PageBuilder {
	for _, pb := range f.pages {
		if pb.page.ID == id {
			return pb
		}
	}
	pb := &PageBuilder{page: domain.Page{ID: id}, flow: f}
	f.pages = append(f.pages, pb)
	return pb
}

// Route adds a flow-level transition route.
func (f *FlowBuilder) Route(r domain.TransitionRoute) *FlowBuilder {
	f.flow.TransitionRoutes = append(f.flow.TransitionRoutes, r)
	return f
}

// WhenIntent adds a flow-level intent route.
func (f *FlowBuilder) WhenIntent(intent string, target domain.Target, say ...string) *FlowBuilder {
	return f.Route(domain.TransitionRoute{Intent: intent, Target: target, TriggerFulfillment: Say(say...)})
}

// When adds a flow-level condition route.
func (f *FlowBuilder) When(condition string, target domain.Target, say ...string) *FlowBuilder {
	return f.Route(domain.TransitionRoute{Condition: condition, Target: target, TriggerFulfillment: Say(say...)})
}

// On adds a flow-level event handler.
func (f *FlowBuilder) On(event string, target domain.Target, say ...string) *FlowBuilder {
	f.flow.EventHandlers = append(f.flow.EventHandlers, domain.EventHandler{Event: event, Target: target, TriggerFulfillment: Say(say...)})
	return f
}

// Handler adds a fully specified flow-level event handler.
func (f *FlowBuilder) Handler(h domain.EventHandler) *FlowBuilder {
	f.flow.EventHandlers = append(f.flow.EventHandlers, h)
	return f
}

// Group defines a route group of the flow.
func (f *FlowBuilder) Group(id string, routes ...domain.TransitionRoute) *FlowBuilder {
	f.flow.RouteGroups = append(f.flow.RouteGroups, domain.TransitionRouteGroup{ID: id, Routes: routes})
	return f
}

// UseGroups references route groups at flow level, in evaluation order.
func (f *FlowBuilder) UseGroups(ids ...string) *FlowBuilder {
	f.flow.TransitionRouteGroups = append(f.flow.TransitionRouteGroups, ids...)
	return f
}

func (f *FlowBuilder) build() domain.Flow {
	flow := f.flow
	flow.Pages = make([]domain.Page, 0, len(f.pages))
	for _, pb := range f.pages {
		flow.Pages = append(flow.Pages, pb.page)
	}
	return flow
}
