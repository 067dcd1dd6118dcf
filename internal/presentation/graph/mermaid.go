package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
)

// GraphOverlay contains session data to visualize on the graph.
type GraphOverlay struct {
	CurrentFlow string
	CurrentPage string
	// Stack lists the pages waiting on the return stack, oldest first.
	Stack []string
}

const endNode = "END_SESSION"

// GenerateMermaid produces a Mermaid flowchart of a prepared agent.
// Each flow is a subgraph. Shapes:
// - Flow start: ((Circle))
// - Page with a form: [/Parallelogram/]
// - Other pages: [Rectangle]
// Flow-level routes start at the flow's start node; flow transitions are dotted.
// Event handlers are drawn with a ⚡ label.
func GenerateMermaid(agent *domain.Agent, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	endUsed := false
	edge := func(from string, fromFlow string, label string, t domain.Target, event bool) {
		if t.IsZero() {
			return
		}
		to, dotted := targetNode(agent, fromFlow, from, t)
		if to == endNode {
			endUsed = true
		}
		label = strings.ReplaceAll(label, "\"", "'")
		if event {
			label = "⚡ " + label
		}
		switch {
		case dotted && label != "":
			fmt.Fprintf(&sb, "    %s -. \"%s\" .-> %s\n", from, label, to)
		case dotted:
			fmt.Fprintf(&sb, "    %s -.-> %s\n", from, to)
		case label != "":
			fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", from, label, to)
		default:
			fmt.Fprintf(&sb, "    %s --> %s\n", from, to)
		}
	}

	for _, f := range agent.Flows {
		start := startNode(f.ID)
		fmt.Fprintf(&sb, "    subgraph %s[\"%s\"]\n", sanitizeMermaidID("flow_"+f.ID), f.ID)
		fmt.Fprintf(&sb, "        %s((\"%s\"))\n", start, f.ID)
		for _, p := range f.Pages {
			opener, closer := "[", "]"
			if p.Form != nil && len(p.Form.Parameters) > 0 {
				opener, closer = "[/", "/]"
			}
			fmt.Fprintf(&sb, "        %s%s\"%s\"%s\n", sanitizeMermaidID(p.ID), opener, p.ID, closer)
		}
		sb.WriteString("    end\n")

		if sp, ok := agent.StartPage(f.ID); ok && sp.ID != domain.PageStart {
			fmt.Fprintf(&sb, "    %s --> %s\n", start, sanitizeMermaidID(sp.ID))
		}
		for _, r := range routesOf(agent, f.ID, f.TransitionRoutes, f.TransitionRouteGroups) {
			edge(start, f.ID, routeLabel(r), r.Target, false)
		}
		for _, h := range f.EventHandlers {
			edge(start, f.ID, h.Event, h.Target, true)
		}
		for _, p := range f.Pages {
			from := sanitizeMermaidID(p.ID)
			for _, r := range routesOf(agent, f.ID, p.TransitionRoutes, p.TransitionRouteGroups) {
				edge(from, f.ID, routeLabel(r), r.Target, false)
			}
			for _, h := range p.EventHandlers {
				edge(from, f.ID, h.Event, h.Target, true)
			}
			if p.Form != nil {
				for _, param := range p.Form.Parameters {
					for _, h := range param.FillBehavior.RepromptEventHandlers {
						edge(from, f.ID, param.Name+": "+h.Event, h.Target, true)
					}
				}
			}
		}
	}
	if endUsed {
		fmt.Fprintf(&sb, "    %s(((\"end\")))\n", endNode)
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef stacked fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, id := range overlay.Stack {
			safeID := sanitizeMermaidID(id)
			if safeID != "" && !seen[safeID] {
				seen[safeID] = true
				fmt.Fprintf(&sb, "    class %s stacked;\n", safeID)
			}
		}
		if current := overlayNode(overlay); current != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", current)
		}
	}

	return sb.String()
}

func overlayNode(o *GraphOverlay) string {
	switch {
	case o.CurrentPage != "" && o.CurrentPage != domain.PageStart:
		return sanitizeMermaidID(o.CurrentPage)
	case o.CurrentFlow != "":
		return startNode(o.CurrentFlow)
	}
	return ""
}

// routesOf returns the routes followed by the routes of the referenced groups.
func routesOf(agent *domain.Agent, flowID string, routes []domain.TransitionRoute, groups []string) []domain.TransitionRoute {
	out := append([]domain.TransitionRoute(nil), routes...)
	for _, id := range groups {
		if g, ok := agent.RouteGroup(flowID, id); ok {
			out = append(out, g.Routes...)
		}
	}
	return out
}

func routeLabel(r domain.TransitionRoute) string {
	switch {
	case r.Intent != "" && r.Condition != "":
		return r.Intent + " + " + r.Condition
	case r.Intent != "":
		return r.Intent
	}
	return r.Condition
}

// targetNode resolves a target to a node id. Flow and flow-exit targets are dotted.
func targetNode(agent *domain.Agent, flowID, from string, t domain.Target) (string, bool) {
	if t.EndsSession() {
		return endNode, false
	}
	if t.IsFlow() {
		return startNode(t.ID()), true
	}
	switch t.ID() {
	case domain.PageCurrent:
		return from, false
	case domain.PageStart:
		return startNode(flowID), false
	case domain.PageEndFlow:
		return endNode, true
	}
	if owner, ok := agent.FlowOf(t.ID()); ok && owner != flowID {
		return sanitizeMermaidID(t.ID()), true
	}
	return sanitizeMermaidID(t.ID()), false
}

func startNode(flowID string) string {
	return sanitizeMermaidID(flowID + "__start")
}

func sanitizeMermaidID(id string) string {
	return strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_").Replace(id)
}
