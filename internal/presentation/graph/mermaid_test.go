package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/parley/internal/presentation/graph"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/dsl"
)

func shopAgent(t *testing.T) *domain.Agent {
	t.Helper()
	b := dsl.New("shop")
	b.Intent("buy", "buy")
	b.Intent("help", "help")
	b.Flow("main").StartPage("home").
		WhenIntent("help", dsl.ToFlow("support")).
		On(domain.EventNoMatchDefault, dsl.Stay, "Sorry?")
	b.Flow("main").Page("home").
		WhenIntent("buy", dsl.ToPage("cart-page"))
	b.Flow("main").Page("cart-page").
		Param("qty", "sys.number").Required().Prompt("How many?").Done().
		When(`$page.params.status = "FINAL"`, dsl.EndSession)
	b.Flow("support").StartPage("desk")
	b.Flow("support").Page("desk").
		On("escalate", dsl.ToPage("home")).
		When("true", dsl.EndFlow)

	agent := b.Agent()
	if err := agent.Prepare(); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	return agent
}

func TestGenerateMermaid(t *testing.T) {
	out := graph.GenerateMermaid(shopAgent(t), nil)

	for _, want := range []string{
		"graph TD\n",
		"subgraph flow_main[\"main\"]",
		"main__start((\"main\"))",
		"home[\"home\"]",
		"cart_page[/\"cart-page\"/]",
		"main__start --> home",
		"main__start -. \"help\" .-> support__start",
		"home -- \"buy\" --> cart_page",
		"cart_page -- \"$page.params.status = 'FINAL'\" --> END_SESSION",
		"desk -. \"⚡ escalate\" .-> home",
		"desk -. \"true\" .-> END_SESSION",
		"END_SESSION(((\"end\")))",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("GenerateMermaid() missing %q\nGot:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Sorry") {
		t.Errorf("stay handlers should not draw edges:\n%s", out)
	}
	if strings.Contains(out, "Overlay") {
		t.Errorf("no overlay expected")
	}
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	out := graph.GenerateMermaid(shopAgent(t), &graph.GraphOverlay{
		CurrentFlow: "support",
		CurrentPage: "desk",
		Stack:       []string{"home", "home"},
	})

	for _, want := range []string{
		"classDef current",
		"class desk current;",
		"class home stacked;",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("overlay missing %q\nGot:\n%s", want, out)
		}
	}
	if n := strings.Count(out, "class home stacked;"); n != 1 {
		t.Errorf("stacked pages should be deduplicated, got %d", n)
	}

	out = graph.GenerateMermaid(shopAgent(t), &graph.GraphOverlay{CurrentFlow: "main", CurrentPage: domain.PageStart})
	if !strings.Contains(out, "class main__start current;") {
		t.Errorf("START_PAGE should highlight the flow start node\nGot:\n%s", out)
	}
}
