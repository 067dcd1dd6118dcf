package dsl_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/dsl"
)

func pizzaBuilder() *dsl.Builder {
	b := dsl.New("pizza").Threshold(0.6)
	b.Intent("order", "i want a pizza", "order a pizza").Param("size", "size")
	b.Intent("cancel", "cancel", "never mind")
	b.Entity("size").Value("large", "big", "huge").Value("small", "tiny")
	b.Webhook("crm", "http://crm.local/hook", 2*time.Second)

	main := b.Flow("main").
		WhenIntent("order", dsl.ToFlow("order"), "Let's order.").
		On(domain.EventNoMatchDefault, dsl.Stay, "Sorry, I didn't get that.")
	main.Page("welcome").Entry("Hi! Want a pizza?")
	main.StartPage("welcome")

	order := b.Flow("order").StartPage("size").
		WhenIntent("cancel", dsl.EndSession, "Okay, cancelled.")
	order.Page("size").
		Param("size", "size").Required().Prompt("What size?").
		Reprompt("sys.no-match-1", "Small or large?").
		Done().
		When(`$page.params.status = "FINAL"`, dsl.ToPage("confirm"))
	order.Page("confirm").
		Entry("A $session.params.size pizza it is.").
		Webhook("crm", "save-order").
		WhenIntent("cancel", dsl.EndFlow)
	return b
}

func TestBuilder_Structure(t *testing.T) {
	agent := pizzaBuilder().Agent()

	assert.Equal(t, "pizza", agent.ID)
	assert.Equal(t, 0.6, agent.ClassificationThreshold)
	require.Len(t, agent.Flows, 2)
	require.Len(t, agent.Intents, 2)
	assert.Equal(t, []domain.IntentParameter{{ID: "size", EntityType: "size"}}, agent.Intents[0].Parameters)
	require.Len(t, agent.EntityTypes, 1)
	assert.Equal(t, []string{"big", "huge"}, agent.EntityTypes[0].Entities[0].Synonyms)
	assert.Equal(t, 2*time.Second, agent.Webhooks[0].Timeout)

	main := agent.Flows[0]
	assert.Equal(t, "welcome", main.StartPage)
	require.Len(t, main.TransitionRoutes, 1)
	assert.Equal(t, domain.FlowTarget("order"), main.TransitionRoutes[0].Target)
	assert.Equal(t, []string{"Let's order."}, texts(main.TransitionRoutes[0].TriggerFulfillment))
	assert.True(t, main.EventHandlers[0].Target.IsZero(), "Stay keeps the page")

	size := agent.Flows[1].Pages[0]
	require.NotNil(t, size.Form)
	param := size.Form.Parameters[0]
	assert.True(t, param.Required)
	assert.Equal(t, []string{"What size?"}, texts(param.FillBehavior.InitialPrompt))
	h, ok := param.FillBehavior.Handler("sys.no-match-1")
	require.True(t, ok)
	assert.Equal(t, []string{"Small or large?"}, texts(h.TriggerFulfillment))

	confirm := agent.Flows[1].Pages[1]
	assert.Equal(t, "crm", confirm.EntryFulfillment.Webhook)
	assert.Equal(t, "save-order", confirm.EntryFulfillment.Tag)
	assert.Equal(t, dsl.EndFlow, confirm.TransitionRoutes[0].Target)
}

func TestBuilder_Build(t *testing.T) {
	loader, err := pizzaBuilder().Build()
	require.NoError(t, err)

	agent, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, agent.Prepared())

	flow, ok := agent.FlowOf("confirm")
	require.True(t, ok)
	assert.Equal(t, "order", flow)
}

func TestBuilder_BuildRejectsInvalidAgent(t *testing.T) {
	b := dsl.New("broken")
	b.Flow("main").Page("home").WhenIntent("go", dsl.ToPage("nowhere"))

	_, err := b.Build()
	require.ErrorIs(t, err, domain.ErrInvalidAgent)
	assert.Contains(t, err.Error(), `unknown target page "nowhere"`)
}

func TestBuilder_ReusesFlowsAndPages(t *testing.T) {
	b := dsl.New("reuse")
	b.Flow("main").Page("home").Entry("one")
	b.Flow("main").Page("home").Entry("two").Set("seen", true)

	agent := b.Agent()
	require.Len(t, agent.Flows, 1)
	require.Len(t, agent.Flows[0].Pages, 1)
	entry := agent.Flows[0].Pages[0].EntryFulfillment
	assert.Equal(t, []string{"one", "two"}, texts(entry))
	assert.Equal(t, []domain.SetParameterAction{{Parameter: "seen", Value: true}}, entry.SetParameterActions)
}

func TestSay(t *testing.T) {
	assert.Nil(t, dsl.Say())
	assert.Equal(t, []string{"a", "b"}, texts(dsl.Say("a", "b")))
}

func texts(f *domain.Fulfillment) []string {
	if f == nil {
		return nil
	}
	var out []string
	for _, m := range f.Messages {
		out = append(out, m.PlainText())
	}
	return out
}
