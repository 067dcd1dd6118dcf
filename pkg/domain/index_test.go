package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validAgent() *Agent {
	return &Agent{
		ID:       "shop",
		Intents:  []Intent{{ID: "buy"}, {ID: "help"}},
		Webhooks: []Webhook{{ID: "inventory", URL: "http://localhost"}},
		Flows: []Flow{
			{
				ID:          "main",
				RouteGroups: []TransitionRouteGroup{{ID: "common", Routes: []TransitionRoute{{Intent: "help", Target: PageTarget("help")}}}},
				TransitionRoutes: []TransitionRoute{
					{Intent: "buy", Target: FlowTarget("checkout")},
				},
				Pages: []Page{
					{ID: "help", TransitionRouteGroups: []string{"common"}},
				},
			},
			{
				ID:        "checkout",
				StartPage: "cart",
				Pages: []Page{
					{
						ID: "cart",
						EntryFulfillment: &Fulfillment{
							Webhook: "inventory",
							ConditionalCases: []ConditionalCases{{Cases: []Case{{
								CaseContent: []CaseContent{{AdditionalCases: &ConditionalCases{}}},
							}}}},
						},
						TransitionRoutes: []TransitionRoute{{Condition: "true", Target: PageTarget(PageEndFlow)}},
					},
				},
			},
		},
	}
}

func TestPrepare_Valid(t *testing.T) {
	a := validAgent()
	require.NoError(t, a.Prepare())

	assert.Equal(t, "main", a.StartFlowID())

	start, ok := a.StartPage("main")
	require.True(t, ok)
	assert.Equal(t, PageStart, start.ID)

	start, ok = a.StartPage("checkout")
	require.True(t, ok)
	assert.Equal(t, "cart", start.ID)

	flow, ok := a.FlowOf("cart")
	assert.True(t, ok)
	assert.Equal(t, "checkout", flow)

	_, ok = a.Page("main", "cart")
	assert.False(t, ok, "page lookups are scoped to the owning flow")

	_, ok = a.RouteGroup("main", "common")
	assert.True(t, ok)
}

func TestPrepare_CollectsProblems(t *testing.T) {
	a := validAgent()
	a.Flows[0].Pages = append(a.Flows[0].Pages,
		Page{ID: "cart"},
		Page{ID: "broken", TransitionRoutes: []TransitionRoute{
			{Target: PageTarget("nowhere")},
		}},
	)
	a.Flows[0].EventHandlers = []EventHandler{{
		Event:              EventWebhookError,
		TriggerFulfillment: &Fulfillment{Webhook: "inventory"},
	}}
	a.Flows[1].Pages[0].EntryFulfillment.ConditionalCases[0].Cases[0].CaseContent = []CaseContent{{}}

	err := a.Prepare()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidAgent))

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Problems, 6)
	assert.False(t, a.Prepared())
}
