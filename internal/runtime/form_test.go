package runtime_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

func formAgent(handlers ...domain.EventHandler) *domain.Agent {
	return &domain.Agent{
		ID: "pizza",
		Flows: []domain.Flow{{
			ID:        "order",
			StartPage: "collect",
			Pages: []domain.Page{
				{
					ID: "collect",
					Form: &domain.Form{Parameters: []domain.FormParameter{
						{
							Name:       "size",
							EntityType: "size",
							Required:   true,
							FillBehavior: domain.FillBehavior{
								InitialPrompt:         say("What size?"),
								RepromptEventHandlers: handlers,
							},
						},
						{
							Name:         "crust",
							Required:     true,
							DefaultValue: "thin",
						},
						{
							Name:     "topping",
							Required: true,
							FillBehavior: domain.FillBehavior{
								InitialPrompt: say("Which topping?"),
							},
						},
					}},
					TransitionRoutes: []domain.TransitionRoute{{
						Condition:          `$page.params.status = "FINAL"`,
						TriggerFulfillment: say("A $session.params.size $session.params.topping pizza on $session.params.crust crust."),
						Target:             domain.PageTarget("done"),
					}},
				},
				{ID: "done", EntryFulfillment: say("Order placed.")},
			},
		}},
	}
}

func TestFormFilling_RepromptSequence(t *testing.T) {
	agent := prepare(t, formAgent(
		domain.EventHandler{Event: "sys.no-match-1", TriggerFulfillment: say("R1")},
		domain.EventHandler{Event: "sys.no-match-2", TriggerFulfillment: say("R2")},
		domain.EventHandler{Event: "sys.no-match-default", TriggerFulfillment: say("RD")},
		domain.EventHandler{Event: "sys.no-input-default", TriggerFulfillment: say("Still there?")},
	))
	e := runtime.NewEngine(nil, nil, nil)
	st := e.Start(agent, "s1")
	assert.Equal(t, "thin", st.Parameters["crust"], "defaults are applied on start")

	for i, want := range []string{"R1", "R2", "RD", "RD"} {
		var res *domain.TurnResult
		st, res = step(t, e, agent, st, text("banana"))
		assert.Equal(t, []string{want}, res.Texts(), "turn %d", i+1)
		assert.Equal(t, "collect", st.Page)
		require.Len(t, res.Diagnostics.Fired, 1)
		assert.Equal(t, domain.RuleReprompt, res.Diagnostics.Fired[0].Kind)
	}
	assert.Equal(t, 4, st.Counters["size"].NoMatch)

	st, res := step(t, e, agent, st, domain.TurnInput{})
	assert.Equal(t, []string{"Still there?"}, res.Texts())
	assert.Equal(t, 1, st.Counters["size"].NoInput)
}

func TestFormFilling_GapFallsBackToInitialPrompt(t *testing.T) {
	agent := prepare(t, formAgent(
		domain.EventHandler{Event: "sys.no-match-2", TriggerFulfillment: say("R2")},
	))
	e := runtime.NewEngine(nil, nil, nil)
	st := e.Start(agent, "s1")

	st, res := step(t, e, agent, st, text("?"))
	assert.Equal(t, []string{"What size?"}, res.Texts())
	st, res = step(t, e, agent, st, text("?"))
	assert.Equal(t, []string{"R2"}, res.Texts())
	_, res = step(t, e, agent, st, text("?"))
	assert.Equal(t, []string{"What size?"}, res.Texts())
}

func TestFormFilling_CompletesAndAdvances(t *testing.T) {
	matcher := ports.MatcherFunc(func(_ context.Context, _ *domain.Agent, req domain.MatchRequest) ([]domain.Match, error) {
		switch req.Text {
		case "large":
			assert.Equal(t, "size", req.ExpectedParameter)
			return []domain.Match{{Type: domain.MatchParameterFilling, Parameters: map[string]any{"size": "large"}}}, nil
		case "ham":
			return []domain.Match{{Type: domain.MatchParameterFilling, Parameters: map[string]any{"topping": "ham"}}}, nil
		}
		return nil, nil
	})
	agent := prepare(t, formAgent(domain.EventHandler{Event: "sys.no-match-default", TriggerFulfillment: say("RD")}))
	e := runtime.NewEngine(nil, matcher, nil)
	st := e.Start(agent, "s1")

	st, _ = step(t, e, agent, st, text("what?"))
	assert.Equal(t, 1, st.Counters["size"].NoMatch)

	st, res := step(t, e, agent, st, text("large"))
	assert.Equal(t, []string{"Which topping?"}, res.Texts())
	assert.NotContains(t, st.Counters, "size", "filling a parameter resets its counters")

	st, res = step(t, e, agent, st, text("ham"))
	assert.Equal(t, []string{"A large ham pizza on thin crust.", "Order placed."}, res.Texts())
	assert.Equal(t, "done", st.Page)
	assert.Equal(t, map[string]any{"topping": "ham"}, res.Diagnostics.ParameterDelta)
}

func TestFormFilling_RedirectingReprompt(t *testing.T) {
	agent := formAgent(
		domain.EventHandler{Event: "sys.no-match-1", TriggerFulfillment: say("Let me get someone."), Target: domain.PageTarget("done")},
	)
	agent = prepare(t, agent)
	e := runtime.NewEngine(nil, nil, nil)

	st, res := step(t, e, agent, e.Start(agent, "s1"), text("??"))
	assert.Equal(t, "done", st.Page)
	assert.Equal(t, []string{"Let me get someone.", "Order placed."}, res.Texts())
}

func TestFormFilling_IntentRouteTakesPrecedence(t *testing.T) {
	agent := formAgent()
	agent.Flows[0].TransitionRoutes = []domain.TransitionRoute{{
		Intent:             "cancel",
		TriggerFulfillment: say("Cancelled."),
		Target:             domain.PageTarget(domain.PageEndSession),
	}}
	agent = prepare(t, agent)
	e := runtime.NewEngine(nil, nil, nil)

	st, res := step(t, e, agent, e.Start(agent, "s1"), intent("cancel"))
	assert.Equal(t, []string{"Cancelled."}, res.Texts())
	assert.True(t, st.Closed)
	require.Len(t, res.Diagnostics.Fired, 1)
	assert.Equal(t, runtime.TierFlowIntent, res.Diagnostics.Fired[0].Tier)
}

func TestFormFilling_RedactedDelta(t *testing.T) {
	agent := formAgent()
	agent.Flows[0].Pages[0].Form.Parameters[0].Redact = true
	agent = prepare(t, agent)

	matcher := ports.MatcherFunc(func(context.Context, *domain.Agent, domain.MatchRequest) ([]domain.Match, error) {
		return []domain.Match{{Type: domain.MatchParameterFilling, Confidence: 1, Parameters: map[string]any{"size": "large"}}}, nil
	})
	e := runtime.NewEngine(nil, matcher, nil)

	st, res := step(t, e, agent, e.Start(agent, "s1"), text("large"))
	assert.Equal(t, "large", st.Parameters["size"])
	assert.Equal(t, "large", res.Parameters["size"])
	assert.Equal(t, runtime.RedactedValue, res.Diagnostics.ParameterDelta["size"])
}

func TestFormFilling_IntentParametersCarryIntoForm(t *testing.T) {
	agent := formAgent()
	agent.Flows[0].StartPage = "welcome"
	agent.Flows[0].Pages = append(agent.Flows[0].Pages, domain.Page{
		ID: "welcome",
		TransitionRoutes: []domain.TransitionRoute{{
			Intent:             "order",
			TriggerFulfillment: say("One $session.params.size pizza coming up."),
			Target:             domain.PageTarget("collect"),
		}},
	})
	agent = prepare(t, agent)
	matcher := ports.MatcherFunc(func(context.Context, *domain.Agent, domain.MatchRequest) ([]domain.Match, error) {
		return []domain.Match{{
			Type:       domain.MatchIntent,
			Intent:     "order",
			Confidence: 0.9,
			Parameters: map[string]any{"size": "large", "topping": ""},
		}}, nil
	})
	e := runtime.NewEngine(nil, matcher, nil)

	st, res := step(t, e, agent, e.Start(agent, "s1"), text("i want a large pizza"))
	assert.Equal(t, "collect", st.Page)
	assert.Equal(t, "large", st.Parameters["size"])
	assert.NotContains(t, st.Parameters, "topping", "empty extractions are not stored")
	assert.Equal(t, []string{"One large pizza coming up.", "Which topping?"}, res.Texts())
}
