package runtime_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

func greeterAgent() *domain.Agent {
	return &domain.Agent{
		ID:                      "greeter",
		ClassificationThreshold: 0.5,
		Flows: []domain.Flow{{
			ID: "main",
			TransitionRoutes: []domain.TransitionRoute{
				{Intent: "hello", TriggerFulfillment: say("Hi there!"), Target: domain.PageTarget("menu")},
			},
			EventHandlers: []domain.EventHandler{
				{Event: domain.EventNoMatchDefault, TriggerFulfillment: say("I didn't get that.")},
				{Event: domain.EventNoInputDefault, TriggerFulfillment: say("Are you there?")},
			},
			Pages: []domain.Page{{ID: "menu", EntryFulfillment: say("What can I do?")}},
		}},
	}
}

func TestEngine_StartOnImplicitStartPage(t *testing.T) {
	agent := prepare(t, greeterAgent())
	e := runtime.NewEngine(nil, nil, nil)

	st := e.Start(agent, "s1")
	assert.Equal(t, "main", st.Flow)
	assert.Equal(t, domain.PageStart, st.Page)

	st, res := step(t, e, agent, st, intent("hello"))
	assert.Equal(t, "menu", st.Page)
	assert.Equal(t, []string{"Hi there!", "What can I do?"}, res.Texts())
	assert.Equal(t, []domain.PageTransition{{FromFlow: "main", FromPage: domain.PageStart, ToFlow: "main", ToPage: "menu"}}, res.Diagnostics.Transitions)
}

func TestEngine_Match(t *testing.T) {
	matcher := ports.MatcherFunc(func(_ context.Context, _ *domain.Agent, req domain.MatchRequest) ([]domain.Match, error) {
		switch req.Text {
		case "hey":
			return []domain.Match{
				{Type: domain.MatchIntent, Intent: "hello", Confidence: 0.9},
				{Type: domain.MatchIntent, Intent: "bye", Confidence: 0.2},
			}, nil
		case "meh":
			return []domain.Match{{Type: domain.MatchIntent, Intent: "hello", Confidence: 0.3}}, nil
		case "boom":
			return nil, errors.New("classifier offline")
		}
		return nil, nil
	})
	agent := prepare(t, greeterAgent())
	e := runtime.NewEngine(nil, matcher, nil)
	st := e.Start(agent, "s1")
	ctx := context.Background()

	t.Run("filters below threshold", func(t *testing.T) {
		got, err := e.Match(ctx, agent, st, text("hey"))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "hello", got[0].Intent)
		assert.Equal(t, "hey", got[0].ResolvedInput)
	})

	t.Run("all below threshold is a no-match", func(t *testing.T) {
		got, err := e.Match(ctx, agent, st, text("meh"))
		require.NoError(t, err)
		assert.Equal(t, []domain.Match{{Type: domain.MatchNoMatch, ResolvedInput: "meh"}}, got)
	})

	t.Run("events and intents bypass the matcher", func(t *testing.T) {
		got, err := e.Match(ctx, agent, st, event("boom"))
		require.NoError(t, err)
		assert.Equal(t, domain.MatchEvent, got[0].Type)

		got, err = e.Match(ctx, agent, st, intent("hello"))
		require.NoError(t, err)
		assert.Equal(t, domain.MatchDirectIntent, got[0].Type)
	})

	t.Run("matcher failure is a no-match", func(t *testing.T) {
		got, err := e.Match(ctx, agent, st, text("boom"))
		assert.ErrorIs(t, err, domain.ErrMatcherUnavailable)
		assert.Equal(t, domain.MatchNoMatch, got[0].Type)

		_, res := step(t, e, agent, st, text("boom"))
		assert.Equal(t, []string{"I didn't get that."}, res.Texts())
		assert.Contains(t, res.Diagnostics.MatcherError, "classifier offline")
	})

	t.Run("empty input is no-input", func(t *testing.T) {
		_, res := step(t, e, agent, st, domain.TurnInput{})
		assert.Equal(t, []string{"Are you there?"}, res.Texts())
	})
}

func TestEngine_MatchTimeout(t *testing.T) {
	matcher := ports.MatcherFunc(func(ctx context.Context, _ *domain.Agent, _ domain.MatchRequest) ([]domain.Match, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	agent := prepare(t, greeterAgent())
	e := runtime.NewEngine(nil, matcher, nil, runtime.WithMatcherTimeout(10*time.Millisecond))

	_, res := step(t, e, agent, e.Start(agent, "s1"), text("anyone?"))
	assert.Equal(t, []string{"I didn't get that."}, res.Texts())
	assert.NotEmpty(t, res.Diagnostics.MatcherError)
}

func TestEngine_FulfillSuppliedMatch(t *testing.T) {
	agent := prepare(t, greeterAgent())
	e := runtime.NewEngine(nil, nil, nil)

	m := domain.Match{Type: domain.MatchIntent, Intent: "hello", Confidence: 0.8}
	st, res, err := e.Turn(context.Background(), agent, e.Start(agent, "s1"), domain.TurnRequest{SessionID: "s1"}, &m)
	require.NoError(t, err)
	assert.Equal(t, "menu", st.Page)
	assert.Equal(t, m, res.Match)
}

func TestEngine_LifecycleHooks(t *testing.T) {
	var (
		mu     sync.Mutex
		events []string
	)
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, s)
	}
	hooks := domain.LifecycleHooks{
		OnPageEnter:     func(_ context.Context, e *domain.PageEvent) { record("enter:" + e.PageID) },
		OnPageLeave:     func(_ context.Context, e *domain.PageEvent) { record("leave:" + e.PageID) },
		OnWebhookCall:   func(_ context.Context, e *domain.WebhookEvent) { record("call:" + e.Webhook) },
		OnWebhookReturn: func(_ context.Context, e *domain.WebhookEvent) { record("return:" + e.Webhook) },
		OnTurnComplete: func(_ context.Context, e *domain.TurnEvent) {
			assert.Equal(t, domain.MatchDirectIntent, e.MatchType)
			record("turn")
		},
	}
	agent := greeterAgent()
	agent.Webhooks = []domain.Webhook{{ID: "audit", URL: "http://audit.local"}}
	agent.Flows[0].TransitionRoutes[0].TriggerFulfillment.Webhook = "audit"
	agent = prepare(t, agent)

	invoker := ports.WebhookInvokerFunc(func(context.Context, *domain.Webhook, *domain.WebhookRequest) (*domain.WebhookResponse, error) {
		return &domain.WebhookResponse{}, nil
	})
	e := runtime.NewEngine(nil, nil, invoker, runtime.WithLifecycleHooks(hooks))

	step(t, e, agent, e.Start(agent, "s1"), intent("hello"))
	assert.Equal(t, []string{"call:audit", "return:audit", "leave:" + domain.PageStart, "enter:menu", "turn"}, events)
}

func TestEngine_UnknownPageRestarts(t *testing.T) {
	agent := prepare(t, greeterAgent())
	e := runtime.NewEngine(nil, nil, nil)

	stale := domain.NewState("s1", "main", "removed_page")
	stale.Parameters["keep"] = "no"
	st, _ := step(t, e, agent, stale, intent("hello"))
	assert.Equal(t, "menu", st.Page)
	assert.NotContains(t, st.Parameters, "keep")
}
