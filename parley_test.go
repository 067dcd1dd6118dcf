package parley_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/dsl"
	"github.com/aretw0/parley/pkg/ports"
)

func pizzaAgent() *dsl.Builder {
	b := dsl.New("pizza").Threshold(0.6)
	b.Intent("order", "i want a pizza", "order a pizza")
	b.Intent("cancel", "cancel", "never mind")
	b.Entity("size").Value("large", "big").Value("small", "tiny")
	b.Webhook("crm", "http://crm.local/hook", time.Second)

	main := b.Flow("main").StartPage("welcome").
		WhenIntent("order", dsl.ToFlow("order"), "Let's order.")
	main.Page("welcome").Entry("Hi! Want a pizza?")

	order := b.Flow("order").StartPage("size").
		WhenIntent("cancel", dsl.EndSession, "Okay, cancelled.")
	order.Page("size").
		Param("size", "size").Required().Prompt("What size?").Done().
		When(`$page.params.status = "FINAL"`, dsl.ToPage("confirm"))
	order.Page("confirm").
		Entry("A $session.params.size pizza it is.").
		Webhook("crm", "save-order")
	return b
}

func newEngine(t *testing.T, opts ...parley.Option) (*parley.Engine, *memory.Loader) {
	t.Helper()
	loader, err := pizzaAgent().Build()
	require.NoError(t, err)

	saved := ports.WebhookInvokerFunc(func(_ context.Context, wh *domain.Webhook, req *domain.WebhookRequest) (*domain.WebhookResponse, error) {
		return &domain.WebhookResponse{
			Messages:   []domain.ResponseMessage{domain.TextResponse("Order saved.")},
			Parameters: map[string]any{"order_id": "A-1"},
		}, nil
	})
	opts = append([]parley.Option{parley.WithWebhookInvoker(saved)}, opts...)
	eng, err := parley.New(loader, opts...)
	require.NoError(t, err)
	return eng, loader
}

func say(t *testing.T, eng *parley.Engine, session, text string) *domain.TurnResult {
	t.Helper()
	res, err := eng.ProcessTurn(context.Background(), domain.TurnRequest{
		SessionID: session,
		Input:     domain.TurnInput{Text: text},
	})
	require.NoError(t, err)
	return res
}

func TestEngine_Conversation(t *testing.T) {
	eng, _ := newEngine(t)
	ctx := context.Background()

	res := say(t, eng, "s1", "I want a pizza!")
	assert.Equal(t, "order", res.Flow)
	assert.Equal(t, "size", res.Page)
	assert.Equal(t, []string{"Let's order.", "What size?"}, res.Texts())
	assert.Equal(t, "order", res.Match.Intent)

	res = say(t, eng, "s1", "a big one")
	assert.Equal(t, "confirm", res.Page)
	assert.Equal(t, []string{"A large pizza it is.", "Order saved."}, res.Texts())
	assert.Equal(t, domain.MatchParameterFilling, res.Match.Type)
	assert.Equal(t, map[string]any{"size": "large", "order_id": "A-1"}, res.Diagnostics.ParameterDelta)
	require.Len(t, res.Diagnostics.Webhooks, 1)
	assert.Equal(t, "crm", res.Diagnostics.Webhooks[0].Webhook)

	st, err := eng.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, st.TurnCount)
	assert.Equal(t, "confirm", st.Page)
	require.Len(t, st.ReturnStack, 1)
	assert.Equal(t, "welcome", st.ReturnStack[0].Page)

	res = say(t, eng, "s1", "cancel")
	assert.True(t, res.Closed)
	assert.Equal(t, []string{"Okay, cancelled."}, res.Texts())

	// A closed session starts over on the next turn.
	res = say(t, eng, "s1", "hello?")
	assert.False(t, res.Closed)
	assert.Equal(t, "welcome", res.Page)
	assert.Empty(t, res.Parameters)
}

func TestEngine_AnonymousSession(t *testing.T) {
	eng, _ := newEngine(t, parley.WithSessionIDGenerator(func() string { return "anon-1" }))

	res := say(t, eng, "", "order a pizza")
	assert.Equal(t, "anon-1", res.SessionID)

	ids, err := eng.Sessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"anon-1"}, ids)
}

func TestEngine_MatchOnlyThenFulfill(t *testing.T) {
	eng, _ := newEngine(t)
	ctx := context.Background()
	req := domain.TurnRequest{SessionID: "s2", Input: domain.TurnInput{Text: "order a pizza"}}

	matches, err := eng.MatchOnly(ctx, req)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "order", matches[0].Intent)
	assert.Equal(t, 1.0, matches[0].Confidence)

	_, err = eng.Session(ctx, "s2")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound, "matching never creates a session")

	res, err := eng.FulfillMatch(ctx, req, matches[0])
	require.NoError(t, err)
	assert.Equal(t, "size", res.Page)
	assert.Equal(t, matches[0], res.Match)
}

func TestEngine_FatalTurnKeepsSession(t *testing.T) {
	b := dsl.New("loop")
	b.Intent("go", "go")
	f := b.Flow("main").StartPage("home")
	f.Page("home").WhenIntent("go", dsl.ToPage("ping"))
	f.Page("ping").When("true", dsl.ToPage("pong"))
	f.Page("pong").When("true", dsl.ToPage("ping"))
	loader, err := b.Build()
	require.NoError(t, err)

	eng, err := parley.New(loader, parley.WithFallbackMessage("Something went wrong."))
	require.NoError(t, err)
	ctx := context.Background()

	res, err := eng.ProcessTurn(ctx, domain.TurnRequest{SessionID: "s1", Input: domain.TurnInput{Intent: "go"}})
	require.ErrorIs(t, err, domain.ErrTransitionLimit)
	require.NotNil(t, res)
	assert.Equal(t, []string{"Something went wrong."}, res.Texts())
	assert.Equal(t, "home", res.Page)
	assert.NotEmpty(t, res.Diagnostics.FatalError)

	_, err = eng.Session(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestEngine_ResetSession(t *testing.T) {
	eng, _ := newEngine(t)
	ctx := context.Background()

	say(t, eng, "s1", "order a pizza")
	require.NoError(t, eng.ResetSession(ctx, "s1"))
	_, err := eng.Session(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestEngine_HooksAndOptions(t *testing.T) {
	var turns, enters atomic.Int32
	hooks := domain.LifecycleHooks{
		OnTurnComplete: func(context.Context, *domain.TurnEvent) { turns.Add(1) },
	}
	more := domain.LifecycleHooks{
		OnPageEnter: func(context.Context, *domain.PageEvent) { enters.Add(1) },
	}
	eng, _ := newEngine(t, parley.WithLifecycleHooks(hooks), parley.WithLifecycleHooks(more))

	say(t, eng, "s1", "order a pizza")
	assert.Equal(t, int32(1), turns.Load())
	assert.Equal(t, int32(1), enters.Load())
}

func TestEngine_Reload(t *testing.T) {
	eng, loader := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := eng.Watch(ctx)
	require.NoError(t, err)

	next := dsl.New("pizza-v2")
	next.Flow("main").Page("welcome").Entry("Welcome back!")
	loader.Set(next.Agent())

	select {
	case id := <-changes:
		assert.Equal(t, "pizza-v2", id)
	case <-time.After(2 * time.Second):
		t.Fatal("reload was not reported")
	}
	agent, err := eng.Agent()
	require.NoError(t, err)
	assert.Equal(t, "pizza-v2", agent.ID)

	t.Run("invalid definition keeps the active agent", func(t *testing.T) {
		broken := dsl.New("broken")
		broken.Flow("main").Page("home").WhenIntent("go", dsl.ToPage("nowhere"))
		loader.Set(broken.Agent())

		assert.ErrorIs(t, eng.Reload(ctx), domain.ErrInvalidAgent)
		agent, err := eng.Inspect()
		require.NoError(t, err)
		assert.Equal(t, "pizza-v2", agent.ID)
	})
}

type staticLoader struct{ agent *domain.Agent }

func (l staticLoader) Load(context.Context) (*domain.Agent, error) { return l.agent, nil }

func TestEngine_New(t *testing.T) {
	_, err := parley.New(nil)
	assert.Error(t, err)

	_, err = parley.New(staticLoader{agent: &domain.Agent{ID: "empty"}})
	assert.ErrorIs(t, err, domain.ErrInvalidAgent)

	eng, err := parley.New(staticLoader{agent: pizzaAgent().Agent()})
	require.NoError(t, err)
	_, err = eng.Watch(context.Background())
	assert.Error(t, err, "a static loader cannot be watched")
	assert.NoError(t, eng.Close())
}
