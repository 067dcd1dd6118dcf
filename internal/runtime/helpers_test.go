package runtime_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/domain"
)

func prepare(t *testing.T, agent *domain.Agent) *domain.Agent {
	t.Helper()
	require.NoError(t, agent.Prepare())
	return agent
}

func say(text ...string) *domain.Fulfillment {
	msgs := make([]domain.ResponseMessage, 0, len(text))
	for _, s := range text {
		msgs = append(msgs, domain.TextResponse(s))
	}
	return &domain.Fulfillment{Messages: msgs}
}

func intent(name string) domain.TurnInput { return domain.TurnInput{Intent: name} }

func event(name string) domain.TurnInput { return domain.TurnInput{Event: name} }

func text(s string) domain.TurnInput { return domain.TurnInput{Text: s} }

// step runs one successful turn.
func step(t *testing.T, e *runtime.Engine, agent *domain.Agent, st *domain.State, in domain.TurnInput) (*domain.State, *domain.TurnResult) {
	t.Helper()
	next, res, err := e.Turn(context.Background(), agent, st, domain.TurnRequest{SessionID: "s1", Input: in}, nil)
	require.NoError(t, err)
	require.NotNil(t, next)
	return next, res
}
