package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStateStoreContract runs a suite of tests to verify that a StateStore implementation
// adheres to the defined interface contract.
func RunStateStoreContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		state := domain.NewState(sessionID, "main", domain.PageStart)
		state.Parameters["foo"] = "bar"
		state.Parameters["count"] = 42
		state.Counters["size"] = domain.ParamCounters{NoMatch: 2}
		state.ReturnStack = []domain.ReturnFrame{{
			Flow:         "main",
			Page:         "menu",
			PendingMatch: &domain.Match{Type: domain.MatchIntent, Intent: "order"},
		}}

		err := store.Save(ctx, sessionID, state)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, state.Flow, loaded.Flow)
		assert.Equal(t, state.Page, loaded.Page)
		assert.Equal(t, "bar", loaded.Parameters["foo"])
		// JSON backed stores turn ints into float64; only check presence.
		assert.NotNil(t, loaded.Parameters["count"])
		assert.Equal(t, 2, loaded.Counters["size"].NoMatch)
		require.Len(t, loaded.ReturnStack, 1)
		assert.Equal(t, "order", loaded.ReturnStack[0].PendingMatch.Intent)
	})

	t.Run("Load Isolation", func(t *testing.T) {
		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		loaded.Parameters["foo"] = "mutated"

		again, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "bar", again.Parameters["foo"], "callers must not mutate stored state through a loaded copy")
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, sessionID, domain.NewState(sessionID, "main", domain.PageStart))
		require.NoError(t, err)

		err = store.Delete(ctx, sessionID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		require.NoError(t, store.Save(ctx, id1, domain.NewState(id1, "main", domain.PageStart)))
		require.NoError(t, store.Save(ctx, id2, domain.NewState(id2, "main", domain.PageStart)))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}

// RunAgentLoaderContract verifies that a loader returns a prepared agent with the expected id.
func RunAgentLoaderContract(t *testing.T, loader AgentLoader, wantAgentID string) {
	t.Helper()
	ctx := context.Background()

	t.Run("Load", func(t *testing.T) {
		agent, err := loader.Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, agent)
		assert.Equal(t, wantAgentID, agent.ID)
		assert.True(t, agent.Prepared(), "loaders must return prepared agents")
		_, ok := agent.Flow(agent.StartFlowID())
		assert.True(t, ok)
	})

	t.Run("Load Twice", func(t *testing.T) {
		first, err := loader.Load(ctx)
		require.NoError(t, err)
		second, err := loader.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
	})
}
