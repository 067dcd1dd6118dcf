package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

func sampleAgent(id string) *domain.Agent {
	return &domain.Agent{
		ID:    id,
		Flows: []domain.Flow{{ID: "main", Pages: []domain.Page{{ID: "home"}}}},
	}
}

func TestInMemoryLoader_Contract(t *testing.T) {
	ports.RunAgentLoaderContract(t, memory.NewLoader(sampleAgent("demo")), "demo")
}

func TestInMemoryLoader_InvalidAgent(t *testing.T) {
	loader := memory.NewLoader(&domain.Agent{ID: "empty"})
	_, err := loader.Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidAgent)

	_, err = memory.NewLoader(nil).Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrAgentNotLoaded)
}

func TestInMemoryLoader_Watch(t *testing.T) {
	loader := memory.NewLoader(sampleAgent("v1"))
	ctx, cancel := context.WithCancel(context.Background())

	changes, err := loader.Watch(ctx)
	require.NoError(t, err)

	loader.Set(sampleAgent("v2"))
	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("expected a change notification")
	}

	agent, err := loader.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v2", agent.ID)

	cancel()
	assert.Eventually(t, func() bool {
		_, open := <-changes
		return !open
	}, time.Second, 10*time.Millisecond)
}
