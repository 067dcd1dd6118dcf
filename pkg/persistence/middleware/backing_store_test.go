package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
)

// backingStore is the undecorated store a middleware writes to.
type backingStore struct {
	*memory.Store
	saves int
}

func newBackingStore() *backingStore {
	return &backingStore{Store: memory.NewStore()}
}

func (s *backingStore) Save(ctx context.Context, sessionID string, state *domain.State) error {
	s.saves++
	return s.Store.Save(ctx, sessionID, state)
}

// raw returns what the middleware actually persisted for sessionID.
func (s *backingStore) raw(t *testing.T, sessionID string) *domain.State {
	t.Helper()
	state, err := s.Store.Load(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("raw load of %s: %v", sessionID, err)
	}
	return state
}
