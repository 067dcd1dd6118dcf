package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/aretw0/parley/pkg/domain"
)

// Store keeps sessions in process memory. States are copied on the way in and out,
// so callers never share a map with the store. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*domain.State
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*domain.State)}
}

func (s *Store) Save(_ context.Context, sessionID string, state *domain.State) error {
	snapshot := state.Clone()
	s.mu.Lock()
	s.sessions[sessionID] = snapshot
	s.mu.Unlock()
	return nil
}

func (s *Store) Load(_ context.Context, sessionID string) (*domain.State, error) {
	s.mu.RLock()
	state, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return state.Clone(), nil
}

func (s *Store) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}

// List returns the session ids in lexical order.
func (s *Store) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.sessions)), nil
}
