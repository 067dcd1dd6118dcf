package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// SlowStore simulates latency to provoke race conditions if locking is missing.
type SlowStore struct {
	data map[string]*domain.State
	mu   sync.Mutex
}

func (s *SlowStore) Save(ctx context.Context, sessionID string, state *domain.State) error {
	time.Sleep(2 * time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		s.data = make(map[string]*domain.State)
	}
	s.data[sessionID] = state.Clone()
	return nil
}

func (s *SlowStore) Load(ctx context.Context, sessionID string) (*domain.State, error) {
	time.Sleep(2 * time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()

	if state, ok := s.data[sessionID]; ok {
		return state.Clone(), nil
	}
	return nil, domain.ErrSessionNotFound
}

func (s *SlowStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}

func (s *SlowStore) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	return ids, nil
}

func increment(_ context.Context, current *domain.State) (*domain.State, error) {
	if current == nil {
		current = domain.NewState("", "main", domain.PageStart)
	}
	n, _ := current.Parameters["n"].(int)
	current.Parameters["n"] = n + 1
	return current, nil
}

func TestManager_UpdateSerializesTurns(t *testing.T) {
	store := &SlowStore{}
	manager := session.NewManager(store)
	ctx := context.Background()

	g, gctx := errgroup.WithContext(ctx)
	for range 20 {
		g.Go(func() error {
			return manager.Update(gctx, "race-test", increment)
		})
	}
	require.NoError(t, g.Wait())

	state, err := manager.Load(ctx, "race-test")
	require.NoError(t, err)
	assert.Equal(t, 20, state.Parameters["n"], "no update may be lost")
}

func TestManager_SessionsRunInParallel(t *testing.T) {
	manager := session.NewManager(&SlowStore{})
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})

	g := new(errgroup.Group)
	g.Go(func() error {
		return manager.Update(ctx, "a", func(ctx context.Context, s *domain.State) (*domain.State, error) {
			close(started)
			<-release
			return increment(ctx, s)
		})
	})

	<-started
	// A turn on another session must not wait for "a".
	done := make(chan error, 1)
	go func() { done <- manager.Update(ctx, "b", increment) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session b was blocked by session a")
	}
	close(release)
	require.NoError(t, g.Wait())
}

func TestManager_UpdateDoesNotCommitFailures(t *testing.T) {
	store := &SlowStore{}
	manager := session.NewManager(store)
	ctx := context.Background()
	require.NoError(t, manager.Update(ctx, "s1", increment))

	t.Run("error", func(t *testing.T) {
		boom := errors.New("boom")
		err := manager.Update(ctx, "s1", func(ctx context.Context, s *domain.State) (*domain.State, error) {
			s.Parameters["n"] = 99
			return s, boom
		})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		err := manager.Update(cctx, "s1", func(ctx context.Context, s *domain.State) (*domain.State, error) {
			cancel()
			return increment(ctx, s)
		})
		assert.ErrorIs(t, err, context.Canceled)
	})

	state, err := manager.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, state.Parameters["n"])
}

func TestManager_ClosedSessionStartsFresh(t *testing.T) {
	store := &SlowStore{}
	manager := session.NewManager(store)
	ctx := context.Background()

	closed := domain.NewState("s1", "main", "goodbye")
	closed.Closed = true
	require.NoError(t, manager.Save(ctx, "s1", closed))

	var got *domain.State
	require.NoError(t, manager.Update(ctx, "s1", func(_ context.Context, s *domain.State) (*domain.State, error) {
		got = s
		return nil, nil
	}))
	assert.Nil(t, got)

	loaded, err := manager.Load(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, loaded.Closed, "returning nil leaves the store untouched")
}

type recordingLocker struct {
	mu     sync.Mutex
	locked map[string]bool
	calls  int
}

func (l *recordingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locked[key] {
		return nil, errors.New("already locked")
	}
	l.locked[key] = true
	l.calls++
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.locked, key)
		return nil
	}, nil
}

func TestManager_DistributedLock(t *testing.T) {
	locker := &recordingLocker{locked: make(map[string]bool)}
	manager := session.NewManager(&SlowStore{}, session.WithLocker(locker), session.WithLockTTL(time.Second))
	ctx := context.Background()

	g := new(errgroup.Group)
	for range 5 {
		g.Go(func() error { return manager.Update(ctx, "s1", increment) })
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 5, locker.calls)
	assert.Empty(t, locker.locked)
}
