package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed turn lock survives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// Manager serializes turns per session and owns their persistence. Inside one process
// a gate orders turns of the same session; across replicas an optional distributed
// locker does.
type Manager struct {
	store   ports.StateStore
	gate    *gate
	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker serializes turns across replicas sharing one store.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the distributed lock TTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger sets the logger for lock diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager returns a Manager persisting to store.
func NewManager(store ports.StateStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		gate:    newGate(),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load reads a session, waiting for any turn in progress on it.
func (m *Manager) Load(ctx context.Context, sessionID string) (*domain.State, error) {
	var state *domain.State
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		state, err = m.store.Load(ctx, sessionID)
		return err
	})
	return state, err
}

// Update runs one turn for the session while holding its lock.
//
// fn receives the stored state, or nil when the session does not exist yet or was
// closed; the engine starts a fresh session in that case. The state fn returns is
// saved only when fn succeeds and ctx is still live, so a failed or cancelled turn
// leaves the stored session exactly as it was.
func (m *Manager) Update(ctx context.Context, sessionID string, fn func(ctx context.Context, current *domain.State) (*domain.State, error)) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		current, err := m.store.Load(ctx, sessionID)
		switch {
		case errors.Is(err, domain.ErrSessionNotFound):
			current = nil
		case err != nil:
			return fmt.Errorf("failed to load session: %w", err)
		case current.Closed:
			m.logger.Debug("Session closed, starting fresh", "session_id", sessionID)
			current = nil
		}

		next, err := fn(ctx, current)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if next == nil {
			return nil
		}
		if err := m.store.Save(ctx, sessionID, next); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
		return nil
	})
}

// Save overwrites the stored session.
func (m *Manager) Save(ctx context.Context, sessionID string, state *domain.State) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.store.Save(ctx, sessionID, state)
	})
}

// Delete removes the session once no turn is running on it.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.store.Delete(ctx, sessionID)
	})
}

// List returns the stored session ids.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store exposes the backing store.
func (m *Manager) Store() ports.StateStore {
	return m.store
}

// WithLock runs fn as the only holder of the session. Waiting for the local gate and
// for the distributed lock both honour ctx.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	leave, err := m.gate.enter(ctx, sessionID)
	if err != nil {
		return err
	}
	defer leave()

	if m.locker == nil {
		return fn(ctx)
	}
	unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire distributed lock: %w", err)
	}
	defer func() {
		// Release on a detached context; the turn context may already be cancelled.
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			m.logger.Warn("Distributed lock not released, it expires with its TTL",
				"session_id", sessionID, "ttl", m.lockTTL, "err", err)
		}
	}()
	return fn(ctx)
}
