package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/parley/pkg/domain"
)

// Loader implements ports.AgentLoader over an agent built in code.
// Set replaces the definition and notifies watchers, which makes it handy for tests
// of hot reload.
type Loader struct {
	mu       sync.Mutex
	agent    *domain.Agent
	watchers []chan struct{}
}

// NewLoader creates a loader serving the given agent.
func NewLoader(agent *domain.Agent) *Loader {
	return &Loader{agent: agent}
}

// Load prepares and returns the agent.
func (l *Loader) Load(ctx context.Context) (*domain.Agent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.agent == nil {
		return nil, fmt.Errorf("memory loader: %w", domain.ErrAgentNotLoaded)
	}
	if !l.agent.Prepared() {
		if err := l.agent.Prepare(); err != nil {
			return nil, err
		}
	}
	return l.agent, nil
}

// Set swaps the agent definition and signals every watcher.
func (l *Loader) Set(agent *domain.Agent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.agent = agent
	for _, ch := range l.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Watch implements ports.Watchable. The channel is closed when ctx is done.
func (l *Loader) Watch(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)

	l.mu.Lock()
	l.watchers = append(l.watchers, ch)
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, w := range l.watchers {
			if w == ch {
				l.watchers = append(l.watchers[:i], l.watchers[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}
