package ports

import (
	"context"

	"github.com/aretw0/parley/pkg/domain"
)

// AgentLoader defines how the engine retrieves the agent definition.
// The engine never writes agents; it loads one snapshot per definition version.
type AgentLoader interface {
	// Load returns a prepared agent.
	Load(ctx context.Context) (*domain.Agent, error)
}

// Watchable defines an interface for loaders that can notify about backend changes.
// This is typically used for hot-reload or dev-mode functionality.
type Watchable interface {
	// Watch returns a channel that is signaled when the underlying definition changes.
	// It abstracts away the specific event details, signaling only that a reload is required.
	Watch(ctx context.Context) (<-chan struct{}, error)
}
