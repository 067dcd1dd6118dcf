package ports

import (
	"context"

	"github.com/aretw0/parley/pkg/domain"
)

// TurnEngine is the caller-facing turn API used by transport adapters (HTTP, MCP, chat).
type TurnEngine interface {
	// ProcessTurn matches the input and advances the session by one turn.
	ProcessTurn(ctx context.Context, req domain.TurnRequest) (*domain.TurnResult, error)

	// MatchOnly returns candidate matches without mutating the session.
	MatchOnly(ctx context.Context, req domain.TurnRequest) ([]domain.Match, error)

	// FulfillMatch advances the session using a match previously returned by MatchOnly.
	FulfillMatch(ctx context.Context, req domain.TurnRequest, match domain.Match) (*domain.TurnResult, error)

	// Session returns the stored state of a session.
	Session(ctx context.Context, sessionID string) (*domain.State, error)

	// ResetSession discards a session.
	ResetSession(ctx context.Context, sessionID string) error

	// Inspect returns the active agent snapshot.
	Inspect() (*domain.Agent, error)
}
