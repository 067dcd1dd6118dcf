package ports

import (
	"context"

	"github.com/aretw0/parley/pkg/domain"
)

// Matcher interprets free text (or DTMF digits) as intents and parameters.
type Matcher interface {
	// Match returns candidate matches, best first. An empty result is a no-match.
	// Errors are not fatal: the engine treats them as a no-match.
	Match(ctx context.Context, agent *domain.Agent, req domain.MatchRequest) ([]domain.Match, error)
}

// MatcherFunc adapts a function to the Matcher interface.
type MatcherFunc func(ctx context.Context, agent *domain.Agent, req domain.MatchRequest) ([]domain.Match, error)

// Match calls f.
func (f MatcherFunc) Match(ctx context.Context, agent *domain.Agent, req domain.MatchRequest) ([]domain.Match, error) {
	return f(ctx, agent, req)
}
