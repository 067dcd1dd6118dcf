package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

// Mask replaces masked values.
const Mask = "***"

type piiMiddleware struct {
	next     ports.StateStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks values of parameters whose name
// matches one of the patterns, both on the way in and on the way out. Masking is
// one-way: use it for audit views or analytics stores, not for the store the engine
// resumes sessions from.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid PII pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.StateStore) ports.StateStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

// RedactedPatterns returns exact-match patterns for the agent's redacted form parameters.
func RedactedPatterns(agent *domain.Agent) []string {
	names := agent.RedactedParameters()
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = "^" + regexp.QuoteMeta(name) + "$"
	}
	return out
}

func (m *piiMiddleware) Save(ctx context.Context, sessionID string, state *domain.State) error {
	// The engine may still hold state; mask a copy.
	return m.next.Save(ctx, sessionID, m.mask(state.Clone()))
}

func (m *piiMiddleware) Load(ctx context.Context, sessionID string) (*domain.State, error) {
	state, err := m.next.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return m.mask(state), nil
}

func (m *piiMiddleware) mask(state *domain.State) *domain.State {
	maskMap(state.Parameters, m.patterns)
	for _, f := range state.ReturnStack {
		if f.PendingMatch != nil {
			maskMap(f.PendingMatch.Parameters, m.patterns)
		}
	}
	return state
}

func (m *piiMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		if matchesAny(k, patterns) {
			m[k] = Mask
			continue
		}
		maskValue(v, patterns)
	}
}

func maskValue(v any, patterns []*regexp.Regexp) {
	switch t := v.(type) {
	case map[string]any:
		maskMap(t, patterns)
	case []any:
		for _, item := range t {
			maskValue(item, patterns)
		}
	}
}

func matchesAny(key string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}
