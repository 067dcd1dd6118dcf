// Package phrase is a reference Matcher. It scores free text against intent training
// phrases and resolves entity synonyms. Production agents plug a real NLU in behind
// ports.Matcher instead.
package phrase

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
)

// Built-in entity types understood without an EntityType definition.
const (
	EntityAny    = "sys.any"
	EntityNumber = "sys.number"
)

const (
	defaultMaxCandidates = 3
	containsScore        = 0.9
)

// Matcher implements ports.Matcher.
type Matcher struct {
	maxCandidates int
	logger        *slog.Logger
}

// Option configures the Matcher.
type Option func(*Matcher)

// WithMaxCandidates caps the number of intent candidates returned.
func WithMaxCandidates(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.maxCandidates = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Matcher) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New creates a Matcher.
func New(opts ...Option) *Matcher {
	m := &Matcher{maxCandidates: defaultMaxCandidates, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Match scores req against the agent's intents. When a form slot is expected and the
// input resolves to a value of its entity type, a PARAMETER_FILLING candidate is
// returned as well. Candidates are ordered by confidence.
func (m *Matcher) Match(ctx context.Context, agent *domain.Agent, req domain.MatchRequest) ([]domain.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw := req.Text
	if raw == "" {
		raw = req.DTMF
	}
	text := normalize(raw)
	if text == "" {
		return nil, nil
	}

	var out []domain.Match
	for _, in := range agent.Intents {
		score := bestScore(text, in.TrainingPhrases)
		if score <= 0 {
			continue
		}
		out = append(out, domain.Match{
			Type:       domain.MatchIntent,
			Intent:     in.ID,
			Confidence: score,
			Parameters: m.intentParameters(agent, in, text),
		})
	}
	// Stable so that equal scores keep definition order.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if len(out) > m.maxCandidates {
		out = out[:m.maxCandidates]
	}

	if req.ExpectedParameter != "" {
		if v, ok := resolveEntity(agent, req.ExpectedEntityType, raw, text, req.DTMF != "" && req.Text == ""); ok {
			fill := domain.Match{
				Type:       domain.MatchParameterFilling,
				Confidence: 1,
				Parameters: map[string]any{req.ExpectedParameter: v},
			}
			at := 0
			if len(out) > 0 && out[0].Confidence >= 1 {
				// An exact training phrase beats slot filling.
				at = 1
			}
			out = slices.Insert(out, at, fill)
		}
	}

	m.logger.Debug("Phrase match", "session_id", req.SessionID, "text", raw, "candidates", len(out))
	return out, nil
}

func (m *Matcher) intentParameters(agent *domain.Agent, in domain.Intent, text string) map[string]any {
	var params map[string]any
	for _, p := range in.Parameters {
		if p.EntityType == EntityAny {
			continue
		}
		values := findEntities(agent, p.EntityType, text)
		if len(values) == 0 {
			continue
		}
		if params == nil {
			params = make(map[string]any)
		}
		if p.IsList {
			list := make([]any, len(values))
			for i, v := range values {
				list[i] = v
			}
			params[p.ID] = list
		} else {
			params[p.ID] = values[0]
		}
	}
	return params
}

// bestScore returns the highest similarity between text and any phrase, in [0, 1].
func bestScore(text string, phrases []string) float64 {
	best := 0.0
	for _, phrase := range phrases {
		p := normalize(phrase)
		if p == "" {
			continue
		}
		var score float64
		switch {
		case p == text:
			score = 1
		case containsWords(text, p):
			score = containsScore
		case fuzzy.Match(p, text) || fuzzy.Match(text, p):
			score = similarity(p, text)
		default:
			score = similarity(p, text) * 0.8
		}
		if score > best {
			best = score
		}
	}
	return best
}

func similarity(a, b string) float64 {
	longest := max(len(a), len(b))
	if longest == 0 {
		return 0
	}
	s := 1 - float64(fuzzy.LevenshteinDistance(a, b))/float64(longest)
	if s < 0 {
		return 0
	}
	return s
}

// containsWords reports whether needle occurs in haystack on word boundaries.
func containsWords(haystack, needle string) bool {
	return strings.Contains(" "+haystack+" ", " "+needle+" ")
}

// resolveEntity resolves text to a value of the entity type.
func resolveEntity(agent *domain.Agent, entityType, raw, text string, dtmf bool) (any, bool) {
	switch strings.TrimPrefix(entityType, "@") {
	case EntityAny, "":
		return strings.TrimSpace(raw), true
	case EntityNumber:
		for _, word := range strings.Fields(raw) {
			if n, err := strconv.ParseFloat(strings.Trim(word, ",.!?;:"), 64); err == nil {
				return n, true
			}
		}
		return nil, false
	}
	if dtmf {
		return strings.TrimSpace(raw), true
	}
	values := findEntities(agent, entityType, text)
	if len(values) == 0 {
		return nil, false
	}
	return values[0], true
}

// findEntities returns canonical values of the entity type mentioned in text, in
// order of first mention. Longer synonyms are preferred over their substrings.
func findEntities(agent *domain.Agent, entityType, text string) []string {
	et, ok := agent.EntityType(strings.TrimPrefix(entityType, "@"))
	if !ok {
		return nil
	}
	type hit struct {
		pos   int
		value string
	}
	var hits []hit
	seen := make(map[string]bool)
	padded := " " + text + " "
	for _, e := range et.Entities {
		synonyms := append([]string{e.Value}, e.Synonyms...)
		sort.SliceStable(synonyms, func(i, j int) bool { return len(synonyms[i]) > len(synonyms[j]) })
		for _, syn := range synonyms {
			s := normalize(syn)
			if s == "" {
				continue
			}
			if idx := strings.Index(padded, " "+s+" "); idx >= 0 {
				if !seen[e.Value] {
					seen[e.Value] = true
					hits = append(hits, hit{pos: idx, value: e.Value})
				}
				break
			}
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.value
	}
	return out
}

// normalize lowercases, strips punctuation and collapses whitespace.
func normalize(s string) string {
	var sb strings.Builder
	space := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'':
			sb.WriteRune(r)
			space = false
		case !space:
			sb.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(sb.String())
}
