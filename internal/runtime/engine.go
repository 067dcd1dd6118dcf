package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/parley/internal/condition"
	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

const (
	defaultWebhookTimeout  = 5 * time.Second
	defaultMatcherTimeout  = 5 * time.Second
	defaultMaxWebhookCalls = 8
	defaultMaxTransitions  = 16
	maxCaseDepth           = 32
)

// DefaultFallbackMessage is emitted when a turn fails fatally.
const DefaultFallbackMessage = "Sorry, something went wrong. Please try again."

// ConditionEvaluator decides whether a route or case condition holds.
type ConditionEvaluator interface {
	Evaluate(expression string, scope condition.Scope) (bool, error)
}

// Engine is the turn-resolution state machine. It holds no session state; every
// call works on a clone of the state it is given. Safe for concurrent use.
type Engine struct {
	evaluator ConditionEvaluator
	matcher   ports.Matcher
	webhooks  ports.WebhookInvoker

	hooks  domain.LifecycleHooks
	logger *slog.Logger

	webhookTimeout  time.Duration
	matcherTimeout  time.Duration
	maxWebhookCalls int
	maxTransitions  int
	fallback        []domain.ResponseMessage
	now             func() time.Time
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithWebhookTimeout bounds each webhook call. Per-webhook timeouts take precedence.
func WithWebhookTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.webhookTimeout = d
		}
	}
}

// WithMatcherTimeout bounds each matcher call.
func WithMatcherTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.matcherTimeout = d
		}
	}
}

// WithMaxWebhookCalls caps webhook invocations per turn.
func WithMaxWebhookCalls(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxWebhookCalls = n
		}
	}
}

// WithMaxTransitions caps chained page transitions per turn.
func WithMaxTransitions(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxTransitions = n
		}
	}
}

// WithFallbackMessage sets the text returned when a turn fails fatally.
func WithFallbackMessage(text string) EngineOption {
	return func(e *Engine) {
		if text != "" {
			e.fallback = []domain.ResponseMessage{domain.TextResponse(text)}
		}
	}
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates a new engine. A nil evaluator uses the built-in condition dialect;
// a nil matcher turns all free text into no-matches; a nil invoker fails every webhook call.
func NewEngine(evaluator ConditionEvaluator, matcher ports.Matcher, webhooks ports.WebhookInvoker, opts ...EngineOption) *Engine {
	e := &Engine{
		evaluator:       evaluator,
		matcher:         matcher,
		webhooks:        webhooks,
		logger:          logging.NewNop(),
		webhookTimeout:  defaultWebhookTimeout,
		matcherTimeout:  defaultMatcherTimeout,
		maxWebhookCalls: defaultMaxWebhookCalls,
		maxTransitions:  defaultMaxTransitions,
		fallback:        []domain.ResponseMessage{domain.TextResponse(DefaultFallbackMessage)},
		now:             time.Now,
	}
	if e.evaluator == nil {
		e.evaluator = condition.New()
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start creates a fresh session positioned on the start page of the agent's start flow.
func (e *Engine) Start(agent *domain.Agent, sessionID string) *domain.State {
	flowID := agent.StartFlowID()
	page, _ := agent.StartPage(flowID)
	state := domain.NewState(sessionID, flowID, page.ID)
	applyDefaults(page.Form, state.Parameters)
	state.UpdatedAt = e.now()
	return state
}

// Match interprets the input without touching the session. Direct intents, events and
// empty input bypass the matcher. A matcher failure yields a single no-match candidate
// together with an error wrapping domain.ErrMatcherUnavailable.
func (e *Engine) Match(ctx context.Context, agent *domain.Agent, state *domain.State, in domain.TurnInput) ([]domain.Match, error) {
	switch {
	case in.Event != "":
		return []domain.Match{{Type: domain.MatchEvent, Event: in.Event}}, nil
	case in.Intent != "":
		return []domain.Match{{Type: domain.MatchDirectIntent, Intent: in.Intent, Confidence: 1}}, nil
	case in.IsEmpty():
		return []domain.Match{{Type: domain.MatchNoInput}}, nil
	}

	text := in.Text
	if text == "" {
		text = in.DTMF
	}
	noMatch := []domain.Match{{Type: domain.MatchNoMatch, ResolvedInput: text}}
	if e.matcher == nil {
		return noMatch, nil
	}

	req := domain.MatchRequest{
		SessionID:  state.SessionID,
		Text:       in.Text,
		DTMF:       in.DTMF,
		Language:   language(agent, in),
		Parameters: domain.CloneParams(state.Parameters),
	}
	if page, ok := agent.Page(state.Flow, state.Page); ok {
		if p := nextRequired(page.Form, state.Parameters); p != nil {
			req.ExpectedParameter = p.Name
			req.ExpectedEntityType = p.EntityType
		}
	}

	mctx, cancel := context.WithTimeout(ctx, e.matcherTimeout)
	defer cancel()
	candidates, err := e.matcher.Match(mctx, agent, req)
	if err != nil {
		return noMatch, fmt.Errorf("%w: %v", domain.ErrMatcherUnavailable, err)
	}

	kept := candidates[:0:0]
	for _, m := range candidates {
		if m.Type == domain.MatchIntent && m.Confidence < agent.ClassificationThreshold {
			continue
		}
		if m.ResolvedInput == "" {
			m.ResolvedInput = text
		}
		kept = append(kept, m)
	}
	if len(kept) == 0 {
		return noMatch, nil
	}
	return kept, nil
}

// Turn advances the session by one turn. When match is nil the input is matched first.
//
// On success it returns the new state and the result. On a fatal error it returns a nil
// state, a result carrying the fallback message, and the error; the caller must not
// persist anything. A cancelled context returns the context error and no result.
func (e *Engine) Turn(ctx context.Context, agent *domain.Agent, state *domain.State, req domain.TurnRequest, match *domain.Match) (*domain.State, *domain.TurnResult, error) {
	started := e.now()

	st, err := e.position(agent, state, req)
	if err != nil {
		return nil, nil, err
	}
	original := st.Clone()

	t := &turn{
		engine: e,
		ctx:    ctx,
		agent:  agent,
		state:  st,
		input:  req.Input,
		failed: make(map[string]bool),
	}

	if match != nil {
		t.match = match.Clone()
	} else {
		candidates, err := e.Match(ctx, agent, st, req.Input)
		if err != nil {
			t.diag.MatcherError = err.Error()
			e.logger.Warn("Matcher failed, treating input as no-match", "session_id", st.SessionID, "err", err)
		}
		t.match = candidates[0]
	}

	runErr := t.run()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	result := &domain.TurnResult{
		SessionID: st.SessionID,
		Match:     t.match,
	}

	if runErr != nil {
		e.logger.Error("Turn aborted", "session_id", st.SessionID, "flow", original.Flow, "page", original.Page, "err", runErr)
		t.diag.FatalError = runErr.Error()
		result.Messages = append([]domain.ResponseMessage(nil), e.fallback...)
		result.Flow = original.Flow
		result.Page = original.Page
		result.Parameters = original.Parameters
		result.Diagnostics = t.diag
		e.emitTurnComplete(ctx, st.SessionID, t.match, started, true, false)
		return nil, result, runErr
	}

	st.TurnCount++
	st.UpdatedAt = e.now()
	if t.closed {
		st.Closed = true
	}
	t.diag.ParameterDelta = redact(agent, domain.DiffParams(original.Parameters, st.Parameters))

	result.Messages = t.messages
	result.Flow = st.Flow
	result.Page = st.Page
	result.Parameters = domain.CloneParams(st.Parameters)
	result.Closed = st.Closed
	result.Diagnostics = t.diag

	e.emitTurnComplete(ctx, st.SessionID, t.match, started, false, st.Closed)
	return st, result, nil
}

// MatchTurn matches the request's input against a copy of state positioned the way
// Turn would position it. Nothing is mutated.
func (e *Engine) MatchTurn(ctx context.Context, agent *domain.Agent, state *domain.State, req domain.TurnRequest) ([]domain.Match, error) {
	st, err := e.position(agent, state, req)
	if err != nil {
		return nil, err
	}
	return e.Match(ctx, agent, st, req.Input)
}

// position clones state, restarting closed or stale sessions, and applies the
// request's page and parameter overrides.
func (e *Engine) position(agent *domain.Agent, state *domain.State, req domain.TurnRequest) (*domain.State, error) {
	st := state.Clone()
	if st == nil || st.Closed {
		st = e.Start(agent, req.SessionID)
	}
	if st.SessionID == "" {
		st.SessionID = req.SessionID
	}
	if _, ok := agent.Page(st.Flow, st.Page); !ok {
		e.logger.Warn("Session points at an unknown page, restarting",
			"session_id", st.SessionID, "flow", st.Flow, "page", st.Page)
		st = e.Start(agent, st.SessionID)
	}
	if err := applyOverrides(agent, st, req); err != nil {
		return nil, err
	}
	return st, nil
}

// RedactedValue replaces redacted parameter values in diagnostics.
const RedactedValue = "***"

// redact masks values of redacted form parameters. Cleared parameters stay nil.
func redact(agent *domain.Agent, delta map[string]any) map[string]any {
	for k, v := range delta {
		if v != nil && agent.IsRedacted(k) {
			delta[k] = RedactedValue
		}
	}
	return delta
}

func language(agent *domain.Agent, in domain.TurnInput) string {
	if in.Language != "" {
		return in.Language
	}
	return agent.DefaultLanguage
}

// applyOverrides merges caller supplied parameters and repositions the session.
func applyOverrides(agent *domain.Agent, st *domain.State, req domain.TurnRequest) error {
	for k, v := range req.Parameters {
		if v == nil {
			delete(st.Parameters, k)
			continue
		}
		st.Parameters[k] = v
	}
	if req.CurrentPage == "" || req.CurrentPage == st.Page {
		return nil
	}
	if req.CurrentPage == domain.PageStart {
		st.Page = domain.PageStart
		if start, ok := agent.StartPage(st.Flow); ok {
			st.Page = start.ID
		}
		st.Counters = make(map[string]domain.ParamCounters)
		return nil
	}
	flowID, ok := agent.FlowOf(req.CurrentPage)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrPageNotFound, req.CurrentPage)
	}
	st.Flow = flowID
	st.Page = req.CurrentPage
	st.Counters = make(map[string]domain.ParamCounters)
	return nil
}
