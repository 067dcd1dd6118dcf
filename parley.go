package parley

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/adapters/phrase"
	"github.com/aretw0/parley/pkg/adapters/webhook"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/session"
)

// Engine is the high-level entry point of the library. It owns the active agent
// snapshot and serializes turns per session.
type Engine struct {
	loader   ports.AgentLoader
	agent    atomic.Pointer[domain.Agent]
	runtime  *runtime.Engine
	sessions *session.Manager

	store       ports.StateStore
	locker      ports.DistributedLocker
	matcher     ports.Matcher
	webhooks    ports.WebhookInvoker
	evaluator   runtime.ConditionEvaluator
	hooks       domain.LifecycleHooks
	runtimeOpts []runtime.EngineOption
	logger      *slog.Logger
	newID       func() string
}

var _ ports.TurnEngine = (*Engine)(nil)

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithStore sets the session store (default: in-memory).
func WithStore(store ports.StateStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithLocker enables distributed per-session locking for multi-replica deployments.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = locker
	}
}

// WithMatcher sets the matcher (default: phrase.New()).
func WithMatcher(m ports.Matcher) Option {
	return func(e *Engine) {
		e.matcher = m
	}
}

// WithWebhookInvoker sets the webhook invoker (default: HTTP).
func WithWebhookInvoker(inv ports.WebhookInvoker) Option {
	return func(e *Engine) {
		e.webhooks = inv
	}
}

// WithConditionEvaluator replaces the built-in condition dialect.
func WithConditionEvaluator(eval runtime.ConditionEvaluator) Option {
	return func(e *Engine) {
		e.evaluator = eval
	}
}

// WithLifecycleHooks registers observability hooks. It can be used more than once;
// hooks run in registration order.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithWebhookTimeout bounds webhook calls that do not set their own timeout.
func WithWebhookTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithWebhookTimeout(d))
	}
}

// WithMatcherTimeout bounds matcher calls.
func WithMatcherTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithMatcherTimeout(d))
	}
}

// WithMaxWebhookCalls caps webhook calls per turn.
func WithMaxWebhookCalls(n int) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithMaxWebhookCalls(n))
	}
}

// WithFallbackMessage sets the message returned when a turn fails fatally.
func WithFallbackMessage(text string) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithFallbackMessage(text))
	}
}

// WithSessionIDGenerator overrides the generator used for turns without a session id.
func WithSessionIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		e.newID = fn
	}
}

// New loads the agent and initializes the engine.
func New(loader ports.AgentLoader, opts ...Option) (*Engine, error) {
	if loader == nil {
		return nil, fmt.Errorf("an agent loader is required")
	}
	eng := &Engine{loader: loader, newID: uuid.NewString}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.store == nil {
		eng.store = memory.NewStore()
	}
	if eng.matcher == nil {
		eng.matcher = phrase.New(phrase.WithLogger(eng.logger))
	}
	if eng.webhooks == nil {
		eng.webhooks = webhook.NewHTTPInvoker(webhook.WithLogger(eng.logger))
	}

	runtimeOpts := []runtime.EngineOption{
		runtime.WithLifecycleHooks(eng.hooks),
		runtime.WithLogger(eng.logger),
	}
	runtimeOpts = append(runtimeOpts, eng.runtimeOpts...)
	eng.runtime = runtime.NewEngine(eng.evaluator, eng.matcher, eng.webhooks, runtimeOpts...)

	sessionOpts := []session.Option{session.WithLogger(eng.logger)}
	if eng.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(eng.locker))
	}
	eng.sessions = session.NewManager(eng.store, sessionOpts...)

	if err := eng.Reload(context.Background()); err != nil {
		return nil, err
	}
	return eng, nil
}

// Agent returns the active agent snapshot.
func (e *Engine) Agent() (*domain.Agent, error) {
	agent := e.agent.Load()
	if agent == nil {
		return nil, domain.ErrAgentNotLoaded
	}
	return agent, nil
}

// Inspect returns the active agent definition for visualization or introspection tools.
func (e *Engine) Inspect() (*domain.Agent, error) {
	return e.Agent()
}

// Reload loads the agent again and swaps it in atomically. Turns already running keep
// the snapshot they started with. On failure the previous agent stays active.
func (e *Engine) Reload(ctx context.Context) error {
	agent, err := e.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load agent: %w", err)
	}
	if !agent.Prepared() {
		if err := agent.Prepare(); err != nil {
			return err
		}
	}
	e.agent.Store(agent)
	e.logger.Info("Agent loaded", "agent", agent.ID, "flows", len(agent.Flows), "intents", len(agent.Intents))
	return nil
}

// Watch reloads the agent whenever the loader reports a change. The returned channel
// carries the id of each agent swapped in and closes when ctx is done.
// Returns an error if the loader does not support watching.
func (e *Engine) Watch(ctx context.Context) (<-chan string, error) {
	w, ok := e.loader.(ports.Watchable)
	if !ok {
		return nil, fmt.Errorf("current loader does not support watching")
	}
	changes, err := w.Watch(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan string, 1)
	go func() {
		defer close(out)
		for range changes {
			if err := e.Reload(ctx); err != nil {
				e.logger.Error("Reload failed, keeping previous agent", "err", err)
				continue
			}
			agent, _ := e.Agent()
			select {
			case out <- agent.ID:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// ProcessTurn matches the input and advances the session by one turn. An empty
// SessionID starts an anonymous session with a generated id.
//
// A fatal turn error returns both the fallback result and the error; the stored
// session is left untouched.
func (e *Engine) ProcessTurn(ctx context.Context, req domain.TurnRequest) (*domain.TurnResult, error) {
	return e.turn(ctx, req, nil)
}

// FulfillMatch advances the session using a match previously returned by MatchOnly.
func (e *Engine) FulfillMatch(ctx context.Context, req domain.TurnRequest, match domain.Match) (*domain.TurnResult, error) {
	return e.turn(ctx, req, &match)
}

func (e *Engine) turn(ctx context.Context, req domain.TurnRequest, match *domain.Match) (*domain.TurnResult, error) {
	agent, err := e.Agent()
	if err != nil {
		return nil, err
	}
	if req.SessionID == "" {
		req.SessionID = e.newID()
	}

	var result *domain.TurnResult
	err = e.sessions.Update(ctx, req.SessionID, func(ctx context.Context, current *domain.State) (*domain.State, error) {
		next, res, err := e.runtime.Turn(ctx, agent, current, req, match)
		result = res
		return next, err
	})
	if err != nil && result == nil {
		return nil, err
	}
	return result, err
}

// MatchOnly returns candidate matches for the input without mutating the session.
// A matcher failure is reported together with the no-match candidate it produced.
func (e *Engine) MatchOnly(ctx context.Context, req domain.TurnRequest) ([]domain.Match, error) {
	agent, err := e.Agent()
	if err != nil {
		return nil, err
	}
	var current *domain.State
	if req.SessionID != "" {
		current, err = e.sessions.Load(ctx, req.SessionID)
		if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			return nil, err
		}
	}
	return e.runtime.MatchTurn(ctx, agent, current, req)
}

// Session returns the stored state of a session.
func (e *Engine) Session(ctx context.Context, sessionID string) (*domain.State, error) {
	return e.sessions.Load(ctx, sessionID)
}

// Sessions lists stored session ids.
func (e *Engine) Sessions(ctx context.Context) ([]string, error) {
	return e.sessions.List(ctx)
}

// ResetSession discards a session; the next turn starts fresh.
func (e *Engine) ResetSession(ctx context.Context, sessionID string) error {
	return e.sessions.Delete(ctx, sessionID)
}

// Close releases the session store if it holds resources.
func (e *Engine) Close() error {
	if c, ok := e.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
