package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/config"
	"github.com/aretw0/parley/pkg/adapters/file"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/adapters/phrase"
	"github.com/aretw0/parley/pkg/adapters/process"
	"github.com/aretw0/parley/pkg/adapters/redis"
	"github.com/aretw0/parley/pkg/adapters/sqlite"
	"github.com/aretw0/parley/pkg/adapters/webhook"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/observability"
	"github.com/aretw0/parley/pkg/persistence/middleware"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/runner"
)

// DefaultProcessesFile is picked up next to the agent file when agent.processes is unset.
const DefaultProcessesFile = "processes.yaml"

// Stack is an engine together with the infrastructure it was built on.
type Stack struct {
	Engine   *parley.Engine
	Metrics  *observability.Metrics // nil when metrics are disabled
	Registry *webhook.Registry

	store   ports.StateStore // raw backend, before middleware
	closers []io.Closer
	cfg     *config.Config
}

// StackOption tweaks Build.
type StackOption func(*stackBuild)

type stackBuild struct {
	loader    ports.AgentLoader
	registry  *webhook.Registry
	extraOpts []parley.Option
}

// WithLoader replaces the file loader (tests and embedded agents).
func WithLoader(l ports.AgentLoader) StackOption {
	return func(b *stackBuild) { b.loader = l }
}

// WithRegistry supplies in-process webhook handlers.
func WithRegistry(r *webhook.Registry) StackOption {
	return func(b *stackBuild) { b.registry = r }
}

// WithEngineOptions appends raw engine options after the configured ones.
func WithEngineOptions(opts ...parley.Option) StackOption {
	return func(b *stackBuild) { b.extraOpts = append(b.extraOpts, opts...) }
}

// Build wires the engine from cfg: agent loader, session store and middleware,
// webhook transports, matcher, metrics and audit logging.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...StackOption) (*Stack, error) {
	b := &stackBuild{}
	for _, opt := range opts {
		opt(b)
	}
	if b.loader == nil {
		b.loader = file.NewLoader(cfg.Agent.Path, file.WithLogger(logger))
	}
	if b.registry == nil {
		b.registry = webhook.NewRegistry()
	}

	s := &Stack{Registry: b.registry, cfg: cfg}

	raw, locker, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	s.store = raw
	if c, ok := raw.(io.Closer); ok {
		s.closers = append(s.closers, c)
	}

	var mws []middleware.Middleware
	if cfg.Store.EncryptionKey != "" {
		key, err := middleware.ParseKey(cfg.Store.EncryptionKey)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("store.encryption_key: %w", err)
		}
		enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("store.encryption_key: %w", err)
		}
		mws = append(mws, enc)
	}
	store := middleware.Chain(raw, mws...)

	procs, err := loadProcesses(cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	invoker := webhook.NewMux(b.registry, webhook.NewHTTPInvoker(webhook.WithLogger(logger)))
	if len(procs) > 0 {
		invoker = invoker.WithExec(process.NewInvoker(
			process.WithRegistry(procs),
			process.WithBaseDir(filepath.Dir(cfg.Agent.Path)),
			process.WithLogger(logger),
		))
		logger.Debug("Process webhooks registered", "count", len(procs))
	}

	hooks := []domain.LifecycleHooks{observability.LoggingHooks(logger)}
	if cfg.Metrics.Enabled {
		m, err := observability.NewMetrics(nil)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Metrics = m
		hooks = append(hooks, m.Hooks())
	}

	if cfg.Engine.MaxInputSize > 0 {
		runner.SetMaxInputSize(cfg.Engine.MaxInputSize)
	}

	engineOpts := []parley.Option{
		parley.WithLogger(logger),
		parley.WithStore(store),
		parley.WithMatcher(phrase.New(phrase.WithLogger(logger))),
		parley.WithWebhookInvoker(invoker),
		parley.WithLifecycleHooks(observability.Combine(hooks...)),
		parley.WithWebhookTimeout(cfg.Engine.WebhookTimeout),
		parley.WithMatcherTimeout(cfg.Engine.MatcherTimeout),
		parley.WithMaxWebhookCalls(cfg.Engine.MaxWebhookCalls),
		parley.WithFallbackMessage(cfg.Engine.FallbackMessage),
	}
	if locker != nil {
		engineOpts = append(engineOpts, parley.WithLocker(locker))
	}
	engineOpts = append(engineOpts, b.extraOpts...)

	engine, err := parley.New(b.loader, engineOpts...)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}
	s.Engine = engine
	return s, nil
}

// AuditStore returns a read view of the sessions with sensitive values masked:
// the configured PII patterns plus every redacted form parameter of the agent.
func (s *Stack) AuditStore() (ports.StateStore, error) {
	patterns := append([]string(nil), s.cfg.Store.PIIPatterns...)
	if agent, err := s.Engine.Agent(); err == nil {
		patterns = append(patterns, middleware.RedactedPatterns(agent)...)
	}
	var mws []middleware.Middleware
	if len(patterns) > 0 {
		pii, err := middleware.NewPIIMiddleware(patterns)
		if err != nil {
			return nil, err
		}
		mws = append(mws, pii)
	}
	// Masking sits outside decryption so it sees the plain parameters.
	if s.cfg.Store.EncryptionKey != "" {
		key, err := middleware.ParseKey(s.cfg.Store.EncryptionKey)
		if err != nil {
			return nil, err
		}
		enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key})
		if err != nil {
			return nil, err
		}
		mws = append(mws, enc)
	}
	return middleware.Chain(s.store, mws...), nil
}

// Close releases the engine and the store connections. Safe to call more than once.
func (s *Stack) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ports.StateStore, ports.DistributedLocker, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory, "":
		return memory.NewStore(), nil, nil
	case config.BackendFile:
		return file.NewStore(cfg.Store.File.Path), nil, nil
	case config.BackendSQLite:
		store, err := sqlite.Open(cfg.Store.SQLite.Path, sqlite.WithLogger(logger))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return store, nil, nil
	case config.BackendRedis:
		rc := cfg.Store.Redis
		store := redis.New(rc.Addr, rc.Password, rc.DB, redis.WithTTL(rc.TTL))
		if err := store.Client().Ping(ctx).Err(); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", rc.Addr, err)
		}
		if !rc.Lock {
			return store, nil, nil
		}
		prefix := strings.TrimSuffix(redis.DefaultPrefix, "session:")
		return store, redis.NewLocker(store.Client(), prefix), nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

// loadProcesses reads the exec: allow-list. Without an explicit path the file next to
// the agent is used when present.
func loadProcesses(cfg *config.Config) (map[string]process.ProcessConfig, error) {
	path := cfg.Agent.Processes
	if path == "" {
		candidate := filepath.Join(filepath.Dir(cfg.Agent.Path), DefaultProcessesFile)
		if _, err := os.Stat(candidate); err != nil {
			return nil, nil
		}
		path = candidate
	}
	procs, err := process.LoadProcesses(path)
	if err != nil {
		return nil, fmt.Errorf("agent.processes: %w", err)
	}
	return procs, nil
}
