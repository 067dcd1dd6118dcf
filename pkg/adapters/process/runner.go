package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strings"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/adapters/webhook"
	"github.com/aretw0/parley/pkg/domain"
)

// Scheme prefixes webhook URLs served by a local process: "exec:<name>".
const Scheme = webhook.ExecScheme

// Invoker implements ports.WebhookInvoker by running local processes.
// It follows a strict registry pattern: only registered names can run.
//
// The process receives the webhook request as JSON on stdin and must print a webhook
// response body on stdout. A non-zero exit is an application error.
type Invoker struct {
	registry map[string]ProcessConfig
	baseDir  string
	logger   *slog.Logger
}

// Option configures the invoker.
type Option func(*Invoker)

// WithRegistry populates the allow-list from a loaded config.
func WithRegistry(procs map[string]ProcessConfig) Option {
	return func(r *Invoker) {
		for name, p := range procs {
			p.Name = name
			r.registry[name] = p
		}
	}
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) Option {
	return func(r *Invoker) {
		r.baseDir = dir
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Invoker) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewInvoker creates a process invoker.
func NewInvoker(opts ...Option) *Invoker {
	r := &Invoker{
		registry: make(map[string]ProcessConfig),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted command to the allow-list.
func (r *Invoker) Register(name, command string, args ...string) {
	r.registry[name] = ProcessConfig{Name: name, Command: command, Args: args}
}

// Names lists the registered processes, sorted.
func (r *Invoker) Names() []string {
	names := make([]string, 0, len(r.registry))
	for name := range r.registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handles reports whether the webhook URL uses the exec: scheme.
func Handles(wh *domain.Webhook) bool {
	return strings.HasPrefix(wh.URL, Scheme)
}

// Invoke implements ports.WebhookInvoker.
func (r *Invoker) Invoke(ctx context.Context, wh *domain.Webhook, req *domain.WebhookRequest) (*domain.WebhookResponse, error) {
	name := strings.TrimPrefix(wh.URL, Scheme)
	proc, ok := r.registry[name]
	if !ok {
		return nil, &domain.WebhookError{Kind: domain.WebhookUnreachable, Webhook: wh.ID,
			Message: fmt.Sprintf("process %q not registered", name)}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode webhook request: %w", err)
	}

	// Request data travels on stdin only; arguments are fixed by the registry.
	cmd := exec.CommandContext(ctx, proc.Command, proc.Args...)
	cmd.Dir = r.baseDir
	cmd.Stdin = bytes.NewReader(body)
	cmd.Env = cmd.Environ()
	for k, v := range proc.Environment {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Env = append(cmd.Env,
		"PARLEY_WEBHOOK="+wh.ID,
		"PARLEY_SESSION_ID="+req.SessionID,
		"PARLEY_TAG="+req.Tag,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("Running webhook process", "webhook", wh.ID, "process", name, "request_id", req.RequestID)
	if err := cmd.Run(); err != nil {
		return nil, classify(ctx, wh.ID, err, stderr.String())
	}
	return webhook.ParseResponse(wh.ID, stdout.Bytes())
}

func classify(ctx context.Context, webhookID string, err error, stderr string) *domain.WebhookError {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &domain.WebhookError{Kind: domain.WebhookTimeout, Webhook: webhookID, Err: err}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &domain.WebhookError{Kind: domain.WebhookApplicationError, Webhook: webhookID,
			Status: exitErr.ExitCode(), Message: strings.TrimSpace(stderr)}
	}
	return &domain.WebhookError{Kind: domain.WebhookUnreachable, Webhook: webhookID, Err: err}
}
