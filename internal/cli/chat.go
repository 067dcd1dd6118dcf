package cli

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aretw0/parley/internal/presentation/tui"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/runner"
)

// ChatOptions configures an interactive session.
type ChatOptions struct {
	SessionID string
	// Fresh deletes the stored session before starting.
	Fresh bool
	JSON  bool
	Debug bool
	// KeepAlive keeps reading after the conversation ends.
	KeepAlive bool
	Watch     bool

	In  io.Reader
	Out io.Writer
}

// RunChat runs a conversation on the terminal until the user exits or input ends.
func RunChat(ctx context.Context, stack *Stack, opts ChatOptions, logger *slog.Logger) error {
	cfg := stack.cfg
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.SessionID == "" {
		opts.SessionID = defaultSessionID(cfg.Agent.Path)
	}

	if opts.Fresh {
		if err := stack.Engine.ResetSession(ctx, opts.SessionID); err != nil {
			return fmt.Errorf("failed to reset session %s: %w", opts.SessionID, err)
		}
	}

	var handler runner.IOHandler
	if opts.JSON {
		handler = runner.NewJSONHandler(opts.In, opts.Out)
	} else {
		textOpts := []runner.TextHandlerOption{runner.WithTextHandlerDebug(opts.Debug)}
		if f, ok := opts.Out.(*os.File); ok && tui.IsTerminal(f) {
			tui.PrintBanner(opts.Out)
			render, err := tui.NewRenderer(tui.TerminalWidth(f))
			if err != nil {
				logger.Warn("Markdown rendering disabled", "err", err)
			} else {
				textOpts = append(textOpts, runner.WithTextHandlerRenderer(render))
			}
		}
		handler = runner.NewTextHandler(opts.In, opts.Out, textOpts...)
	}

	if state, err := stack.Engine.Session(ctx, opts.SessionID); err == nil && !state.Closed {
		logger.Info("Session resumed", "session_id", opts.SessionID, "flow", state.Flow, "page", state.Page)
		if !opts.JSON {
			printSystemMessage(opts.Out, "Resuming session '%s' at page '%s'.", opts.SessionID, state.Page)
		}
	}

	runOpts := []runner.Option{
		runner.WithLogger(logger),
		runner.WithInputHandler(handler),
		runner.WithSessionID(opts.SessionID),
		runner.WithNoInputTimeout(cfg.Chat.NoInputTimeout),
		runner.WithKeepAlive(opts.KeepAlive),
	}
	if cfg.Chat.Greeting != "" {
		runOpts = append(runOpts, runner.WithGreeting(domain.TurnInput{Event: cfg.Chat.Greeting}))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if opts.Watch || cfg.Agent.Watch {
		if err := watchAgent(ctx, stack, logger, func(agentID string) {
			_ = handler.SystemOutput(ctx, fmt.Sprintf("Agent %s reloaded.", agentID))
		}); err != nil {
			return err
		}
	}

	return runner.NewRunner(stack.Engine, runOpts...).Run(ctx)
}

// watchAgent reloads the agent on change and reports each swap until ctx ends.
func watchAgent(ctx context.Context, stack *Stack, logger *slog.Logger, notify func(agentID string)) error {
	reloads, err := stack.Engine.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch agent: %w", err)
	}
	logger.Info("Watching agent", "path", stack.cfg.Agent.Path)
	go func() {
		for id := range reloads {
			logger.Info("Agent reloaded", "agent", id)
			if notify != nil {
				notify(id)
			}
		}
	}()
	return nil
}

// defaultSessionID scopes the terminal session to the agent file so two projects
// do not resume each other's conversations.
func defaultSessionID(agentPath string) string {
	abs, err := filepath.Abs(agentPath)
	if err != nil {
		abs = agentPath
	}
	hash := md5.Sum([]byte(abs))
	return fmt.Sprintf("chat-%x", hash[:4])
}

func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}
