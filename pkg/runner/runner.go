package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

// Runner drives a conversation loop against a TurnEngine using an IOHandler.
// This allows for easy testing and integration with different frontends (CLI, TUI, etc).
type Runner struct {
	// Handler is the strategy for IO. Defaults to a TextHandler on stdin/stdout.
	Handler IOHandler

	// Logger is used for internal debug logging.
	Logger *slog.Logger

	// SessionID is the session every turn is sent to.
	SessionID string

	// NoInputTimeout, when positive, sends a no-input turn after that much silence.
	NoInputTimeout time.Duration

	// Greeting, when not empty, is sent as the first turn.
	Greeting domain.TurnInput

	// KeepAlive keeps reading after the session ends.
	KeepAlive bool

	engine ports.TurnEngine
}

// NewRunner creates a Runner for the engine.
func NewRunner(engine ports.TurnEngine, opts ...Option) *Runner {
	r := &Runner{
		engine: engine,
		Logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.Handler == nil {
		r.Handler = NewTextHandler(nil, nil)
	}
	if r.SessionID == "" {
		r.SessionID = uuid.NewString()
	}
	return r
}

// errStop ends the loop without an error.
var errStop = errors.New("stop")

// Run executes the loop until the user exits, input ends, the session closes
// (unless KeepAlive), or ctx is cancelled. SIGINT and SIGTERM end the loop gracefully.
func (r *Runner) Run(ctx context.Context) error {
	signals := NewSignalManager(ctx)
	defer signals.Stop()
	ctx = signals.Context()

	r.Logger.Debug("Runner started", "session_id", r.SessionID)

	if !r.Greeting.IsEmpty() {
		if err := r.turn(ctx, r.Greeting); err != nil {
			return r.finish(err)
		}
	}

	for {
		line, err := r.read(ctx)
		switch {
		case err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded):
			r.Logger.Debug("No input before timeout", "session_id", r.SessionID)
			line = ""
		case err != nil:
			if errors.Is(err, io.EOF) {
				signals.CheckRace()
			}
			if signals.Interrupted() || errors.Is(err, io.EOF) {
				_ = r.Handler.SystemOutput(context.WithoutCancel(ctx), "Session ended.")
				return nil
			}
			return err
		}

		cmd := ParseInput(line)
		switch cmd.Kind {
		case CommandExit:
			return nil
		case CommandReset:
			if err := r.engine.ResetSession(ctx, r.SessionID); err != nil {
				return r.finish(err)
			}
			if err := r.Handler.SystemOutput(ctx, "Session reset."); err != nil {
				return err
			}
			continue
		}

		if err := r.turn(ctx, cmd.Input); err != nil {
			return r.finish(err)
		}
	}
}

// read waits for one line, bounded by NoInputTimeout when set.
func (r *Runner) read(ctx context.Context) (string, error) {
	if r.NoInputTimeout <= 0 {
		return r.Handler.Input(ctx)
	}
	ictx, cancel := context.WithTimeout(ctx, r.NoInputTimeout)
	defer cancel()
	line, err := r.Handler.Input(ictx)
	if err != nil && ctx.Err() != nil {
		// The parent ended; this is not a timeout.
		return "", ctx.Err()
	}
	return line, err
}

func (r *Runner) turn(ctx context.Context, in domain.TurnInput) error {
	res, err := r.engine.ProcessTurn(ctx, domain.TurnRequest{SessionID: r.SessionID, Input: in})
	if err != nil {
		if res == nil {
			return err
		}
		// Fatal turn: show the fallback, keep the conversation going.
		r.Logger.Warn("Turn failed", "session_id", r.SessionID, "err", err)
		if oerr := r.Handler.Output(ctx, res); oerr != nil {
			return oerr
		}
		return r.Handler.SystemOutput(ctx, fmt.Sprintf("Error: %v", err))
	}

	if err := r.Handler.Output(ctx, res); err != nil {
		return err
	}
	if res.Closed {
		if !r.KeepAlive {
			_ = r.Handler.SystemOutput(ctx, "Conversation ended.")
			return errStop
		}
		r.Logger.Debug("Session closed, next turn starts fresh", "session_id", r.SessionID)
	}
	return nil
}

// finish maps loop termination causes to Run's return value.
func (r *Runner) finish(err error) error {
	switch {
	case errors.Is(err, errStop):
		return nil
	case errors.Is(err, context.Canceled):
		return nil
	}
	return err
}
