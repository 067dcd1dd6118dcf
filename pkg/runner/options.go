package runner

import (
	"log/slog"
	"time"

	"github.com/aretw0/parley/pkg/domain"
)

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.Logger = logger
		}
	}
}

// WithInputHandler configures a custom IOHandler.
func WithInputHandler(handler IOHandler) Option {
	return func(r *Runner) {
		r.Handler = handler
	}
}

// WithSessionID sets the session the loop talks to. Defaults to a random id.
func WithSessionID(id string) Option {
	return func(r *Runner) {
		r.SessionID = id
	}
}

// WithNoInputTimeout turns silence longer than d into a no-input turn.
func WithNoInputTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.NoInputTimeout = d
	}
}

// WithGreeting runs a first turn with this input before reading from the user,
// typically an event such as WELCOME.
func WithGreeting(in domain.TurnInput) Option {
	return func(r *Runner) {
		r.Greeting = in
	}
}

// WithKeepAlive keeps the loop running after the conversation ends; the next line
// starts a fresh session.
func WithKeepAlive(keep bool) Option {
	return func(r *Runner) {
		r.KeepAlive = keep
	}
}
