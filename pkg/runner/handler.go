package runner

import (
	"context"

	"github.com/aretw0/parley/pkg/domain"
)

// IOHandler defines the strategy for interacting with the user.
// This allows switching between Text (CLI/TUI) and JSON (Structured) modes.
type IOHandler interface {
	// Output presents the outcome of a turn.
	Output(ctx context.Context, res *domain.TurnResult) error

	// Input reads one line of user input. It returns ctx.Err() when ctx ends first and
	// io.EOF when the source is exhausted.
	Input(ctx context.Context) (string, error)

	// SystemOutput presents a meta-message to the user (e.g. system logs, status updates).
	// This is distinct from content rendering.
	SystemOutput(ctx context.Context, msg string) error
}

// ContentRenderer is a function that transforms the content before outputting it.
// This allows for TUI rendering (markdown to ANSI) without coupling the core package.
type ContentRenderer func(string) (string, error)
