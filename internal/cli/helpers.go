package cli

import (
	"io"
	"log/slog"
	"os"

	"github.com/aretw0/parley/internal/config"
	"github.com/aretw0/parley/internal/logging"
)

// NewLogger builds the application logger from cfg. Logs go to stderr so they never
// mix with the conversation or a JSON-RPC stream on stdout.
func NewLogger(cfg *config.Config, debug bool) (*slog.Logger, error) {
	return newLogger(os.Stderr, cfg, debug)
}

func newLogger(w io.Writer, cfg *config.Config, debug bool) (*slog.Logger, error) {
	if debug {
		return logging.NewWithFormat(w, slog.LevelDebug, cfg.Log.Format), nil
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewWithFormat(w, level, cfg.Log.Format), nil
}
