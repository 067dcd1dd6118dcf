// Package file loads agent definitions from YAML or JSON documents and persists
// sessions as JSON files.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
)

const defaultDebounce = 100 * time.Millisecond

// Loader implements ports.AgentLoader and ports.Watchable for a single definition file.
type Loader struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
}

// LoaderOption configures the Loader.
type LoaderOption func(*Loader)

// WithDebounce coalesces bursts of file events (editors write several times per save).
func WithDebounce(d time.Duration) LoaderOption {
	return func(l *Loader) {
		if d > 0 {
			l.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader creates a loader for the agent definition at path.
func NewLoader(path string, opts ...LoaderOption) *Loader {
	l := &Loader{path: path, debounce: defaultDebounce, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the definition file path.
func (l *Loader) Path() string { return l.path }

// Load reads, decodes and prepares the agent.
func (l *Loader) Load(ctx context.Context) (*domain.Agent, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent definition: %w", err)
	}
	agent, err := Decode(data, filepath.Ext(l.path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", l.path, err)
	}
	if err := agent.Prepare(); err != nil {
		return nil, err
	}
	l.logger.Debug("Agent loaded", "path", l.path, "agent", agent.ID, "flows", len(agent.Flows))
	return agent, nil
}

// Decode parses an agent document. ".json" selects JSON; anything else is YAML.
// Unknown fields are rejected so typos in definitions surface at load time.
func Decode(data []byte, ext string) (*domain.Agent, error) {
	var agent domain.Agent
	if strings.EqualFold(ext, ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&agent); err != nil {
			return nil, fmt.Errorf("invalid JSON agent: %w", err)
		}
		return &agent, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&agent); err != nil {
		return nil, fmt.Errorf("invalid YAML agent: %w", err)
	}
	return &agent, nil
}

// Watch reports changes to the definition file. The parent directory is watched so
// that atomic saves (write to temp, rename) are seen. The channel closes when ctx is done.
func (l *Loader) Watch(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	abs, err := filepath.Abs(l.path)
	if err != nil {
		_ = watcher.Close()
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer watcher.Close()

		var pending <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				pending = time.After(l.debounce)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Warn("Agent watcher error", "path", l.path, "err", err)
			case <-pending:
				pending = nil
				l.logger.Info("Agent definition changed", "path", l.path)
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out, nil
}
