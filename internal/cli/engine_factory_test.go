package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/parley/internal/config"
	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
)

const clinicYAML = `
id: clinic
intents:
  - id: book
    training_phrases: ["book an appointment", "i need a doctor"]
flows:
  - id: main
    start_page: lobby
    pages:
      - id: lobby
        transition_routes:
          - intent: book
            target: {page: booking}
      - id: booking
        form:
          parameters:
            - name: ssn
              entity_type: sys.any
              required: true
              redact: true
              fill_behavior:
                initial_prompt_fulfillment:
                  messages:
                    - text: {text: ["Your social security number?"]}
`

func writeAgent(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(clinicYAML), 0o644))
	return path
}

func testConfig(t *testing.T, overrides map[string]any) *config.Config {
	t.Helper()
	if overrides == nil {
		overrides = map[string]any{}
	}
	if _, ok := overrides["agent.path"]; !ok {
		overrides["agent.path"] = writeAgent(t)
	}
	cfg, err := config.Load(config.Options{
		Dirs:      []string{t.TempDir()},
		EnvFile:   filepath.Join(t.TempDir(), "missing.env"),
		Overrides: overrides,
	})
	require.NoError(t, err)
	return cfg
}

func turn(t *testing.T, s *Stack, sessionID, text string) *domain.TurnResult {
	t.Helper()
	res, err := s.Engine.ProcessTurn(context.Background(), domain.TurnRequest{
		SessionID: sessionID,
		Input:     domain.TurnInput{Text: text},
	})
	require.NoError(t, err)
	return res
}

func TestBuild_Backends(t *testing.T) {
	tests := []struct {
		name      string
		overrides func(dir string) map[string]any
	}{
		{"memory", func(string) map[string]any { return map[string]any{"store.backend": "memory"} }},
		{"file", func(dir string) map[string]any {
			return map[string]any{"store.backend": "file", "store.file.path": filepath.Join(dir, "sessions")}
		}},
		{"sqlite", func(dir string) map[string]any {
			return map[string]any{"store.backend": "sqlite", "store.sqlite.path": filepath.Join(dir, "parley.db")}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, tt.overrides(t.TempDir()))
			stack, err := Build(context.Background(), cfg, logging.NewNop())
			require.NoError(t, err)
			defer stack.Close()

			res := turn(t, stack, "s1", "book an appointment")
			assert.Equal(t, "booking", res.Page)

			state, err := stack.Engine.Session(context.Background(), "s1")
			require.NoError(t, err)
			assert.Equal(t, "booking", state.Page)
		})
	}
}

func TestBuild_RedisWithLock(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, map[string]any{
		"store.backend":    "redis",
		"store.redis.addr": mr.Addr(),
		"store.redis.lock": true,
	})
	stack, err := Build(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	defer stack.Close()

	res := turn(t, stack, "s1", "book an appointment")
	assert.Equal(t, "booking", res.Page)
	assert.True(t, mr.Exists("parley:session:s1"))
	assert.False(t, mr.Exists("parley:lock:s1"), "the turn lock is released")
}

func TestBuild_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	cfg := testConfig(t, map[string]any{"store.backend": "redis", "store.redis.addr": addr})
	_, err := Build(context.Background(), cfg, logging.NewNop())
	assert.ErrorContains(t, err, "failed to connect to redis")
}

func TestBuild_EncryptionAndAudit(t *testing.T) {
	key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))
	cfg := testConfig(t, map[string]any{
		"store.backend":        "file",
		"store.file.path":      filepath.Join(t.TempDir(), "sessions"),
		"store.encryption_key": key,
	})
	stack, err := Build(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	defer stack.Close()

	turn(t, stack, "s1", "book an appointment")
	turn(t, stack, "s1", "123-45-6789")

	state, err := stack.Engine.Session(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "123-45-6789", state.Parameters["ssn"], "the engine reads its own sessions back")

	raw, err := os.ReadFile(filepath.Join(cfg.Store.File.Path, "s1.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "123-45-6789")

	audit, err := stack.AuditStore()
	require.NoError(t, err)
	masked, err := audit.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.NotEqual(t, "123-45-6789", masked.Parameters["ssn"])
}

func TestBuild_InvalidKey(t *testing.T) {
	cfg := testConfig(t, map[string]any{"store.encryption_key": "not-a-key"})
	_, err := Build(context.Background(), cfg, logging.NewNop())
	assert.ErrorContains(t, err, "store.encryption_key")
}

func TestBuild_MissingAgent(t *testing.T) {
	cfg := testConfig(t, map[string]any{"agent.path": filepath.Join(t.TempDir(), "nope.yaml")})
	_, err := Build(context.Background(), cfg, logging.NewNop())
	assert.Error(t, err)
}

func TestBuild_Metrics(t *testing.T) {
	cfg := testConfig(t, nil)
	stack, err := Build(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	defer stack.Close()
	require.NotNil(t, stack.Metrics)

	turn(t, stack, "s1", "book an appointment")

	ready := make(chan string, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, stack, ServeOptions{Addr: "127.0.0.1:0", Ready: ready}, logging.NewNop())
	}()

	var addr string
	select {
	case addr = <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, body.String(), "parley_turns_total")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("server did not stop")
	}
}

func TestBuild_MetricsDisabled(t *testing.T) {
	cfg := testConfig(t, map[string]any{"metrics.enabled": false})
	stack, err := Build(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	defer stack.Close()
	assert.Nil(t, stack.Metrics)
}

func TestLoadProcesses_NextToAgent(t *testing.T) {
	cfg := testConfig(t, nil)
	procs, err := loadProcesses(cfg)
	require.NoError(t, err)
	assert.Empty(t, procs)

	dir := filepath.Dir(cfg.Agent.Path)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultProcessesFile), []byte(strings.TrimSpace(`
processes:
  lookup:
    command: ./lookup.sh
`)), 0o644))
	procs, err = loadProcesses(cfg)
	require.NoError(t, err)
	assert.Contains(t, procs, "lookup")
}

func TestNewLogger(t *testing.T) {
	cfg := testConfig(t, map[string]any{"log.format": "json", "log.level": "warn"})
	var buf bytes.Buffer
	logger, err := newLogger(&buf, cfg, false)
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	cfg.Log.Level = "loud"
	_, err = newLogger(&buf, cfg, false)
	assert.Error(t, err)
}
