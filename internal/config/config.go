// Package config loads parley settings from a YAML file, the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override: store.redis.addr -> PARLEY_STORE_REDIS_ADDR.
const EnvPrefix = "PARLEY"

// Store backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Config is the full application configuration.
type Config struct {
	Agent   AgentConfig   `mapstructure:"agent"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Store   StoreConfig   `mapstructure:"store"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Chat    ChatConfig    `mapstructure:"chat"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`
}

type AgentConfig struct {
	Path  string `mapstructure:"path"`
	Watch bool   `mapstructure:"watch"`
	// Processes points at the allow-list of exec: webhook commands.
	Processes string `mapstructure:"processes"`
}

type EngineConfig struct {
	WebhookTimeout  time.Duration `mapstructure:"webhook_timeout"`
	MatcherTimeout  time.Duration `mapstructure:"matcher_timeout"`
	MaxWebhookCalls int           `mapstructure:"max_webhook_calls"`
	FallbackMessage string        `mapstructure:"fallback_message"`
	MaxInputSize    int           `mapstructure:"max_input_size"`
}

type StoreConfig struct {
	Backend       string       `mapstructure:"backend"`
	File          FileConfig   `mapstructure:"file"`
	Redis         RedisConfig  `mapstructure:"redis"`
	SQLite        SQLiteConfig `mapstructure:"sqlite"`
	EncryptionKey string       `mapstructure:"encryption_key"`
	PIIPatterns   []string     `mapstructure:"pii_patterns"`
}

type FileConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
	// Lock enables the distributed per-session turn lock.
	Lock bool `mapstructure:"lock"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type ChatConfig struct {
	NoInputTimeout time.Duration `mapstructure:"no_input_timeout"`
	Greeting       string        `mapstructure:"greeting"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("agent.path", "agent.yaml")
	v.SetDefault("agent.watch", false)
	v.SetDefault("agent.processes", "")
	v.SetDefault("engine.webhook_timeout", 5*time.Second)
	v.SetDefault("engine.matcher_timeout", 5*time.Second)
	v.SetDefault("engine.max_webhook_calls", 8)
	v.SetDefault("engine.fallback_message", "")
	v.SetDefault("engine.max_input_size", 0)
	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.file.path", ".parley/sessions")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.ttl", 24*time.Hour)
	v.SetDefault("store.redis.lock", false)
	v.SetDefault("store.sqlite.path", "parley.db")
	v.SetDefault("store.encryption_key", "")
	v.SetDefault("store.pii_patterns", []string{})
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("chat.no_input_timeout", time.Duration(0))
	v.SetDefault("chat.greeting", "")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Options controls where Load looks.
type Options struct {
	// File is an explicit config file. When empty, parley.{yaml,yml,json} is searched in Dirs.
	File string
	// Dirs are searched in order when File is empty. Defaults to the working directory.
	Dirs []string
	// EnvFile is loaded into the process environment first when it exists. Defaults to .env.
	EnvFile string
	// Overrides are applied last (e.g. command-line flags).
	Overrides map[string]any
}

// Load reads the configuration. Precedence: overrides, environment, file, defaults.
func Load(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", opts.File, err)
		}
	} else {
		v.SetConfigName("parley")
		dirs := opts.Dirs
		if len(dirs) == 0 {
			dirs = []string{"."}
		}
		for _, d := range dirs {
			v.AddConfigPath(d)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	for k, val := range opts.Overrides {
		v.Set(k, val)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	// Lists from the environment arrive comma separated.
	if env := os.Getenv(EnvPrefix + "_STORE_PII_PATTERNS"); env != "" {
		cfg.Store.PIIPatterns = splitList(env)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports configuration errors that would only surface later at runtime.
func (c *Config) Validate() error {
	var problems []string
	switch c.Store.Backend {
	case BackendMemory, BackendFile, BackendRedis, BackendSQLite:
	default:
		problems = append(problems, fmt.Sprintf("store.backend %q is not one of memory, file, redis, sqlite", c.Store.Backend))
	}
	if c.Store.Redis.Lock && c.Store.Backend != BackendRedis {
		problems = append(problems, "store.redis.lock requires store.backend redis")
	}
	if c.Engine.WebhookTimeout < 0 || c.Engine.MatcherTimeout < 0 || c.Chat.NoInputTimeout < 0 {
		problems = append(problems, "timeouts must not be negative")
	}
	if c.Engine.MaxWebhookCalls < 0 {
		problems = append(problems, "engine.max_webhook_calls must not be negative")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q is not one of text, json", c.Log.Format))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
