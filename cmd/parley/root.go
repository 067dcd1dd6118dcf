package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/parley/internal/cli"
	"github.com/aretw0/parley/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Parley is a conversational agent engine",
	Long: `Parley runs conversational agents made of flows, pages, forms and intents.
Agents are plain YAML or JSON files; sessions live in memory, on disk, in SQLite or in Redis.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (default: parley.yaml in the working directory)")
	rootCmd.PersistentFlags().StringP("agent", "a", "", "Agent definition file (overrides agent.path)")
	rootCmd.PersistentFlags().String("store", "", "Session store: memory, file, redis or sqlite (overrides store.backend)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error (overrides log.level)")
	rootCmd.PersistentFlags().Bool("debug", false, "Verbose logging and per-turn diagnostics")
}

// loadConfig reads the configuration, applying persistent flags as overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	overrides := map[string]any{}
	flagKeys := map[string]string{
		"agent":     "agent.path",
		"store":     "store.backend",
		"log-level": "log.level",
	}
	for flag, key := range flagKeys {
		if cmd.Flags().Changed(flag) {
			v, _ := cmd.Flags().GetString(flag)
			overrides[key] = v
		}
	}
	file, _ := cmd.Flags().GetString("config")
	return config.Load(config.Options{File: file, Overrides: overrides})
}

// loadStack builds the configured engine. Callers must Close the stack.
func loadStack(cmd *cobra.Command) (*cli.Stack, *config.Config, *slog.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	debug, _ := cmd.Flags().GetBool("debug")
	logger, err := cli.NewLogger(cfg, debug)
	if err != nil {
		return nil, nil, nil, err
	}
	stack, err := cli.Build(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return stack, cfg, logger, nil
}
