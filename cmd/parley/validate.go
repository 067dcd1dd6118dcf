package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/parley/pkg/adapters/file"
	"github.com/aretw0/parley/pkg/domain"
)

var validateCmd = &cobra.Command{
	Use:   "validate [agent-file]",
	Short: "Check the agent for consistency",
	Long:  `Loads the agent and reports every dangling target, unknown intent, webhook or route group, and malformed form.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		path := cfg.Agent.Path
		if len(args) > 0 {
			path = args[0]
		}

		agent, err := file.NewLoader(path).Load(cmd.Context())
		var invalid *domain.ValidationError
		if errors.As(err, &invalid) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Agent %q has %d problem(s):\n", invalid.AgentID, len(invalid.Problems))
			for _, p := range invalid.Problems {
				fmt.Fprintf(out, "  - %s\n", p)
			}
			return fmt.Errorf("validation failed")
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Agent %q is valid! ✅ (%d flows, %d intents, %d webhooks)\n",
			agent.ID, len(agent.Flows), len(agent.Intents), len(agent.Webhooks))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
