package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/parley/internal/presentation/graph"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the agent as a Mermaid diagram",
	Long: `Outputs a Mermaid flowchart (graph TD) of every flow, page and route.
With --session the session's current page and return stack are highlighted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, _, _, err := loadStack(cmd)
		if err != nil {
			return err
		}
		defer stack.Close()

		agent, err := stack.Engine.Inspect()
		if err != nil {
			return fmt.Errorf("error inspecting agent: %w", err)
		}

		var overlay *graph.GraphOverlay
		if sessionID, _ := cmd.Flags().GetString("session"); sessionID != "" {
			state, err := stack.Engine.Session(cmd.Context(), sessionID)
			if err != nil {
				return fmt.Errorf("error loading session %q: %w", sessionID, err)
			}
			overlay = &graph.GraphOverlay{CurrentFlow: state.Flow, CurrentPage: state.Page}
			for _, f := range state.ReturnStack {
				overlay.Stack = append(overlay.Stack, f.Page)
			}
		}

		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(agent, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringP("session", "s", "", "Highlight the position of this session")
}
