package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/parley/internal/cli"
)

var chatCmd = &cobra.Command{
	Use:   "chat [agent-file]",
	Short: "Talk to the agent in the terminal",
	Long: `Starts an interactive conversation with the agent.
Type /help for the available commands. With --json every line in and out is JSON,
which makes the command scriptable.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 && !cmd.Flags().Changed("agent") {
			_ = cmd.Flags().Set("agent", args[0])
		}
		stack, _, logger, err := loadStack(cmd)
		if err != nil {
			return err
		}
		defer stack.Close()

		opts := cli.ChatOptions{}
		opts.SessionID, _ = cmd.Flags().GetString("session")
		opts.Fresh, _ = cmd.Flags().GetBool("fresh")
		opts.JSON, _ = cmd.Flags().GetBool("json")
		opts.Debug, _ = cmd.Flags().GetBool("debug")
		opts.KeepAlive, _ = cmd.Flags().GetBool("keep-alive")
		opts.Watch, _ = cmd.Flags().GetBool("watch")
		return cli.RunChat(cmd.Context(), stack, opts, logger)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringP("session", "s", "", "Session id to create or resume (default: derived from the agent path)")
	chatCmd.Flags().Bool("fresh", false, "Discard the stored session before starting")
	chatCmd.Flags().Bool("json", false, "Read and write JSON lines")
	chatCmd.Flags().Bool("keep-alive", false, "Keep reading after the conversation ends")
	chatCmd.Flags().BoolP("watch", "w", false, "Reload the agent when its file changes")
}
