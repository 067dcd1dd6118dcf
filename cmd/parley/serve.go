package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/parley/internal/cli"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Serves the agent over a JSON HTTP API with server-sent events and Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, _, logger, err := loadStack(cmd)
		if err != nil {
			return err
		}
		defer stack.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opts := cli.ServeOptions{}
		opts.Addr, _ = cmd.Flags().GetString("addr")
		opts.Watch, _ = cmd.Flags().GetBool("watch")
		return cli.Serve(ctx, stack, opts, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Address to listen on (overrides http.addr)")
	serveCmd.Flags().BoolP("watch", "w", false, "Reload the agent when its file changes")
}
