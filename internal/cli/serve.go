package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	httpadapter "github.com/aretw0/parley/pkg/adapters/http"
)

// ShutdownTimeout bounds how long in-flight requests may take once shutdown starts.
const ShutdownTimeout = 5 * time.Second

// ServeOptions configures the HTTP server.
type ServeOptions struct {
	Addr  string
	Watch bool
	// Ready, when set, receives the bound address once the listener is up.
	Ready chan<- string
}

// Serve exposes the engine over HTTP until ctx is cancelled, then drains
// outstanding requests.
func Serve(ctx context.Context, stack *Stack, opts ServeOptions, logger *slog.Logger) error {
	addr := opts.Addr
	if addr == "" {
		addr = stack.cfg.HTTP.Addr
	}

	handlerOpts := []httpadapter.Option{httpadapter.WithLogger(logger)}
	if stack.Metrics != nil {
		handlerOpts = append(handlerOpts, httpadapter.WithMetrics(stack.Metrics.Handler()))
	}
	srv := &http.Server{
		Handler:           httpadapter.NewHandler(stack.Engine, handlerOpts...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if opts.Watch || stack.cfg.Agent.Watch {
		if err := watchAgent(ctx, stack, logger, nil); err != nil {
			return err
		}
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	logger.Info("Starting parley server", "addr", ln.Addr().String(), "agent", stack.cfg.Agent.Path)
	if opts.Ready != nil {
		opts.Ready <- ln.Addr().String()
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Serve(ln)
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, stop := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Graceful shutdown did not complete", "timeout", ShutdownTimeout, "err", err)
		return srv.Close()
	}
	logger.Info("Server stopped gracefully")
	return nil
}
