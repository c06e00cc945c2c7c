// Package server implements the server command running the HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bygga/bygga/cmd/utils"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

// NewCmdServer creates a command to run the HTTP API
func NewCmdServer() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the bygga API server",
		Long:  "Starts the HTTP API serving projects, secrets, tasks, orders and the payment webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd)
		},
	}

	return cmd
}

func runServer(cmd *cobra.Command) error {
	a, err := utils.OpenApp(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Error("Failed to close application", "layer", "cmd", "operation", "close", "error", err)
		}
	}()

	slog.Info("Starting bygga server")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(utils.CommandContext(cmd))
	defer cancel()

	go handleShutdown(ctx, cancel)

	server := &http.Server{
		Addr:              a.Config.ListenAddress(),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return serve(ctx, server)
}

// serve runs server until ctx is done, then shuts it down gracefully
func serve(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Web server starting", "address", fmt.Sprintf("http://%s", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("web server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down web server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web server shutdown failed: %w", err)
	}

	slog.Info("Web server stopped")
	return nil
}

// handleShutdown cancels on SIGINT or SIGTERM
func handleShutdown(ctx context.Context, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
		slog.Info("Shutdown signal received")
		cancel()
	case <-ctx.Done():
	}
}
