package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"parley/internal/cron"
	"parley/internal/gateway"
	"parley/internal/gateway/websocket"
	"parley/internal/runner"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Parley gateway server",
		Long: `Start the Parley gateway server.

This command starts the HTTP gateway server that provides:
- REST API endpoints for chat and session management
- WebSocket support for real-time streaming
- Config hot reload
- Scheduled session retention cleanup

The server will listen on the configured host and port (default: 127.0.0.1:8080).`,
		Example: `  # Start server with default configuration
  parley serve

  # Start server with custom port
  parley serve --port 9090

  # Start server with verbose logging
  parley serve --verbose`,
		RunE: runServe,
	}

	cmd.Flags().IntP("port", "p", 0, "port to listen on (overrides config)")
	cmd.Flags().String("host", "", "host to bind to (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return fmt.Errorf("CLI context not initialized")
	}

	cfg := cliCtx.Config
	log := cliCtx.Logger

	// Override config with flags if provided
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Gateway.Port = port
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Gateway.Host = host
	}

	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 8080
	}
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "127.0.0.1"
	}

	log.Info().Msg("Starting Parley server...")

	db, err := cliCtx.GetStorage()
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}

	hub := websocket.NewHub()
	srv := gateway.NewServer(cfg, hub, db)

	chatRunner := runner.NewRunner(db, cfg)
	srv.SetRunner(chatRunner)
	srv.InitializeRoutes()

	// Watch the config directory so edits reload without a restart.
	watcher, err := gateway.NewWatcher(hub, filepath.Dir(cliCtx.ConfigPath))
	if err != nil {
		log.Warn().Err(err).Msg("File watcher unavailable")
	} else {
		watcher.SetConfigReload(cliCtx.ConfigPath, chatRunner)
		if err := watcher.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start file watcher")
		} else {
			srv.SetWatcher(watcher)
		}
	}

	scheduler := cron.NewScheduler(db, cfg)
	if err := scheduler.Start(cmd.Context()); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	log.Info().
		Str("address", fmt.Sprintf("http://%s:%d", cfg.Gateway.Host, cfg.Gateway.Port)).
		Msg("Server started successfully")

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info().Msg("Shutting down server...")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("Server error")
			scheduler.Stop()
			return err
		}
	}

	// Let a running cleanup job finish before closing the database.
	stopCtx := scheduler.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		log.Warn().Msg("Timed out waiting for scheduled jobs")
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
		return err
	}

	log.Info().Msg("Server stopped")
	return nil
}
