package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"catbot/pkg/automation"
	"catbot/pkg/logger"
	"catbot/pkg/server"
	"catbot/pkg/ui"
)

const shutdownTimeout = 30 * time.Second

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard and HTTP trigger",
	Long: `Start the HTTP dashboard. Endpoints:

  GET  /           health check and endpoint list
  GET  /run-task   run one cycle (POST works too)
  GET  /status     mode, counters, last run and recent posts
  GET  /logs       last 100 lines of the log file

Only one cycle runs at a time; a trigger during a cycle gets 409.`,
	Example: `  catbot serve --port 8080
  curl -X POST localhost:8080/run-task`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Int("port", 5000, "port to listen on (overrides PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := setupLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, err := automation.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer runner.Close()

	srv := server.New(runner, server.Options{LogFile: cfg.Logging.File}, log)
	addr := fmt.Sprintf(":%d", cfg.Server.Port)

	logger.LogComponentStart(log, "dashboard", map[string]interface{}{
		"addr": addr,
		"mode": runner.Mode(),
	})
	ui.PrintInfo("Dashboard", "http://localhost"+addr)
	ui.PrintInfo("Mode", runner.Mode())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Listen(addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	logger.LogComponentStop(log, "dashboard", "signal received")
	return nil
}
