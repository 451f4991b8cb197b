package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/e7canasta/chroma-compositor/internal/config"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the compositing service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runService(cmd.Context(), configPath)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runService(parent context.Context, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	slog.Info("starting compositor",
		"config", path,
		"instance_id", cfg.InstanceID,
		"debug", debug,
	)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := newService(cfg)
	if err != nil {
		return err
	}

	runErr := svc.Run(ctx)
	if runErr != nil {
		slog.Error("service error", "error", runErr)
	} else if ctx.Err() != nil {
		slog.Info("received shutdown signal")
	} else {
		slog.Info("service stopped (via MQTT shutdown command)")
	}

	timeout := cfg.ShutdownTimeout()
	slog.Info("shutting down gracefully", "timeout", timeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := svc.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "error", err)
		if runErr == nil {
			runErr = err
		}
	} else {
		slog.Info("compositor stopped successfully")
	}
	return runErr
}
