package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "config/compositor.yaml"

var (
	// Global flags
	configPath string
	debug      bool
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "compositord",
	Short: "Real-time chroma-key compositor",
	Long: `compositord keys a near-white backdrop out of a live video feed and
publishes the composite with transparency.

Commands:
  run      run the compositing service (video source, MQTT control, HTTP viewer)
  key      key a still image to a transparent PNG
  version  print version information`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogger(logFormat, debug)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format: json, text or pretty")
}

// setupLogger installs the default slog logger.
func setupLogger(format string, debug bool) error {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	case "text":
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	case "pretty":
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		})
	default:
		return fmt.Errorf("unknown log format %q (must be json, text or pretty)", format)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}
