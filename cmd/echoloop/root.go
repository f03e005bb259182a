package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"echoloop/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "echoloop",
	Short: "Wake-word echo appliance",
	Long: `echoloop listens on a duplex audio stream for a wake phrase, plays a
chime, records a few seconds of audio and plays it straight back.`,
	SilenceUsage: true,
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(chimeCmd)
}

// loadConfig falls back to defaults when the default config file is absent.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
			return config.Default(), nil
		}
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
