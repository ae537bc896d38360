// Command hypejk watches Hyperliquid accounts for position transitions and
// pushes an alert for each one. It loads configuration, validates it, wires
// dependencies, sets up signal handling, and starts the configured mode.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/uykb/hypejk/internal/app"
	"github.com/uykb/hypejk/internal/config"
)

func main() {
	os.Exit(run())
}

// run owns the process lifetime so deferred cleanup happens before exit.
func run() int {
	configPath := flag.String("config", "config.toml", "path to configuration file (.toml, .yaml or .yml)")
	mode := flag.String("mode", "", "override the configured mode (monitor, backfill)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		return 1
	}
	if *mode != "" {
		cfg.Mode = strings.ToLower(strings.TrimSpace(*mode))
	}

	// Backfill prints events on stdout, so logs move to stderr.
	var out io.Writer = os.Stdout
	if cfg.Mode == "backfill" {
		out = os.Stderr
	}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			logger.Error("failed to open log file",
				slog.String("path", cfg.LogFile),
				slog.String("error", err.Error()),
			)
			return 1
		}
		defer f.Close()
		out = io.MultiWriter(out, f)
	}

	logger = slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("hypejk starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := app.New(cfg, logger)
	defer application.Close()

	if err := application.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("application shut down gracefully")
			return 0
		}
		logger.Error("application exited with error",
			slog.String("error", err.Error()),
		)
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 1
	}

	logger.Info("hypejk stopped")
	return 0
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
