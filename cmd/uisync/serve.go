package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"uisync/internal/app"
	"uisync/internal/configuration"
	"uisync/internal/logging"
	"uisync/internal/tracing"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var (
		configDir string
		profile   string
		logLevel  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configDir, profile)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.App.LogLevel = logLevel
			}

			logging.Init(cfg.App.LogLevel, cfg.App.LogFormat)
			slog.Info("Starting UI sync...", "profile", cfg.App.Profile)

			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", "", "Directory holding application.yml (default $UISYNC_CONFIG_DIR or "+configuration.DefaultDir+")")
	cmd.Flags().StringVar(&profile, "profile", "", "Configuration profile overlay, e.g. local or prod")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override app.log-level (debug, info, warn, error)")

	return cmd
}

// loadConfig falls back to built-in defaults only when the directory has no
// application.yml and no profile was requested.
func loadConfig(dir, profile string) (*configuration.Properties, error) {
	dir = configuration.LookupDir(dir)
	if _, err := os.Stat(filepath.Join(dir, "application.yml")); errors.Is(err, fs.ErrNotExist) && profile == "" {
		slog.Warn("no configuration found, using defaults", "dir", dir)
		return configuration.Default(), nil
	}

	cfg, err := configuration.Load(dir, profile)
	if err != nil {
		return nil, fmt.Errorf("load configuration from %s: %w", dir, err)
	}
	return cfg, nil
}

func serve(parent context.Context, cfg *configuration.Properties) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	shutdownTracing, err := tracing.Setup(ctx, &cfg.Tracing)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Error("tracing shutdown failed", "error", err)
		}
	}()

	services := app.NewServices(cfg)
	if err := services.Start(); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	<-ctx.Done()
	slog.Info("Shutting down UI sync...")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	return services.Stop(stopCtx)
}
