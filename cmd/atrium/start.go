// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/atrium-host/atrium/internal/config"
	"github.com/atrium-host/atrium/pkg/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the atrium host",
		Long:  "Load configuration, reconcile installed plugins, and start the HTTP server.",
		RunE:  runStart,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")
	cmd.Flags().Bool("safe-mode", false, "boot with only core plugins enabled")
	cmd.Flags().String("plugins-dir", "", "override plugin manifest directory")
	_ = viper.BindPFlag("server.listen", cmd.Flags().Lookup("listen"))
	_ = viper.BindPFlag("safe_mode", cmd.Flags().Lookup("safe-mode"))
	_ = viper.BindPFlag("plugins.dir", cmd.Flags().Lookup("plugins-dir"))

	return cmd
}

func runStart(cmd *cobra.Command, _ []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	if cfgPath == "" {
		cfgPath = resolveConfigPath()
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Apply any flag/env overrides the global Viper resolved. The
	// safe-mode flag only forces safe mode on, never off.
	if listen := viper.GetString("server.listen"); listen != "" {
		cfg.Server.Listen = listen
	}
	if viper.GetBool("safe_mode") {
		cfg.SafeMode = true
	}
	if dir := viper.GetString("plugins.dir"); dir != "" {
		cfg.Plugins.Dir = dir
	}

	setupLogging(viper.GetBool("verbose"), cfg.Env())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	host, err := WireHost(ctx, cfg)
	if err != nil {
		return fmt.Errorf("wiring host: %w", err)
	}
	defer func() {
		if err := host.Close(); err != nil {
			slog.Warn("closing host", "error", err)
		}
	}()

	slog.Info("starting atrium host",
		"listen", cfg.Server.Listen,
		"environment", string(cfg.Env()),
		"safe_mode", cfg.SafeMode,
		"active_plugins", len(host.Boot.Active),
	)

	return host.Start(ctx)
}

// resolveConfigPath returns the standard config file location, writing a
// commented default on first run. Empty means defaults and env vars only.
func resolveConfigPath() string {
	if written := config.BootstrapConfig(); written != "" {
		return written
	}
	path, err := config.DefaultConfigPath()
	if err != nil {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// setupLogging installs the process-wide slog default. Production gets
// JSON for log shippers, everything else a human-readable text handler.
func setupLogging(verbose bool, env types.Environment) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if env.Production() {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}
