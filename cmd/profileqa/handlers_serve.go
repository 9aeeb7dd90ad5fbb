package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/profileqa/internal/config"
	"github.com/haasonsaas/profileqa/internal/mcpserver"
	"github.com/haasonsaas/profileqa/internal/notify"
	"github.com/haasonsaas/profileqa/internal/server"
)

// =============================================================================
// Serve Command Handler
// =============================================================================

// runServe starts the HTTP API, the summary scheduler and the config
// watcher, and shuts them down on SIGINT or SIGTERM.
func runServe(ctx context.Context, configPath string, watch bool) error {
	cfg, path, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := a.Close(shutdownCtx); err != nil {
			a.logger.Warn(shutdownCtx, "shutdown error", "error", err)
		}
	}()
	if err := a.pipeline(ctx); err != nil {
		return err
	}

	a.logger.Info(ctx, "starting profileqa",
		"version", version,
		"commit", commit,
		"config", path,
		"addr", cfg.Server.Addr,
	)

	scheduler, err := notify.NewScheduler(cfg.Notify.SummaryCron, a.notifier, a.orch.SummaryReport, a.logger)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()
	if scheduler.Enabled() {
		a.logger.Info(ctx, "summary report scheduled",
			"cron", cfg.Notify.SummaryCron,
			"next", scheduler.Next(time.Now()),
		)
	}

	if watch {
		watcher, err := config.NewWatcher(path, 0, a.logger.Slog(), func(next *config.Config) {
			a.logger.SetLevel(next.Logging.Level)
			a.orch.UpdateConfig(next.Orchestrator)
		})
		if err != nil {
			return err
		}
		if err := watcher.Start(ctx); err != nil {
			a.logger.Warn(ctx, "config watcher disabled", "error", err)
		} else {
			defer watcher.Close()
		}
	}

	srv := server.New(a.orch, cfg.Server,
		server.WithLogger(a.logger),
		server.WithNotifier(a.notifier),
		server.WithCritic(a.evaluator),
		server.WithClarifier(a.clarifier, a.classifier),
		server.WithGatherer(a.registry),
	)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	a.logger.Info(context.Background(), "profileqa stopped gracefully")
	return nil
}

// =============================================================================
// MCP Command Handler
// =============================================================================

// runMcp serves the MCP tools on stdin and stdout. Logs go to stderr so
// they never interleave with the protocol stream.
func runMcp(cmd *cobra.Command, configPath string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())
	if err := a.pipeline(ctx); err != nil {
		return err
	}

	return mcpserver.New(a.orch, a.classifier, a.logger).ServeStdio(ctx, os.Stdin, os.Stdout)
}
