package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"folderexport/internal/config"
	"folderexport/internal/daemon"
	"folderexport/internal/logging"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// LogLevel overrides logging.level when set.
	LogLevel string
}

// Run starts the folderexport daemon and blocks until SIGINT, SIGTERM, or
// cmdCtx cancellation.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", filepath.Join(cfg.Paths.LogDir, logging.LogFileName)},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logStartupSnapshot(logger, cfg)

	pidPath := filepath.Join(cfg.Paths.DataDir, "folderexportd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	components, err := Build(signalCtx, cfg, logger)
	if err != nil {
		logging.ErrorWithContext(logger, "daemon bootstrap failed", "daemon_bootstrap_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the catalog path and job store settings"),
		)
		return err
	}

	d, err := daemon.New(cfg, components.Store, logger, components.Workflow, components.Service)
	if err != nil {
		_ = components.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return err
	}

	<-signalCtx.Done()
	logger.Info("folderexport daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logStartupSnapshot(logger *slog.Logger, cfg *config.Config) {
	logger.Info("startup snapshot",
		logging.String(logging.FieldEventType, "startup_snapshot"),
		logging.String("store_backend", cfg.Store.Backend),
		logging.String("catalog", cfg.Catalog.Path),
		logging.String("export_dir", cfg.Paths.ExportDir),
		logging.String("api_bind", cfg.API.Bind),
		logging.Int("workers", cfg.Workflow.Workers),
		logging.Duration("retention_window", cfg.RetentionWindow()),
		logging.Bool("notifications", cfg.Notifications.NtfyTopic != ""),
	)
}
