package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"folderexport/internal/config"
	"folderexport/internal/daemonrun"
	"folderexport/internal/logging"
	"folderexport/internal/textutil"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	components *daemonrun.Components
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// build wires the store, catalog, and pipeline once per invocation. CLI logs
// go to the log file only so they never interleave with command output.
func (c *commandContext) build(ctx context.Context) (*daemonrun.Components, error) {
	if c.components != nil {
		return c.components, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	components, err := daemonrun.Build(ctx, cfg, c.fileLogger(cfg))
	if err != nil {
		return nil, err
	}
	c.components = components
	return components, nil
}

func (c *commandContext) fileLogger(cfg *config.Config) *slog.Logger {
	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      "json",
		OutputPaths: []string{filepath.Join(cfg.Paths.LogDir, logging.LogFileName)},
	})
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

func (c *commandContext) close() error {
	if c.components == nil {
		return nil
	}
	err := c.components.Close()
	c.components = nil
	return err
}

// daemonRunning probes the daemon's single-instance lock.
func (c *commandContext) daemonRunning() (bool, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return false, err
	}
	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("probe daemon lock: %w", err)
	}
	if ok {
		_ = lock.Unlock()
		return false, nil
	}
	return true, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	return textutil.Ternary(value, "yes", "no")
}
