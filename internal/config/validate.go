package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case "sqlite":
		return nil
	case "postgres":
		if c.Store.PostgresURL == "" {
			return errors.New("store.postgres_url must be set when store.backend is postgres (or set FOLDEREXPORT_POSTGRES_URL)")
		}
		return nil
	default:
		return fmt.Errorf("store.backend: unsupported value %q (expected sqlite or postgres)", c.Store.Backend)
	}
}

func (c *Config) validateAPI() error {
	if _, _, err := net.SplitHostPort(c.API.Bind); err != nil {
		return fmt.Errorf("api.bind: %w", err)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.Workers <= 0 {
		return errors.New("workflow.workers must be positive")
	}
	if c.Workflow.QueuePollInterval <= 0 {
		return errors.New("workflow.queue_poll_interval must be positive (seconds)")
	}
	if c.Workflow.CleanupInterval <= 0 {
		return errors.New("workflow.cleanup_interval must be positive (seconds)")
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.ExportDir == c.Paths.LogDir {
		return errors.New("paths.export_dir and paths.log_dir must differ")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.NtfyTopic == "" {
		return nil
	}
	parsed, err := url.Parse(c.Notifications.NtfyTopic)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("notifications.ntfy_topic: expected an http(s) topic URL, got %q", c.Notifications.NtfyTopic)
	}
	return nil
}
