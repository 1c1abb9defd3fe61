package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	ExportDir string `toml:"export_dir"`
	LogDir    string `toml:"log_dir"`
}

// Store selects and configures the export job record store.
type Store struct {
	Backend     string `toml:"backend"`
	PostgresURL string `toml:"postgres_url"`
}

// Catalog points at the folder taxonomy and media item catalog.
type Catalog struct {
	Path       string `toml:"path"`
	DetectMIME bool   `toml:"detect_mime"`
}

// API contains the HTTP bind address and response limits.
type API struct {
	Bind        string   `toml:"bind"`
	CORSOrigins []string `toml:"cors_origins"`
	ListLimit   int      `toml:"list_limit"`
}

// Workflow contains worker pool sizing and daemon intervals.
type Workflow struct {
	Workers           int `toml:"workers"`
	QueueSize         int `toml:"queue_size"`
	QueuePollInterval int `toml:"queue_poll_interval"`
	CleanupInterval   int `toml:"cleanup_interval"`
	ProgressEvery     int `toml:"progress_every"`
}

// Manifest selects the CSV columns written to manifest.csv. Empty keeps the
// default column set.
type Manifest struct {
	Columns []string `toml:"columns"`
}

// Retention controls how long export artifacts are kept.
type Retention struct {
	WindowHours int `toml:"window_hours"`
}

// Preflight contains thresholds for startup checks.
type Preflight struct {
	MinFreeMiB int `toml:"min_free_mib"`
}

// Notifications configures ntfy delivery for finished exports. An empty
// topic disables notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	OnSuccess      bool   `toml:"on_success"`
	OnFailure      bool   `toml:"on_failure"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for folderexport.
//
// Configuration sections by subsystem:
//   - Paths: data, export, and log directories
//   - Store: job record backend (sqlite or postgres)
//   - Catalog: folder taxonomy and media item source
//   - API: HTTP bind address, CORS origins, list limit
//   - Workflow: worker pool and daemon intervals
//   - Manifest: CSV column selection
//   - Retention: artifact expiry window
//   - Preflight: startup check thresholds
//   - Notifications: ntfy topic and event toggles
//   - Logging: log format, level, and retention
type Config struct {
	Paths     Paths     `toml:"paths"`
	Store     Store     `toml:"store"`
	Catalog   Catalog   `toml:"catalog"`
	API       API       `toml:"api"`
	Workflow  Workflow  `toml:"workflow"`
	Manifest  Manifest  `toml:"manifest"`
	Retention Retention `toml:"retention"`
	Preflight Preflight `toml:"preflight"`
	Logging   Logging   `toml:"logging"`

	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/folderexport/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	// A missing .env is the common case.
	_ = godotenv.Load()

	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("folderexport.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data and log directories. The export
// directory is created lazily by the pipeline together with its placeholders.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite job store location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "exports.db")
}

// LockPath returns the daemon single-instance lock location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "folderexportd.lock")
}

// RetentionWindow returns the artifact expiry window.
func (c *Config) RetentionWindow() time.Duration {
	return time.Duration(c.Retention.WindowHours) * time.Hour
}

// PollInterval returns the pending-job poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Workflow.QueuePollInterval) * time.Second
}

// CleanupInterval returns the recurring retention sweep interval.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.Workflow.CleanupInterval) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
