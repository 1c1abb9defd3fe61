package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"folderexport/internal/api"
	"folderexport/internal/config"
	"folderexport/internal/logging"
	"folderexport/internal/preflight"
	"folderexport/internal/queue"
	"folderexport/internal/workflow"
)

// Daemon coordinates the background workers and the HTTP API and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    queue.Store
	workflow *workflow.Manager
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc

	mu        sync.RWMutex
	preflight []preflight.Result
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Workflow     workflow.StatusSummary
	StoreBackend string
	DatabasePath string
	LockFilePath string
	APIAddress   string
	Preflight    []preflight.Result
}

// New constructs a daemon with initialized dependencies. svc may be nil, in
// which case no HTTP API is served.
func New(cfg *config.Config, store queue.Store, logger *slog.Logger, wf *workflow.Manager, svc *api.Service) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, logger, and workflow manager")
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		workflow: wf,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	if svc != nil {
		d.api = newAPIServer(cfg, d, svc, logger)
	}
	return d, nil
}

// Start acquires the daemon lock, then launches the workflow manager and the
// HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another folderexport daemon instance is already running")
	}

	d.runPreflight()
	if removed := logging.CleanupOldLogs(d.logger, d.cfg.Logging.RetentionDays, logging.RetentionTarget{
		Dir:     d.cfg.Paths.LogDir,
		Pattern: "*.log",
		Exclude: []string{filepath.Join(d.cfg.Paths.LogDir, logging.LogFileName)},
	}); removed > 0 {
		d.logger.Info("pruned old log files", logging.Int("removed", removed))
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		cancel()
		d.workflow.Stop()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api: %w", err)
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("folderexport daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
	)
	return nil
}

// Stop stops background processing, shuts the API down, and releases the
// daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("folderexport daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status reports daemon and workflow state.
func (d *Daemon) Status(ctx context.Context) Status {
	d.mu.RLock()
	checks := append([]preflight.Result(nil), d.preflight...)
	d.mu.RUnlock()

	status := Status{
		Running:      d.running.Load(),
		Workflow:     d.workflow.Status(ctx),
		StoreBackend: d.cfg.Store.Backend,
		LockFilePath: d.lockPath,
		APIAddress:   d.api.address(),
		Preflight:    checks,
	}
	if d.cfg.Store.Backend != "postgres" {
		status.DatabasePath = d.cfg.DatabasePath()
	}
	return status
}

func (d *Daemon) runPreflight() {
	results := preflight.RunAll(d.cfg)
	for _, failed := range preflight.Failed(results) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", failed.Name),
			logging.String("detail", failed.Detail),
			logging.String(logging.FieldImpact, "exports may fail until this is fixed"),
			logging.String(logging.FieldErrorHint, "fix the path or permissions and restart the daemon"),
		)
	}
	d.mu.Lock()
	d.preflight = results
	d.mu.Unlock()
}
