package retention

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"folderexport/internal/fileutil"
	"folderexport/internal/logging"
	"folderexport/internal/pipeline"
	"folderexport/internal/queue"
	"folderexport/internal/services"
)

// DefaultWindow is how long artifacts are kept after their job was created.
const DefaultWindow = 24 * time.Hour

// Result contains the outcome of a cleanup pass.
type Result struct {
	Removed []string
	Skipped int
	Orphans []string
	Errors  []CleanupError
}

// Count returns the number of job records removed.
func (r Result) Count() int {
	return len(r.Removed)
}

// CleanupError pairs a job or file with its cleanup error.
type CleanupError struct {
	JobID string
	Path  string
	Error error
}

// Manager removes expired artifacts and records.
type Manager struct {
	store     queue.Store
	exportDir string
	window    time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewManager builds a Manager. A non-positive window selects DefaultWindow.
func NewManager(store queue.Store, exportDir string, window time.Duration, logger *slog.Logger) *Manager {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Manager{
		store:     store,
		exportDir: strings.TrimSpace(exportDir),
		window:    window,
		logger:    logging.NewComponentLogger(logger, "retention"),
		now:       time.Now,
	}
}

// Window returns the retention window.
func (m *Manager) Window() time.Duration {
	return m.window
}

// CleanupExpired deletes the artifact and record of every terminal job
// created before the retention window, then removes unreferenced archives
// and abandoned partial files older than the window.
func (m *Manager) CleanupExpired(ctx context.Context) (Result, error) {
	var result Result
	cutoff := m.now().Add(-m.window)
	referenced := make(map[string]struct{})

	err := m.store.Walk(ctx, func(job *queue.Job, err error) error {
		// Skipped records still own their artifact; keep it out of the orphan sweep.
		if job != nil && job.ArtifactPath != "" {
			referenced[filepath.Clean(job.ArtifactPath)] = struct{}{}
		}
		if err != nil {
			result.Skipped++
			m.warnUnreadable(job, err)
			return nil
		}
		if !job.IsTerminal() || !job.CreatedAt.Before(cutoff) {
			return nil
		}
		if m.removeJob(ctx, job, &result) {
			delete(referenced, filepath.Clean(job.ArtifactPath))
		}
		return nil
	})
	if err != nil {
		return result, services.Wrap(services.ErrTransient, "retention", "cleanup expired", "walk job records", err)
	}
	m.cleanOrphans(cutoff, referenced, &result)

	if result.Count() > 0 || len(result.Orphans) > 0 {
		m.logger.Info("expired exports removed",
			logging.String(logging.FieldEventType, "retention_cleanup"),
			logging.Int("removed", result.Count()),
			logging.Int("orphans", len(result.Orphans)),
			logging.Int("skipped", result.Skipped),
		)
	}
	return result, nil
}

// DeleteAll removes every job record and artifact regardless of status or
// age. When only placeholders remain, they and the export directory are
// removed too.
func (m *Manager) DeleteAll(ctx context.Context) (Result, error) {
	var result Result
	err := m.store.Walk(ctx, func(job *queue.Job, err error) error {
		if job == nil {
			result.Skipped++
			m.warnUnreadable(job, err)
			return nil
		}
		m.removeJob(ctx, job, &result)
		return nil
	})
	if err != nil {
		return result, services.Wrap(services.ErrTransient, "retention", "delete all", "walk job records", err)
	}
	if err := m.removeExportDirIfEmpty(); err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: m.exportDir, Error: err})
	}
	m.logger.Info("all exports removed",
		logging.String(logging.FieldEventType, "retention_purge"),
		logging.Int("removed", result.Count()),
		logging.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// DeleteJob removes one job's artifact and record. Deleting a job that does
// not exist reports false without error.
func (m *Manager) DeleteJob(ctx context.Context, id string) (bool, error) {
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	if _, err := fileutil.RemoveIfExists(job.ArtifactPath); err != nil {
		return false, services.Wrap(services.ErrTransient, "retention", "delete job", "remove artifact", err)
	}
	removed, err := m.store.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if removed {
		m.logger.Info("export deleted",
			logging.String(logging.FieldEventType, "export_deleted"),
			logging.JobID(id),
		)
	}
	return removed, nil
}

// removeJob deletes the artifact, then the record. A record whose artifact
// cannot be removed is kept so a later pass can retry.
func (m *Manager) removeJob(ctx context.Context, job *queue.Job, result *Result) bool {
	if _, err := fileutil.RemoveIfExists(job.ArtifactPath); err != nil {
		result.Errors = append(result.Errors, CleanupError{JobID: job.ID, Path: job.ArtifactPath, Error: err})
		logging.WarnWithContext(m.logger, "failed to remove export artifact", "retention_cleanup_failed",
			logging.JobID(job.ID),
			logging.String("path", job.ArtifactPath),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check export_dir permissions"),
			logging.String(logging.FieldImpact, "disk space not reclaimed"),
		)
		return false
	}
	if _, err := m.store.Delete(ctx, job.ID); err != nil {
		result.Errors = append(result.Errors, CleanupError{JobID: job.ID, Error: err})
		logging.WarnWithContext(m.logger, "failed to delete job record", "retention_cleanup_failed",
			logging.JobID(job.ID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "record retried on the next sweep"),
		)
		return false
	}
	result.Removed = append(result.Removed, job.ID)
	return true
}

func (m *Manager) warnUnreadable(job *queue.Job, err error) {
	id := ""
	if job != nil {
		id = job.ID
	}
	logging.WarnWithContext(m.logger, "skipping unreadable job record", "retention_record_skipped",
		logging.JobID(id),
		logging.Error(err),
		logging.String(logging.FieldImpact, "record and its artifact are kept"),
		logging.String(logging.FieldErrorHint, "delete the job explicitly or purge with clean --all"),
	)
}

// cleanOrphans removes archives no record points at and partial files left
// by interrupted assemblies, once they are older than cutoff.
func (m *Manager) cleanOrphans(cutoff time.Time, referenced map[string]struct{}, result *Result) {
	if m.exportDir == "" {
		return
	}
	names, err := fileutil.DirEntries(m.exportDir)
	if err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: m.exportDir, Error: err})
		return
	}
	for _, name := range names {
		if _, placeholder := pipeline.Placeholders[name]; placeholder {
			continue
		}
		if !strings.HasSuffix(name, ".zip") && !strings.HasSuffix(name, ".part") {
			continue
		}
		path := filepath.Join(m.exportDir, name)
		if _, ok := referenced[path]; ok {
			continue
		}
		info, err := os.Lstat(path)
		if err != nil || !info.Mode().IsRegular() || !info.ModTime().Before(cutoff) {
			continue
		}
		if _, err := fileutil.RemoveIfExists(path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			continue
		}
		result.Orphans = append(result.Orphans, path)
	}
}

func (m *Manager) removeExportDirIfEmpty() error {
	if m.exportDir == "" {
		return nil
	}
	names, err := fileutil.DirEntries(m.exportDir)
	if err != nil || names == nil {
		return err
	}
	for _, name := range names {
		if _, placeholder := pipeline.Placeholders[name]; !placeholder {
			return nil
		}
	}
	for _, name := range names {
		if _, err := fileutil.RemoveIfExists(filepath.Join(m.exportDir, name)); err != nil {
			return err
		}
	}
	if err := os.Remove(m.exportDir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
