package queue

import (
	"context"
	"fmt"
	"strings"

	"folderexport/internal/config"
	"folderexport/internal/services"
)

// WalkFunc receives each stored job. A record that cannot be decoded arrives
// with a non-nil err and a job carrying whatever fields were readable (at
// least the ID when the row itself was readable). Returning an error stops
// the walk.
type WalkFunc func(job *Job, err error) error

// Store is the export job record store.
type Store interface {
	// Create persists a new pending job with a fresh UUID.
	Create(ctx context.Context, job NewJob) (*Job, error)
	// Get returns the job, or nil and no error when it does not exist.
	Get(ctx context.Context, id string) (*Job, error)
	// MarkProcessing moves a pending job to processing.
	MarkProcessing(ctx context.Context, id string) error
	// SetTotal records the discovered item count on a processing job.
	SetTotal(ctx context.Context, id string, total int) error
	// UpdateProgress raises progress on a processing job, clamped to total.
	// Lower values are ignored.
	UpdateProgress(ctx context.Context, id string, progress int) error
	// Complete moves a processing job to complete and records the artifact.
	Complete(ctx context.Context, id string, artifact Artifact) error
	// Fail moves a non-terminal job to failed.
	Fail(ctx context.Context, id, code, message string) error
	// Recent lists up to limit jobs, newest first.
	Recent(ctx context.Context, limit int) ([]*Job, error)
	// ListByStatus lists jobs in the given statuses, oldest first.
	ListByStatus(ctx context.Context, statuses ...Status) ([]*Job, error)
	// Walk visits every record, oldest first.
	Walk(ctx context.Context, fn WalkFunc) error
	// Delete removes the record and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)
	// Stats counts jobs per status.
	Stats(ctx context.Context) (map[Status]int, error)
	Close() error
}

// Open connects to the backend selected by cfg.Store.Backend.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch strings.ToLower(cfg.Store.Backend) {
	case "", "sqlite":
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, fmt.Errorf("ensure directories: %w", err)
		}
		return OpenSQLite(ctx, cfg.DatabasePath())
	case "postgres":
		return OpenPostgres(ctx, cfg.Store.PostgresURL)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "queue", "open", fmt.Sprintf("unsupported backend %q", cfg.Store.Backend), nil)
	}
}

// failureMessage guarantees a failed job always carries a non-empty error.
func failureMessage(code, message string) (string, string) {
	if strings.TrimSpace(message) == "" {
		message = "Export failed unexpectedly."
	}
	if strings.TrimSpace(code) == "" {
		code = "internal"
	}
	return code, message
}

// explainMiss classifies a conditional update that touched no rows.
func explainMiss(ctx context.Context, s Store, id, op string) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return services.Wrap(services.ErrNotFound, "queue", op, "job "+id, nil)
	}
	if job.Status.IsTerminal() {
		return services.Wrap(services.ErrTerminal, "queue", op, fmt.Sprintf("job %s is %s", id, job.Status), nil)
	}
	return services.Wrap(services.ErrConflict, "queue", op, fmt.Sprintf("job %s is %s", id, job.Status), nil)
}
