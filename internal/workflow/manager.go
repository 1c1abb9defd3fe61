package workflow

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"folderexport/internal/config"
	"folderexport/internal/logging"
	"folderexport/internal/queue"
	"folderexport/internal/retention"
	"folderexport/internal/services"
)

// Executor runs one job to a terminal state.
type Executor interface {
	Execute(ctx context.Context, jobID string) error
}

// Cleaner expires old artifacts.
type Cleaner interface {
	CleanupExpired(ctx context.Context) (retention.Result, error)
}

// Manager coordinates export execution across a fixed set of workers.
type Manager struct {
	store           queue.Store
	executor        Executor
	cleaner         Cleaner
	logger          *slog.Logger
	workers         int
	pollInterval    time.Duration
	cleanupInterval time.Duration

	jobs chan string

	mu       sync.RWMutex
	queued   map[string]struct{}
	inFlight map[string]struct{}
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	lastErr        error
	lastJobID      string
	processed      int
	lastCleanup    time.Time
	lastCleanupErr error
	cleanupRemoved int
}

// NewManager constructs a workflow manager sized from cfg. cleaner may be nil
// to disable the retention loop.
func NewManager(cfg *config.Config, store queue.Store, executor Executor, cleaner Cleaner, logger *slog.Logger) *Manager {
	workers := cfg.Workflow.Workers
	if workers <= 0 {
		workers = 1
	}
	size := cfg.Workflow.QueueSize
	if size <= 0 {
		size = workers
	}
	return &Manager{
		store:           store,
		executor:        executor,
		cleaner:         cleaner,
		logger:          logging.NewComponentLogger(logger, "workflow"),
		workers:         workers,
		pollInterval:    cfg.PollInterval(),
		cleanupInterval: cfg.CleanupInterval(),
		jobs:            make(chan string, size),
		queued:          make(map[string]struct{}),
		inFlight:        make(map[string]struct{}),
	}
}

// Enqueue hands jobID to the worker pool without blocking. A job that is
// already queued or running is ignored; a full buffer leaves the job pending
// for the poller.
func (m *Manager) Enqueue(ctx context.Context, jobID string) error {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return services.Wrap(services.ErrValidation, "workflow", "enqueue", "job id is required", nil)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queued[jobID]; ok {
		return nil
	}
	if _, ok := m.inFlight[jobID]; ok {
		return nil
	}
	select {
	case m.jobs <- jobID:
		m.queued[jobID] = struct{}{}
	default:
		logging.WithContext(services.WithJobID(ctx, jobID), m.logger).Info("worker queue full; job stays pending",
			logging.String(logging.FieldEventType, "queue_full"),
			logging.Int("capacity", cap(m.jobs)),
		)
	}
	return nil
}

// claim moves jobID from queued to in-flight. It reports false when another
// worker already holds the job.
func (m *Manager) claim(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.queued, jobID)
	if _, busy := m.inFlight[jobID]; busy {
		return false
	}
	m.inFlight[jobID] = struct{}{}
	return true
}

func (m *Manager) release(jobID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inFlight, jobID)
	m.lastJobID = jobID
	m.processed++
	if err != nil {
		m.lastErr = err
	}
}
