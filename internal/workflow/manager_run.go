package workflow

import (
	"context"
	"errors"
	"time"

	"folderexport/internal/logging"
	"folderexport/internal/queue"
	"folderexport/internal/services"
)

// Start launches the workers, the pending poller, and the cleanup loop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.executor == nil {
		m.mu.Unlock()
		return errors.New("workflow executor not configured")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	loops := m.workers + 1
	if m.cleaner != nil && m.cleanupInterval > 0 {
		loops++
	}
	m.wg.Add(loops)
	m.mu.Unlock()

	for i := 0; i < m.workers; i++ {
		go m.runWorker(runCtx, i+1)
	}
	go m.runPoller(runCtx)
	if m.cleaner != nil && m.cleanupInterval > 0 {
		go m.runCleanup(runCtx)
	}

	m.logger.Info("workflow started",
		logging.String(logging.FieldEventType, "workflow_started"),
		logging.Int("workers", m.workers),
		logging.Duration("poll_interval", m.pollInterval),
		logging.Duration("cleanup_interval", m.cleanupInterval),
	)
	return nil
}

// Stop terminates background processing and waits for running jobs to reach
// a terminal state.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow stopped", logging.String(logging.FieldEventType, "workflow_stopped"))
}

func (m *Manager) runWorker(ctx context.Context, worker int) {
	defer m.wg.Done()
	logger := m.logger.With(logging.Int("worker", worker))
	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-m.jobs:
			if !m.claim(jobID) {
				continue
			}
			// Jobs run to completion even when the manager is stopping.
			jobCtx := services.WithJobID(context.WithoutCancel(ctx), jobID)
			err := m.executor.Execute(jobCtx, jobID)
			if err != nil {
				logging.WithContext(jobCtx, logger).Debug("job finished with error", logging.Error(err))
			}
			m.release(jobID, err)
		}
	}
}

func (m *Manager) runPoller(ctx context.Context) {
	defer m.wg.Done()
	interval := m.pollInterval
	if interval <= 0 {
		interval = time.Second
	}
	m.enqueuePending(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.enqueuePending(ctx)
		}
	}
}

// enqueuePending feeds persisted pending jobs to the pool, oldest first.
func (m *Manager) enqueuePending(ctx context.Context) {
	jobs, err := m.store.ListByStatus(ctx, queue.StatusPending)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		m.setLastError(err)
		logging.ErrorWithContext(m.logger, "failed to list pending jobs", "queue_fetch_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check job store access"),
		)
		return
	}
	for _, job := range jobs {
		if err := m.Enqueue(ctx, job.ID); err != nil {
			m.setLastError(err)
		}
	}
}

func (m *Manager) runCleanup(ctx context.Context) {
	defer m.wg.Done()
	m.cleanupOnce(ctx)
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.cleanupOnce(ctx)
		}
	}
}

func (m *Manager) cleanupOnce(ctx context.Context) {
	result, err := m.cleaner.CleanupExpired(ctx)
	m.mu.Lock()
	m.lastCleanup = time.Now()
	m.lastCleanupErr = err
	m.cleanupRemoved = result.Count()
	m.mu.Unlock()
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.WarnWithContext(m.logger, "retention sweep failed", "retention_sweep_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check job store access and export_dir permissions"),
			logging.String(logging.FieldImpact, "expired exports kept until the next sweep"),
		)
	}
}
