package workflow

import (
	"context"
	"sort"
	"time"

	"folderexport/internal/logging"
	"folderexport/internal/queue"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running            bool
	Workers            int
	Queued             int
	InFlight           []string
	Processed          int
	LastJobID          string
	LastError          string
	LastCleanup        time.Time
	LastCleanupRemoved int
	LastCleanupError   string
	QueueStats         map[queue.Status]int
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:            m.running,
		Workers:            m.workers,
		Queued:             len(m.queued),
		Processed:          m.processed,
		LastJobID:          m.lastJobID,
		LastCleanup:        m.lastCleanup,
		LastCleanupRemoved: m.cleanupRemoved,
	}
	for id := range m.inFlight {
		summary.InFlight = append(summary.InFlight, id)
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastCleanupErr != nil {
		summary.LastCleanupError = m.lastCleanupErr.Error()
	}
	m.mu.RUnlock()
	sort.Strings(summary.InFlight)

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}
	summary.QueueStats = stats
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
