package retention

import "time"

// SetClock overrides the manager clock.
func SetClock(m *Manager, now func() time.Time) {
	m.now = now
}
