package telemetry

import (
	"log/slog"
	"time"
)

func (m *Monitor) cleanupLoop() {
	defer m.wg.Done()
	t := time.NewTicker(m.cfg.CleanupEvery)
	defer t.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-t.C:
			m.sweep(time.Now().UTC())
		}
	}
}

// sweep removes identity histories whose most recent event is strictly
// older than the retention horizon. Candidates are collected first and
// rechecked under the write lock, so an identity that turned active between
// the two passes survives.
func (m *Monitor) sweep(now time.Time) {
	horizon := now.Add(-m.cfg.Retention)

	m.mu.RLock()
	var stale []string
	for key, h := range m.identities {
		if h.lastSeen.Before(horizon) {
			stale = append(stale, key)
		}
	}
	m.mu.RUnlock()

	m.mu.Lock()
	removed := 0
	for _, key := range stale {
		if h, ok := m.identities[key]; ok && h.lastSeen.Before(horizon) {
			delete(m.identities, key)
			removed++
		}
	}
	m.cleanupRuns++
	m.mu.Unlock()

	if removed > 0 {
		slog.Info("telemetry cleanup removed idle identities", "removed", removed, "retention", m.cfg.Retention)
	}
}
