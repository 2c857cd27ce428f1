package telemetry

import (
	"runtime"
	"time"
)

func (m *Monitor) observeLoop() {
	defer m.wg.Done()
	t := time.NewTicker(m.cfg.ObserveEvery)
	defer t.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-t.C:
			m.observe(time.Now().UTC())
		}
	}
}

// observe refreshes the monitor's health from its current condition and
// emits a queue depth sample through the ordinary intake path. The sample
// competes for queue space like any other event and may itself be dropped.
func (m *Monitor) observe(now time.Time) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	cutoff := now.Add(-m.cfg.Lookback)

	m.mu.RLock()
	var total, failed, latencyN int
	var latencySum int64
	for _, ev := range m.recent.events() {
		if ev.Kind == KindQueue || ev.Timestamp.Before(cutoff) {
			continue
		}
		total++
		if !ev.Success {
			failed++
		}
		if ev.Kind == KindStage {
			latencySum += ev.Stage.LatencyMs
			latencyN++
		}
	}
	lastEventAt := m.lastEventAt
	m.mu.RUnlock()

	in := HealthInputs{
		Dropped:     m.dropped.Load(),
		MemoryBytes: int64(ms.Alloc),
	}
	if total > 0 {
		in.ErrorRate = float64(failed) / float64(total)
	}
	if latencyN > 0 {
		in.MeanLatencyMs = float64(latencySum) / float64(latencyN)
	}
	if !lastEventAt.IsZero() {
		in.StalenessSeconds = now.Sub(lastEventAt).Seconds()
	}

	score := ScoreHealth(in)
	h := Health{
		Score:            score,
		Status:           StatusFor(score),
		ErrorRate:        in.ErrorRate,
		MeanLatencyMs:    in.MeanLatencyMs,
		StalenessSeconds: in.StalenessSeconds,
		Dropped:          in.Dropped,
		MemoryBytes:      in.MemoryBytes,
	}
	m.healthMu.Lock()
	m.health = h
	m.healthMu.Unlock()

	m.Submit(Event{
		Kind:      KindQueue,
		Timestamp: now,
		Success:   true,
		Queue:     &QueueEvent{Depth: len(m.queue), Capacity: m.cfg.QueueCapacity},
	})
}

// Health returns the most recent self-observation.
func (m *Monitor) Health() Health {
	m.healthMu.RLock()
	defer m.healthMu.RUnlock()
	return m.health
}
