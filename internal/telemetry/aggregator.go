package telemetry

import "time"

type aggregates struct {
	computedAt time.Time
	stageMeans map[string]float64
	ratios     map[string]identityRatio
}

type identityRatio struct {
	Total     int
	Succeeded int
	Ratio     float64
	LastSeen  time.Time
}

func (m *Monitor) aggregateLoop() {
	defer m.wg.Done()
	t := time.NewTicker(m.cfg.AggregateEvery)
	defer t.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-t.C:
			m.recompute(time.Now().UTC())
		}
	}
}

// recompute derives the rolling aggregates: mean latency per stage over
// that stage's bounded window, and per-identity success ratios over the
// lookback horizon. The horizon is a timestamp filter over each identity's
// ring; ring capacity, not the horizon, bounds what is retained. Stages
// with empty windows are skipped rather than reported as zero.
func (m *Monitor) recompute(now time.Time) {
	cutoff := now.Add(-m.cfg.Lookback)

	m.mu.RLock()
	means := make(map[string]float64, len(m.stages))
	for name, st := range m.stages {
		if len(st.window) == 0 {
			continue
		}
		var sum int64
		for _, ms := range st.window {
			sum += ms
		}
		means[name] = float64(sum) / float64(len(st.window))
	}
	ratios := make(map[string]identityRatio, len(m.identities))
	for key, h := range m.identities {
		var total, succeeded int
		for _, ev := range h.events.events() {
			if ev.Timestamp.Before(cutoff) {
				continue
			}
			total++
			if ev.Success {
				succeeded++
			}
		}
		if total == 0 {
			continue
		}
		ratios[key] = identityRatio{
			Total:     total,
			Succeeded: succeeded,
			Ratio:     float64(succeeded) / float64(total),
			LastSeen:  h.lastSeen,
		}
	}
	m.mu.RUnlock()

	m.aggMu.Lock()
	m.agg = aggregates{computedAt: now, stageMeans: means, ratios: ratios}
	m.aggMu.Unlock()
}
