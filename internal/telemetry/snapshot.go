package telemetry

import (
	"fmt"
	"io"
	"sort"
	"time"
)

type Snapshot struct {
	GeneratedAt time.Time                   `json:"generated_at"`
	Queue       QueueSnapshot               `json:"queue"`
	Stages      map[string]StageSnapshot    `json:"stages"`
	Agent       AgentSnapshot               `json:"agent"`
	Identities  map[string]IdentitySnapshot `json:"identities"`
	Saves       uint64                      `json:"saves"`
	Monitor     MonitorSnapshot             `json:"monitor"`
	Health      Health                      `json:"health"`
}

type QueueSnapshot struct {
	Depth       int     `json:"depth"`
	Capacity    int     `json:"capacity"`
	Accepted    uint64  `json:"accepted"`
	Consumed    uint64  `json:"consumed"`
	Dropped     uint64  `json:"dropped"`
	Utilization float64 `json:"utilization"`
}

type StageSnapshot struct {
	Count      uint64  `json:"count"`
	Failures   uint64  `json:"failures"`
	WindowSize int     `json:"window_size"`
	MeanMs     float64 `json:"mean_ms,omitempty"`
}

type AgentSnapshot struct {
	Runs             uint64  `json:"runs"`
	Tokens           uint64  `json:"tokens"`
	MeanLatencyMs    float64 `json:"mean_latency_ms"`
	MeanFirstTokenMs float64 `json:"mean_first_token_ms"`
}

type IdentitySnapshot struct {
	Events    int       `json:"events"`
	Succeeded int       `json:"succeeded"`
	Ratio     float64   `json:"success_ratio"`
	LastSeen  time.Time `json:"last_seen"`
}

type MonitorSnapshot struct {
	LastEventAt  time.Time `json:"last_event_at"`
	LastError    string    `json:"last_error,omitempty"`
	CleanupRuns  uint64    `json:"cleanup_runs"`
	AggregatedAt time.Time `json:"aggregated_at"`
}

// Snapshot assembles the current monitoring state. Stage means and identity
// ratios come from the aggregator's last pass, counters from the live
// state.
func (m *Monitor) Snapshot() Snapshot {
	now := time.Now().UTC()

	m.aggMu.RLock()
	agg := m.agg
	m.aggMu.RUnlock()

	m.mu.RLock()
	stages := make(map[string]StageSnapshot, len(m.stages))
	for name, st := range m.stages {
		s := StageSnapshot{Count: st.count, Failures: st.failures, WindowSize: len(st.window)}
		if mean, ok := agg.stageMeans[name]; ok {
			s.MeanMs = mean
		}
		stages[name] = s
	}
	agent := AgentSnapshot{Runs: m.agent.runs, Tokens: m.agent.tokens}
	if m.agent.runs > 0 {
		agent.MeanLatencyMs = float64(m.agent.latencyTotalMs) / float64(m.agent.runs)
	}
	if m.agent.firstTokenRuns > 0 {
		agent.MeanFirstTokenMs = float64(m.agent.firstTokenTotalMs) / float64(m.agent.firstTokenRuns)
	}
	saves := m.saves
	mon := MonitorSnapshot{
		LastEventAt:  m.lastEventAt,
		LastError:    m.lastError,
		CleanupRuns:  m.cleanupRuns,
		AggregatedAt: agg.computedAt,
	}
	m.mu.RUnlock()

	identities := make(map[string]IdentitySnapshot, len(agg.ratios))
	for key, r := range agg.ratios {
		identities[key] = IdentitySnapshot{Events: r.Total, Succeeded: r.Succeeded, Ratio: r.Ratio, LastSeen: r.LastSeen}
	}

	depth := len(m.queue)
	return Snapshot{
		GeneratedAt: now,
		Queue: QueueSnapshot{
			Depth:       depth,
			Capacity:    m.cfg.QueueCapacity,
			Accepted:    m.accepted.Load(),
			Consumed:    m.consumed.Load(),
			Dropped:     m.dropped.Load(),
			Utilization: float64(depth) / float64(m.cfg.QueueCapacity),
		},
		Stages:     stages,
		Agent:      agent,
		Identities: identities,
		Saves:      saves,
		Monitor:    mon,
		Health:     m.Health(),
	}
}

// WriteFlatText renders the snapshot as plain text metrics, one gauge or
// counter per line, stage and identity series sorted for stable output.
func (s Snapshot) WriteFlatText(w io.Writer) {
	fmt.Fprintf(w, "gateway_queue_depth %d\n", s.Queue.Depth)
	fmt.Fprintf(w, "gateway_queue_capacity %d\n", s.Queue.Capacity)
	fmt.Fprintf(w, "gateway_queue_utilization %.4f\n", s.Queue.Utilization)
	fmt.Fprintf(w, "gateway_events_accepted_total %d\n", s.Queue.Accepted)
	fmt.Fprintf(w, "gateway_events_consumed_total %d\n", s.Queue.Consumed)
	fmt.Fprintf(w, "gateway_events_dropped_total %d\n", s.Queue.Dropped)
	fmt.Fprintf(w, "gateway_saves_total %d\n", s.Saves)
	fmt.Fprintf(w, "gateway_cleanup_runs_total %d\n", s.Monitor.CleanupRuns)

	names := make([]string, 0, len(s.Stages))
	for name := range s.Stages {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		st := s.Stages[name]
		fmt.Fprintf(w, "gateway_stage_count_total{stage=%q} %d\n", name, st.Count)
		fmt.Fprintf(w, "gateway_stage_failures_total{stage=%q} %d\n", name, st.Failures)
		if st.MeanMs > 0 {
			fmt.Fprintf(w, "gateway_stage_mean_ms{stage=%q} %.2f\n", name, st.MeanMs)
		}
	}

	fmt.Fprintf(w, "gateway_agent_runs_total %d\n", s.Agent.Runs)
	fmt.Fprintf(w, "gateway_agent_tokens_total %d\n", s.Agent.Tokens)
	if s.Agent.Runs > 0 {
		fmt.Fprintf(w, "gateway_agent_mean_latency_ms %.2f\n", s.Agent.MeanLatencyMs)
		fmt.Fprintf(w, "gateway_agent_mean_first_token_ms %.2f\n", s.Agent.MeanFirstTokenMs)
	}

	keys := make([]string, 0, len(s.Identities))
	for key := range s.Identities {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(w, "gateway_identity_success_ratio{identity=%q} %.4f\n", key, s.Identities[key].Ratio)
	}

	fmt.Fprintf(w, "gateway_health_score %d\n", s.Health.Score)
	fmt.Fprintf(w, "gateway_health_error_rate %.4f\n", s.Health.ErrorRate)
	fmt.Fprintf(w, "gateway_health_memory_bytes %d\n", s.Health.MemoryBytes)
}
