package telemetry

import (
	"testing"
	"time"
)

func TestRecomputeStageMeanWithinWindowBounds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		latencies []int64
		want      float64
	}{
		{"single sample", []int64{120}, 120},
		{"even spread", []int64{100, 200, 300}, 200},
		{"skewed", []int64{10, 10, 10, 970}, 250},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newMonitor(Config{})
			now := time.Now().UTC()
			var lo, hi int64 = tc.latencies[0], tc.latencies[0]
			for _, ms := range tc.latencies {
				m.consume(stageAt(now, StageTranscription, "u", "o", ms, true))
				if ms < lo {
					lo = ms
				}
				if ms > hi {
					hi = ms
				}
			}
			m.recompute(now)

			snap := m.Snapshot()
			mean := snap.Stages[StageTranscription].MeanMs
			if mean != tc.want {
				t.Errorf("mean = %v, want %v", mean, tc.want)
			}
			if mean < float64(lo) || mean > float64(hi) {
				t.Errorf("mean %v outside window bounds [%d, %d]", mean, lo, hi)
			}
		})
	}
}

func TestRecomputeRespectsWindowSize(t *testing.T) {
	t.Parallel()

	m := newMonitor(Config{WindowSize: 3})
	now := time.Now().UTC()
	for _, ms := range []int64{1000, 1000, 10, 20, 30} {
		m.consume(stageAt(now, StageSynthesis, "u", "o", ms, true))
	}
	m.recompute(now)

	snap := m.Snapshot()
	st := snap.Stages[StageSynthesis]
	if st.WindowSize != 3 {
		t.Errorf("window size = %d, want 3", st.WindowSize)
	}
	if st.MeanMs != 20 {
		t.Errorf("mean = %v, want 20 (oldest samples evicted)", st.MeanMs)
	}
	if st.Count != 5 {
		t.Errorf("count = %d, want 5 (totals outlive the window)", st.Count)
	}
}

func TestRecomputeIdentityRatioUsesLookback(t *testing.T) {
	t.Parallel()

	m := newMonitor(Config{Lookback: 10 * time.Minute})
	now := time.Now().UTC()
	old := now.Add(-time.Hour)

	// Two stale events would drag the ratio to zero if the lookback filter
	// were ignored.
	m.consume(stageAt(old, StageGeneration, "jean", "coop-7", 50, false))
	m.consume(stageAt(old, StageGeneration, "jean", "coop-7", 50, false))
	m.consume(stageAt(now.Add(-time.Minute), StageGeneration, "jean", "coop-7", 50, true))
	m.consume(stageAt(now.Add(-time.Minute), StageGeneration, "jean", "coop-7", 50, false))
	m.recompute(now)

	snap := m.Snapshot()
	id, ok := snap.Identities["coop-7/jean"]
	if !ok {
		t.Fatalf("identity missing from snapshot: %+v", snap.Identities)
	}
	if id.Events != 2 {
		t.Errorf("events in horizon = %d, want 2", id.Events)
	}
	if id.Ratio != 0.5 {
		t.Errorf("success ratio = %v, want 0.5", id.Ratio)
	}
}

func TestRecomputeSkipsIdleIdentities(t *testing.T) {
	t.Parallel()

	m := newMonitor(Config{Lookback: time.Minute})
	now := time.Now().UTC()
	m.consume(stageAt(now.Add(-time.Hour), StageGeneration, "paul", "coop-7", 5, true))
	m.recompute(now)

	snap := m.Snapshot()
	if len(snap.Identities) != 0 {
		t.Errorf("identities with no in-horizon events should be skipped, got %+v", snap.Identities)
	}
}
