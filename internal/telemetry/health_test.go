package telemetry

import "testing"

func TestScoreHealth(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   HealthInputs
		want int
	}{
		{"idle process", HealthInputs{}, 100},
		{"mild error rate", HealthInputs{ErrorRate: 0.1}, 80},
		{"error rate at cap", HealthInputs{ErrorRate: 0.2}, 60},
		{"slow stages", HealthInputs{MeanLatencyMs: 1500}, 90},
		{"stale activity", HealthInputs{StalenessSeconds: 300}, 97},
		{"queue drops", HealthInputs{Dropped: 50}, 95},
		{"heavy memory", HealthInputs{MemoryBytes: 512 << 20}, 96},
		{
			"everything wrong",
			HealthInputs{ErrorRate: 1, MeanLatencyMs: 60000, StalenessSeconds: 7200, Dropped: 100000, MemoryBytes: 64 << 30},
			0,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ScoreHealth(tc.in); got != tc.want {
				t.Errorf("ScoreHealth(%+v) = %d, want %d", tc.in, got, tc.want)
			}
		})
	}
}

func TestScoreHealthClampsPathologicalInputs(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   HealthInputs
	}{
		{"error rate above one", HealthInputs{ErrorRate: 5.0}},
		{"negative error rate", HealthInputs{ErrorRate: -3}},
		{"negative memory reading", HealthInputs{MemoryBytes: -1 << 40}},
		{"negative latency", HealthInputs{MeanLatencyMs: -100}},
		{"absurd everything", HealthInputs{ErrorRate: 1e9, MeanLatencyMs: 1e12, StalenessSeconds: 1e12, Dropped: ^uint64(0), MemoryBytes: 1<<62 - 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ScoreHealth(tc.in)
			if got < 0 || got > 100 {
				t.Errorf("ScoreHealth(%+v) = %d, outside [0, 100]", tc.in, got)
			}
		})
	}
}

func TestStatusBands(t *testing.T) {
	t.Parallel()

	cases := []struct {
		score int
		want  string
	}{
		{100, StatusHealthy},
		{90, StatusHealthy},
		{89, StatusWarning},
		{70, StatusWarning},
		{69, StatusCritical},
		{0, StatusCritical},
	}
	for _, tc := range cases {
		if got := StatusFor(tc.score); got != tc.want {
			t.Errorf("StatusFor(%d) = %q, want %q", tc.score, got, tc.want)
		}
	}
}
