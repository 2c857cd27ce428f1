package telemetry

import "math"

const (
	StatusHealthy  = "healthy"
	StatusWarning  = "warning"
	StatusCritical = "critical"
)

// Health is the monitor's own condition, refreshed on the observation
// cadence.
type Health struct {
	Score            int     `json:"score"`
	Status           string  `json:"status"`
	ErrorRate        float64 `json:"error_rate"`
	MeanLatencyMs    float64 `json:"mean_latency_ms"`
	StalenessSeconds float64 `json:"staleness_seconds"`
	Dropped          uint64  `json:"dropped"`
	MemoryBytes      int64   `json:"memory_bytes"`
}

type HealthInputs struct {
	ErrorRate        float64
	MeanLatencyMs    float64
	StalenessSeconds float64
	Dropped          uint64
	MemoryBytes      int64
}

// ScoreHealth maps monitor condition onto a 0-100 score. Each input yields
// an independent deduction capped at its own ceiling, and the final score
// is clamped, so inputs outside their expected ranges still produce a score
// inside [0, 100].
func ScoreHealth(in HealthInputs) int {
	score := 100.0
	score -= deduction(in.ErrorRate*200, 40)
	score -= deduction((in.MeanLatencyMs-500)/100, 20)
	score -= deduction((in.StalenessSeconds-120)/60, 15)
	score -= deduction(float64(in.Dropped)/10, 15)
	score -= deduction((float64(in.MemoryBytes)/(1<<20)-256)/64, 10)
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return int(math.Round(score))
}

func deduction(v, limit float64) float64 {
	if v < 0 {
		return 0
	}
	if v > limit {
		return limit
	}
	return v
}

// StatusFor maps a score onto the reported status band.
func StatusFor(score int) string {
	switch {
	case score >= 90:
		return StatusHealthy
	case score >= 70:
		return StatusWarning
	default:
		return StatusCritical
	}
}
