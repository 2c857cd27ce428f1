package telemetry

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestWriteFlatTextOneMetricPerLine(t *testing.T) {
	t.Parallel()

	m := newMonitor(Config{})
	now := time.Now().UTC()
	m.consume(stageAt(now, StageTranscription, "marie", "ferme-12", 100, true))
	m.consume(stageAt(now, StageTranscription, "marie", "ferme-12", 200, false))
	m.recompute(now)

	var buf bytes.Buffer
	m.Snapshot().WriteFlatText(&buf)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) < 10 {
		t.Fatalf("expected a full metrics document, got %d lines:\n%s", len(lines), buf.String())
	}
	for _, line := range lines {
		if fields := strings.Fields(line); len(fields) != 2 {
			t.Errorf("line %q is not a single name-value pair", line)
		}
	}

	out := buf.String()
	for _, want := range []string{
		"gateway_queue_capacity 10000",
		"gateway_events_consumed_total 2",
		`gateway_stage_count_total{stage="transcription"} 2`,
		`gateway_stage_failures_total{stage="transcription"} 1`,
		`gateway_stage_mean_ms{stage="transcription"} 150.00`,
		`gateway_identity_success_ratio{identity="ferme-12/marie"} 0.5000`,
		"gateway_health_score 100",
	} {
		if !strings.Contains(out, want+"\n") {
			t.Errorf("flat text missing line %q:\n%s", want, out)
		}
	}
}
