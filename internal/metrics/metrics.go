package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_connections_active",
		Help: "Currently open websocket connections",
	})

	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_connections_total",
		Help: "Total websocket connections accepted",
	})

	ConnectionsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_connections_rejected_total",
		Help: "Connections refused at the admission semaphore",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_stage_duration_seconds",
		Help:    "Per-stage latency",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0},
	}, []string{"stage"})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_errors_total",
		Help: "Error counts by stage",
	}, []string{"stage", "error_type"})

	AudioChunks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_audio_chunks_total",
		Help: "Synthesized audio chunks delivered to clients",
	})

	AudioBytesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_audio_bytes_received_total",
		Help: "Raw audio bytes received on binary frames",
	})

	JournalEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_journal_entries_total",
		Help: "Journal entries by final status",
	}, []string{"status"})

	TelemetryDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_telemetry_dropped_total",
		Help: "Telemetry events rejected by the full ingestion queue",
	})
)
