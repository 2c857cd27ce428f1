package pipeline

import (
	"context"
	"encoding/base64"
	"log/slog"
	"sync"
	"time"

	"github.com/croplink/voice-gateway/internal/metrics"
	"github.com/croplink/voice-gateway/internal/telemetry"
)

// Dispatcher synthesizes completed sentences in the background so text
// streaming never waits on audio. Each sentence gets its own goroutine;
// Shutdown cancels in-flight work and waits for it, bounded by a grace
// period, so a disconnect cannot leak synthesis goroutines.
type Dispatcher struct {
	synth   Synthesizer
	send    EventCallback
	monitor *telemetry.Monitor
	userID  string
	orgID   string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDispatcher(parent context.Context, synth Synthesizer, send EventCallback, monitor *telemetry.Monitor, userID, orgID string) *Dispatcher {
	ctx, cancel := context.WithCancel(parent)
	return &Dispatcher{
		synth:   synth,
		send:    send,
		monitor: monitor,
		userID:  userID,
		orgID:   orgID,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Dispatch queues one sentence for synthesis and returns immediately.
// A failed sentence reports audio_error and is otherwise skipped; the
// surrounding response keeps streaming.
func (d *Dispatcher) Dispatch(text string) {
	if text == "" || d.synth == nil {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		start := time.Now()
		result, err := d.synth.Synthesize(d.ctx, text)
		if err != nil {
			if d.ctx.Err() != nil {
				return
			}
			if d.monitor != nil {
				d.monitor.Submit(telemetry.StageFailure(telemetry.StageSynthesis, d.userID, d.orgID, time.Since(start), err))
			}
			slog.Warn("sentence synthesis failed", "error", err, "chars", len(text))
			d.send(Event{
				Type:    "audio_error",
				Text:    text,
				Message: "audio generation failed for this sentence",
			})
			return
		}

		if d.monitor != nil {
			d.monitor.Submit(telemetry.StageSuccess(telemetry.StageSynthesis, d.userID, d.orgID, time.Since(start)))
		}
		metrics.AudioChunks.Inc()
		d.send(Event{
			Type:  "audio_chunk",
			Text:  text,
			Audio: base64.StdEncoding.EncodeToString(result.Audio),
		})
	}()
}

// Shutdown cancels in-flight synthesis and waits up to grace for the
// goroutines to finish. It reports whether everything drained in time.
func (d *Dispatcher) Shutdown(grace time.Duration) bool {
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(grace):
		return false
	}
}
