package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type eventSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *eventSink) send(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *eventSink) byType(typ string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, ev := range s.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func TestDispatcherSendsAudioChunk(t *testing.T) {
	t.Parallel()

	sink := &eventSink{}
	synth := &fakeSynthesizer{name: "piper", fn: func(ctx context.Context, text string) (*SynthesisResult, error) {
		return &SynthesisResult{Audio: []byte("RIFF-audio"), Format: "wav"}, nil
	}}

	d := NewDispatcher(context.Background(), synth, sink.send, nil, "marie", "ferme-12")
	d.Dispatch("Semez le blé en octobre.")

	if !d.Shutdown(time.Second) {
		t.Fatal("Shutdown did not drain in time")
	}

	chunks := sink.byType("audio_chunk")
	if len(chunks) != 1 {
		t.Fatalf("audio_chunk events = %d, want 1", len(chunks))
	}
	if chunks[0].Text != "Semez le blé en octobre." {
		t.Errorf("chunk text = %q", chunks[0].Text)
	}
	want := base64.StdEncoding.EncodeToString([]byte("RIFF-audio"))
	if chunks[0].Audio != want {
		t.Errorf("chunk audio = %q, want %q", chunks[0].Audio, want)
	}
}

func TestDispatcherReportsAudioErrorAndKeepsGoing(t *testing.T) {
	t.Parallel()

	sink := &eventSink{}
	synth := &fakeSynthesizer{name: "piper", fn: func(ctx context.Context, text string) (*SynthesisResult, error) {
		if strings.Contains(text, "refuse") {
			return nil, errors.New("backend 500")
		}
		return &SynthesisResult{Audio: []byte{1}, Format: "wav"}, nil
	}}

	d := NewDispatcher(context.Background(), synth, sink.send, nil, "marie", "ferme-12")
	d.Dispatch("Cette phrase va refuser.")
	d.Dispatch("Celle-ci passe.")

	if !d.Shutdown(time.Second) {
		t.Fatal("Shutdown did not drain in time")
	}

	if got := sink.byType("audio_error"); len(got) != 1 {
		t.Fatalf("audio_error events = %d, want 1", len(got))
	} else if got[0].Text != "Cette phrase va refuser." {
		t.Errorf("audio_error text = %q", got[0].Text)
	}
	if got := sink.byType("audio_chunk"); len(got) != 1 {
		t.Fatalf("audio_chunk events = %d, want 1", len(got))
	}
}

func TestDispatcherShutdownTimesOutOnStuckSynthesis(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	synth := &fakeSynthesizer{name: "slow", fn: func(ctx context.Context, text string) (*SynthesisResult, error) {
		<-release
		return nil, errors.New("too late")
	}}

	d := NewDispatcher(context.Background(), synth, func(Event) {}, nil, "marie", "ferme-12")
	d.Dispatch("Une phrase.")

	if d.Shutdown(50 * time.Millisecond) {
		t.Error("Shutdown reported a clean drain despite a stuck provider")
	}
	close(release)
}

func TestDispatcherStaysSilentAfterCancel(t *testing.T) {
	t.Parallel()

	sink := &eventSink{}
	synth := &fakeSynthesizer{name: "ctx-aware", fn: func(ctx context.Context, text string) (*SynthesisResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	d := NewDispatcher(context.Background(), synth, sink.send, nil, "marie", "ferme-12")
	d.Dispatch("Une phrase.")

	if !d.Shutdown(time.Second) {
		t.Fatal("Shutdown did not drain in time")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.events) != 0 {
		t.Errorf("events after cancel = %d, want 0", len(sink.events))
	}
}
