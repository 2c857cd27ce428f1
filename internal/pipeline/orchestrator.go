package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/croplink/voice-gateway/internal/metrics"
	"github.com/croplink/voice-gateway/internal/store"
	"github.com/croplink/voice-gateway/internal/telemetry"
)

// State tracks where a session is in the capture-to-response cycle.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateTranscribing
	StateGenerating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateTranscribing:
		return "transcribing"
	case StateGenerating:
		return "generating"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ContextRetriever supplies knowledge passages relevant to a question.
type ContextRetriever interface {
	RetrieveContext(ctx context.Context, query string) (string, error)
}

// EntrySaver persists journal entries.
type EntrySaver interface {
	SaveEntry(ctx context.Context, e *store.Entry) error
}

// Backends collects the fallible collaborators one session talks to. Any
// of them may be nil when the deployment does not provide that service;
// the session degrades per collaborator instead of refusing to start.
type Backends struct {
	Transcriber Transcriber
	Generator   TextGenerator
	Synthesizer Synthesizer
	Retriever   ContextRetriever
	Store       EntrySaver
	Validator   Validator
	Monitor     *telemetry.Monitor
}

// SessionConfig describes one websocket connection's session.
type SessionConfig struct {
	Channel        string
	ConnectionID   string
	UserID         string
	OrgID          string
	SystemPrompt   string
	Journal        bool
	DrainAudio     func() []byte
	Send           EventCallback
	Backends       Backends
	SynthesisGrace time.Duration
}

// turn holds one user→assistant exchange for conversation history.
type turn struct {
	user      string
	assistant string
}

const maxHistoryTurns = 8

// pendingEntry is a journal entry held back until the farmer confirms a
// flagged intervention.
type pendingEntry struct {
	id     string
	entry  *store.Entry
	reason string
}

// Session drives one connection through Idle → Recording → Transcribing →
// Generating → Idle. The owning read loop is the only caller; methods are
// not safe for concurrent use. Synthesis runs on tracked background
// goroutines owned by the session's dispatcher.
type Session struct {
	cfg        SessionConfig
	state      State
	history    []turn
	pending    *pendingEntry
	dispatcher *Dispatcher
}

// NewSession creates a session whose synthesis tasks are cancelled when ctx
// ends.
func NewSession(ctx context.Context, cfg SessionConfig) *Session {
	if cfg.SynthesisGrace <= 0 {
		cfg.SynthesisGrace = 5 * time.Second
	}
	return &Session{
		cfg:        cfg,
		dispatcher: NewDispatcher(ctx, cfg.Backends.Synthesizer, cfg.Send, cfg.Backends.Monitor, cfg.UserID, cfg.OrgID),
	}
}

// State returns the current pipeline state.
func (s *Session) State() State {
	return s.state
}

// StartVoiceInput acknowledges a capture request. Repeating the request
// while already recording is harmless; starting mid-pipeline is rejected.
func (s *Session) StartVoiceInput() {
	switch s.state {
	case StateIdle, StateRecording:
		s.state = StateRecording
		s.send(Event{Type: "voice_input_started"})
	default:
		s.send(Event{Type: "error", Message: "still processing the previous input"})
	}
}

// StopVoiceInput drains the captured audio and runs it through the full
// pipeline. The call returns when text delivery is complete; audio chunks
// may still be in flight on dispatcher goroutines.
func (s *Session) StopVoiceInput(ctx context.Context) {
	if s.state != StateRecording {
		s.send(Event{Type: "error", Message: "no active voice input"})
		return
	}
	s.state = StateTranscribing
	s.send(Event{Type: "processing_started"})

	audio := s.cfg.DrainAudio()
	if len(audio) == 0 {
		s.fail("no audio captured")
		return
	}

	transcript, ok := s.transcribe(ctx, audio)
	if !ok {
		return
	}

	s.send(Event{Type: "user_transcript", Text: transcript, IsFinal: true})

	if s.cfg.Journal {
		s.journalFlow(ctx, transcript)
		return
	}
	s.assistantFlow(ctx, transcript)
}

func (s *Session) transcribe(ctx context.Context, audio []byte) (string, bool) {
	if s.cfg.Backends.Transcriber == nil {
		s.fail("transcription unavailable")
		return "", false
	}

	start := time.Now()
	result, err := s.cfg.Backends.Transcriber.Transcribe(ctx, audio)
	if err != nil {
		s.observe(telemetry.StageFailure(telemetry.StageTranscription, s.cfg.UserID, s.cfg.OrgID, time.Since(start), err))
		slog.Error("transcription failed", "connection_id", s.cfg.ConnectionID, "error", err)
		s.fail("could not transcribe audio")
		return "", false
	}
	s.observe(telemetry.StageSuccess(telemetry.StageTranscription, s.cfg.UserID, s.cfg.OrgID, time.Since(start)))

	transcript := strings.TrimSpace(result.Text)
	if transcript == "" {
		s.fail("no speech recognized")
		return "", false
	}
	return transcript, true
}

// assistantFlow answers a question: retrieve knowledge, stream the model's
// tokens to the client, and dispatch each completed sentence for synthesis.
func (s *Session) assistantFlow(ctx context.Context, transcript string) {
	knowledge := s.retrieveContext(ctx, transcript)

	s.state = StateGenerating

	var sb sentenceBuffer
	onToken := func(token string) {
		s.send(Event{Type: "ai_text_chunk", Text: token})
		if sentence := sb.Add(token); sentence != "" {
			s.dispatcher.Dispatch(sentence)
		}
	}

	input := s.formatInput(transcript)
	start := time.Now()
	result, err := s.cfg.Backends.Generator.Generate(ctx, input, knowledge, s.cfg.SystemPrompt, onToken)
	if err != nil {
		s.observe(telemetry.StageFailure(telemetry.StageGeneration, s.cfg.UserID, s.cfg.OrgID, time.Since(start), err))
		slog.Error("generation failed", "connection_id", s.cfg.ConnectionID, "error", err)
		s.fail("response generation failed")
		return
	}

	if remainder := sb.Flush(); remainder != "" {
		s.dispatcher.Dispatch(remainder)
	}
	s.send(Event{Type: "ai_response_complete"})

	s.observe(telemetry.StageSuccess(telemetry.StageGeneration, s.cfg.UserID, s.cfg.OrgID, time.Since(start)))
	s.observe(telemetry.Event{
		Kind:      telemetry.KindAgent,
		Timestamp: time.Now().UTC(),
		UserID:    s.cfg.UserID,
		OrgID:     s.cfg.OrgID,
		Success:   true,
		Agent: &telemetry.AgentEvent{
			Model:              result.Model,
			LatencyMs:          result.LatencyMs,
			TimeToFirstTokenMs: result.TimeToFirstTokenMs,
			Tokens:             result.Tokens,
		},
	})

	slog.Info("response complete",
		"connection_id", s.cfg.ConnectionID,
		"latency_ms", result.LatencyMs,
		"ttft_ms", result.TimeToFirstTokenMs,
		"tokens", result.Tokens,
	)

	s.pushTurn(transcript, result.Text)
	s.state = StateIdle
}

// journalFlow validates a dictated entry and persists it, or holds it for
// confirmation when the validator flags a regulated intervention.
func (s *Session) journalFlow(ctx context.Context, transcript string) {
	entry := &store.Entry{
		ID:         uuid.NewString(),
		UserID:     s.cfg.UserID,
		OrgID:      s.cfg.OrgID,
		Channel:    s.cfg.Channel,
		Transcript: transcript,
		Status:     "saved",
	}

	if s.cfg.Backends.Validator != nil {
		validation, err := s.cfg.Backends.Validator.ValidateEntry(ctx, transcript)
		if err != nil {
			slog.Error("journal validation failed", "connection_id", s.cfg.ConnectionID, "error", err)
			s.fail("could not validate journal entry")
			return
		}
		if validation.RequiresConfirmation {
			s.pending = &pendingEntry{id: entry.ID, entry: entry, reason: validation.Reason}
			s.send(Event{
				Type:                 "final_validation",
				ConfirmationID:       entry.ID,
				Message:              validation.Message,
				RequiresConfirmation: true,
			})
			s.state = StateIdle
			return
		}
	}

	s.saveEntry(ctx, entry)
	s.state = StateIdle
}

// ConfirmationResponse resolves a held journal entry. Confirmed entries are
// persisted with a "confirmed" status; rejected entries are discarded.
func (s *Session) ConfirmationResponse(ctx context.Context, confirmationID string, confirmed bool) {
	if s.pending == nil || s.pending.id != confirmationID {
		s.send(Event{Type: "error", Message: "no pending confirmation"})
		return
	}
	held := s.pending
	s.pending = nil

	if !confirmed {
		s.send(Event{Type: "intervention_rejected", ConfirmationID: held.id, Reason: held.reason})
		return
	}

	held.entry.Status = "confirmed"
	s.saveEntry(ctx, held.entry)
}

func (s *Session) saveEntry(ctx context.Context, entry *store.Entry) {
	if s.cfg.Backends.Store == nil {
		s.fail("journal storage unavailable")
		return
	}

	start := time.Now()
	err := s.cfg.Backends.Store.SaveEntry(ctx, entry)
	ev := telemetry.Event{
		Kind:      telemetry.KindSave,
		Timestamp: time.Now().UTC(),
		UserID:    s.cfg.UserID,
		OrgID:     s.cfg.OrgID,
		Success:   err == nil,
		Save: &telemetry.SaveEvent{
			EntryID:   entry.ID,
			Status:    entry.Status,
			LatencyMs: time.Since(start).Milliseconds(),
		},
	}
	if err != nil {
		ev.Error = err.Error()
		s.observe(ev)
		slog.Error("journal save failed", "entry_id", entry.ID, "error", err)
		s.fail("could not save journal entry")
		return
	}
	s.observe(ev)
	metrics.JournalEntries.WithLabelValues(entry.Status).Inc()

	s.send(Event{
		Type:       "journal_saved",
		EntryID:    entry.ID,
		Transcript: entry.Transcript,
		Status:     entry.Status,
	})
}

func (s *Session) retrieveContext(ctx context.Context, transcript string) string {
	if s.cfg.Backends.Retriever == nil {
		return ""
	}

	start := time.Now()
	knowledge, err := s.cfg.Backends.Retriever.RetrieveContext(ctx, transcript)
	if err != nil {
		s.observe(telemetry.StageFailure(telemetry.StageRetrieval, s.cfg.UserID, s.cfg.OrgID, time.Since(start), err))
		slog.Warn("knowledge retrieval failed", "error", err)
		return ""
	}
	s.observe(telemetry.StageSuccess(telemetry.StageRetrieval, s.cfg.UserID, s.cfg.OrgID, time.Since(start)))
	return knowledge
}

// fail reports exactly one error to the client and returns to Idle.
func (s *Session) fail(message string) {
	s.send(Event{Type: "error", Message: message})
	s.state = StateIdle
}

func (s *Session) send(ev Event) {
	s.cfg.Send(ev)
}

func (s *Session) observe(ev telemetry.Event) {
	if s.cfg.Backends.Monitor != nil {
		s.cfg.Backends.Monitor.Submit(ev)
	}
}

func (s *Session) pushTurn(user, assistant string) {
	s.history = append(s.history, turn{user: user, assistant: assistant})
	if len(s.history) > maxHistoryTurns {
		s.history = s.history[len(s.history)-maxHistoryTurns:]
	}
}

// formatInput prepends conversation history to the current message.
func (s *Session) formatInput(current string) string {
	if len(s.history) == 0 {
		return current
	}
	var b strings.Builder
	for _, t := range s.history {
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", t.user, t.assistant)
	}
	fmt.Fprintf(&b, "User: %s", current)
	return b.String()
}

// Shutdown waits for in-flight synthesis, bounded by the grace period.
func (s *Session) Shutdown() {
	if !s.dispatcher.Shutdown(s.cfg.SynthesisGrace) {
		slog.Warn("synthesis tasks did not drain before grace expired", "connection_id", s.cfg.ConnectionID)
	}
}
