package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/croplink/voice-gateway/internal/metrics"
	"github.com/croplink/voice-gateway/internal/pipeline"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandlerConfig holds the shared collaborators for every session on one
// channel. The assistant and journal endpoints each get their own Handler
// over the same Registry and Backends.
type HandlerConfig struct {
	Channel        Channel
	Registry       *Registry
	Verifier       CredentialVerifier
	Backends       pipeline.Backends
	SystemPrompt   string
	MaxConcurrent  int
	SynthesisGrace time.Duration
}

// Handler manages websocket sessions with admission control.
type Handler struct {
	cfg HandlerConfig
	sem chan struct{}
}

// NewHandler creates a websocket handler with a concurrency limit.
func NewHandler(cfg HandlerConfig) *Handler {
	maxConc := cfg.MaxConcurrent
	if maxConc <= 0 {
		maxConc = 100
	}
	return &Handler{
		cfg: cfg,
		sem: make(chan struct{}, maxConc),
	}
}

// clientMessage is one inbound text frame.
type clientMessage struct {
	Type           string `json:"type"`
	Timestamp      int64  `json:"timestamp,omitempty"`
	ConfirmationID string `json:"confirmation_id,omitempty"`
	Confirmed      bool   `json:"confirmed,omitempty"`
}

// ServeHTTP verifies the credential, upgrades the connection, and runs the
// session. Returns 503 when at capacity. A bad credential still upgrades,
// so the client receives a proper close frame instead of a failed
// handshake it cannot inspect.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	default:
		metrics.ConnectionsRejected.Inc()
		http.Error(w, "at capacity", http.StatusServiceUnavailable)
		return
	}

	var principal Principal
	verr := ErrMissingCredential
	if h.cfg.Verifier != nil {
		principal, verr = h.cfg.Verifier.Verify(r)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	if verr != nil {
		slog.Warn("credential rejected", "channel", h.cfg.Channel, "error", verr)
		deadline := time.Now().Add(5 * time.Second)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthorized"), deadline)
		return
	}

	metrics.ConnectionsActive.Inc()
	metrics.ConnectionsTotal.Inc()
	defer metrics.ConnectionsActive.Dec()

	h.runSession(conn, principal)
}

func (h *Handler) runSession(conn *websocket.Conn, principal Principal) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	identity := Identity{
		Channel:     h.cfg.Channel,
		UserID:      principal.UserID,
		OrgID:       principal.OrgID,
		ConnectedAt: time.Now().UnixMilli(),
	}
	connID := uuid.NewString()

	c, err := h.cfg.Registry.Register(identity, connID, newEventSender(conn))
	if err != nil {
		slog.Error("register connection", "error", err)
		return
	}
	key := identity.Key()
	defer h.cfg.Registry.Unregister(key)

	c.Send(pipeline.Event{Type: "connection", ConnectionID: connID, Message: "connected"})

	sess := pipeline.NewSession(ctx, pipeline.SessionConfig{
		Channel:        string(h.cfg.Channel),
		ConnectionID:   connID,
		UserID:         principal.UserID,
		OrgID:          principal.OrgID,
		SystemPrompt:   h.cfg.SystemPrompt,
		Journal:        h.cfg.Channel == ChannelJournal,
		DrainAudio:     func() []byte { return h.cfg.Registry.DrainAudio(key) },
		Send:           c.Send,
		Backends:       h.cfg.Backends,
		SynthesisGrace: h.cfg.SynthesisGrace,
	})
	defer sess.Shutdown()

	slog.Info("session started",
		"channel", h.cfg.Channel,
		"connection_id", connID,
		"org_id", principal.OrgID,
		"user_id", principal.UserID,
	)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			slog.Info("connection closed", "connection_id", connID, "error", err)
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			total := h.cfg.Registry.AppendAudio(key, data)
			metrics.AudioBytesReceived.Add(float64(len(data)))
			c.Send(pipeline.Event{Type: "audio_received", Bytes: len(data), TotalBytes: total})
		case websocket.TextMessage:
			h.dispatch(ctx, sess, c.Send, data)
		}
	}
}

// dispatch routes one inbound control message to the session.
func (h *Handler) dispatch(ctx context.Context, sess *pipeline.Session, send pipeline.EventCallback, data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		send(pipeline.Event{Type: "error", Message: "malformed message"})
		return
	}

	switch msg.Type {
	case "start_voice_input":
		sess.StartVoiceInput()
	case "stop_voice_input":
		sess.StopVoiceInput(ctx)
	case "ping":
		send(pipeline.Event{Type: "pong", Timestamp: msg.Timestamp})
	case "confirmation_response":
		sess.ConfirmationResponse(ctx, msg.ConfirmationID, msg.Confirmed)
	default:
		send(pipeline.Event{Type: "error", Message: fmt.Sprintf("unknown message type %q", msg.Type)})
	}
}

// newEventSender serializes all writes to one socket behind a mutex so
// dispatcher goroutines and the read loop never interleave frames.
func newEventSender(conn *websocket.Conn) pipeline.EventCallback {
	var mu sync.Mutex
	return func(ev pipeline.Event) {
		mu.Lock()
		defer mu.Unlock()

		jsonBytes, err := json.Marshal(ev)
		if err != nil {
			return
		}
		if err = conn.WriteMessage(websocket.TextMessage, jsonBytes); err != nil {
			slog.Error("write event", "type", ev.Type, "error", err)
		}
	}
}
