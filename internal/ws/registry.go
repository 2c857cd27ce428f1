package ws

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/croplink/voice-gateway/internal/audio"
	"github.com/croplink/voice-gateway/internal/pipeline"
)

// Channel is the conversation surface a connection is bound to.
type Channel string

const (
	ChannelAssistant Channel = "voice-assistant"
	ChannelJournal   Channel = "voice-journal"
)

// Identity names one connection: the channel it arrived on, who is
// speaking, the organization they act for, and when the socket was
// accepted. Two sockets from the same user differ by ConnectedAt.
type Identity struct {
	Channel     Channel
	UserID      string
	OrgID       string
	ConnectedAt int64
}

func (id Identity) Key() string {
	return fmt.Sprintf("%s/%s/%s/%d", id.Channel, id.OrgID, id.UserID, id.ConnectedAt)
}

// Conn is the registry's record of one active socket: its identity, its
// audio buffer, and the handle for sending structured events back over
// the wire. The audio buffer is owned by the connection's read loop;
// nothing else drains it. Send is safe for concurrent use.
type Conn struct {
	ID       string
	Identity Identity
	Buffer   *audio.Buffer
	Send     pipeline.EventCallback
}

// Registry tracks active connections, their audio buffers, and their
// outbound send handles.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Conn)}
}

// Register adds a connection under its identity key. Registering a key that
// is already present is a caller bug and returns an error rather than
// silently replacing the live session.
func (r *Registry) Register(id Identity, connID string, send pipeline.EventCallback) (*Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := id.Key()
	if _, ok := r.conns[key]; ok {
		return nil, fmt.Errorf("connection %q already registered", key)
	}
	c := &Conn{ID: connID, Identity: id, Buffer: audio.NewBuffer(), Send: send}
	r.conns[key] = c
	return c, nil
}

// AppendAudio adds a frame to the identified connection's buffer and
// returns the total buffered size. Frames for unknown identities are
// dropped and logged; a frame racing a disconnect is not an error.
func (r *Registry) AppendAudio(key string, frame []byte) int {
	r.mu.RLock()
	c, ok := r.conns[key]
	r.mu.RUnlock()
	if !ok {
		slog.Warn("audio frame for unknown connection dropped", "key", key, "bytes", len(frame))
		return 0
	}
	return c.Buffer.Append(frame)
}

// DrainAudio returns everything buffered for the identified connection
// since the last drain and clears the buffer. Unknown identities drain
// empty.
func (r *Registry) DrainAudio(key string) []byte {
	r.mu.RLock()
	c, ok := r.conns[key]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return c.Buffer.Drain()
}

// Unregister removes the connection and discards whatever audio remains
// buffered. Removing an absent key is a no-op.
func (r *Registry) Unregister(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, key)
}

// Len reports active connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
