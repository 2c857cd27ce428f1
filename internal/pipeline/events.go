package pipeline

// Event is one outbound message to the client. Type discriminates; the
// remaining fields are populated per kind and elided otherwise. Audio
// payloads travel base64-encoded inside the envelope so every frame on the
// wire is self-describing JSON.
type Event struct {
	Type                 string `json:"type"`
	ConnectionID         string `json:"connection_id,omitempty"`
	Message              string `json:"message,omitempty"`
	Text                 string `json:"text,omitempty"`
	IsFinal              bool   `json:"is_final,omitempty"`
	Audio                string `json:"audio,omitempty"`
	Bytes                int    `json:"bytes,omitempty"`
	TotalBytes           int    `json:"total_bytes,omitempty"`
	Timestamp            int64  `json:"timestamp,omitempty"`
	EntryID              string `json:"entry_id,omitempty"`
	Transcript           string `json:"transcript,omitempty"`
	Status               string `json:"status,omitempty"`
	ConfirmationID       string `json:"confirmation_id,omitempty"`
	RequiresConfirmation bool   `json:"requires_confirmation,omitempty"`
	Reason               string `json:"reason,omitempty"`
}

// EventCallback delivers events to the client. Implementations serialize
// writes; callers may invoke it from any goroutine.
type EventCallback func(Event)
