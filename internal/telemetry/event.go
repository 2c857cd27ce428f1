package telemetry

import "time"

// Kind discriminates the event union. Exactly one payload pointer matching
// the kind is set on a well-formed event.
type Kind string

const (
	KindStage Kind = "stage"
	KindAgent Kind = "agent"
	KindQueue Kind = "queue_sample"
	KindSave  Kind = "save_complete"
)

// Stage names used by the pipeline when reporting KindStage events.
const (
	StageTranscription = "transcription"
	StageGeneration    = "generation"
	StageSynthesis     = "synthesis"
	StageRetrieval     = "retrieval"
)

type Event struct {
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id,omitempty"`
	OrgID     string    `json:"org_id,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`

	Stage *StageEvent `json:"stage,omitempty"`
	Agent *AgentEvent `json:"agent,omitempty"`
	Queue *QueueEvent `json:"queue,omitempty"`
	Save  *SaveEvent  `json:"save,omitempty"`
}

type StageEvent struct {
	Name      string `json:"name"`
	LatencyMs int64  `json:"latency_ms"`
}

type AgentEvent struct {
	Model              string `json:"model"`
	LatencyMs          int64  `json:"latency_ms"`
	TimeToFirstTokenMs int64  `json:"time_to_first_token_ms"`
	Tokens             int    `json:"tokens"`
}

type QueueEvent struct {
	Depth    int `json:"depth"`
	Capacity int `json:"capacity"`
}

type SaveEvent struct {
	EntryID   string `json:"entry_id"`
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
}

// IdentityKey returns the org/user key events are grouped under, or the
// empty string when the event carries no identity.
func (e Event) IdentityKey() string {
	if e.UserID == "" && e.OrgID == "" {
		return ""
	}
	return e.OrgID + "/" + e.UserID
}

// StageSuccess builds a successful stage event for the given identity.
func StageSuccess(name, userID, orgID string, latency time.Duration) Event {
	return Event{
		Kind:      KindStage,
		Timestamp: time.Now().UTC(),
		UserID:    userID,
		OrgID:     orgID,
		Success:   true,
		Stage:     &StageEvent{Name: name, LatencyMs: latency.Milliseconds()},
	}
}

// StageFailure builds a failed stage event carrying the error text.
func StageFailure(name, userID, orgID string, latency time.Duration, err error) Event {
	ev := StageSuccess(name, userID, orgID, latency)
	ev.Success = false
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}
