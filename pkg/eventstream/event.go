// Package eventstream defines the domain events chatmerge publishes and the
// Publisher interface event backends implement.
package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnPersisted is emitted after an assistant turn is persisted.
	EventTypeTurnPersisted = "chatmerge.turn.persisted"

	// EventTypeMergeCompleted is emitted after a merge record is written.
	EventTypeMergeCompleted = "chatmerge.merge.completed"
)

// Envelope carries the fields shared by every event.
type Envelope struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`
}

func newEnvelope(eventType string) Envelope {
	return Envelope{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
	}
}

// TurnPersistedEvent is a transport-neutral event payload for a completed
// user and assistant exchange.
type TurnPersistedEvent struct {
	Envelope

	ConversationID  string `json:"conversation_id"`
	Provider        string `json:"provider"`
	Model           string `json:"model"`
	UserTurnID      string `json:"user_turn_id"`
	AssistantTurnID string `json:"assistant_turn_id"`

	// ContextMode is the retrieval strategy used to build the prompt.
	ContextMode string `json:"context_mode"`

	HasReasoning bool  `json:"has_reasoning"`
	DurationMs   int64 `json:"duration_ms"`
}

// NewTurnPersistedEvent returns a turn event with a fresh envelope.
func NewTurnPersistedEvent() *TurnPersistedEvent {
	return &TurnPersistedEvent{Envelope: newEnvelope(EventTypeTurnPersisted)}
}

// MergeCompletedEvent is a transport-neutral event payload for a finished merge.
type MergeCompletedEvent struct {
	Envelope

	MergeID       string   `json:"merge_id"`
	SourceChatIDs []string `json:"source_chat_ids"`
	ResultChatID  string   `json:"result_chat_id"`
	Provider      string   `json:"provider"`
	Model         string   `json:"model"`

	// Strategy is "fusion", "union" or "none" when no vectors were merged.
	Strategy string `json:"strategy"`
	Fused    int    `json:"fused"`
	Kept     int    `json:"kept"`
	Total    int    `json:"total"`
}

// NewMergeCompletedEvent returns a merge event with a fresh envelope.
func NewMergeCompletedEvent() *MergeCompletedEvent {
	return &MergeCompletedEvent{Envelope: newEnvelope(EventTypeMergeCompleted)}
}
