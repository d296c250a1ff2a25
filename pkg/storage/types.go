package storage

import (
	"time"

	"github.com/google/uuid"
)

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	// RoleContextMarker marks out-of-band context inserted into a conversation.
	RoleContextMarker = "context-marker"

	// RoleSystem is accepted as an alias of RoleContextMarker.
	RoleSystem = "system"
)

// OriginMerge marks the introduction turn written by the merge pipeline.
const OriginMerge = "merge"

// Conversation is a chat bound to one provider and model. Its vector
// namespace shares its ID.
type Conversation struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Fused        bool      `json:"fused"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Stamp assigns an ID and timestamps to a conversation that lacks them.
func (c *Conversation) Stamp(now time.Time) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
}

// Turn is a single message within a conversation.
type Turn struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"chat_id"`
	Role           string        `json:"role"`
	Content        string        `json:"content"`
	Reasoning      string        `json:"reasoning,omitempty"`
	Origin         string        `json:"origin,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	Attachments    []*Attachment `json:"attachments,omitempty"`
}

// Stamp assigns an ID and creation time to a turn that lacks them.
func (t *Turn) Stamp(now time.Time) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
}

// IsContextMarker reports whether the turn carries out-of-band context
// rather than a user or assistant message.
func (t *Turn) IsContextMarker() bool {
	return t.Role == RoleContextMarker || t.Role == RoleSystem
}

// Attachment is file metadata. The bytes live in an attachments.Store
// under StoragePath.
type Attachment struct {
	ID          string    `json:"id"`
	TurnID      string    `json:"message_id,omitempty"`
	Filename    string    `json:"filename"`
	MimeType    string    `json:"mime_type"`
	Size        int64     `json:"size"`
	StoragePath string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// Stamp assigns an ID and creation time to an attachment that lacks them.
func (a *Attachment) Stamp(now time.Time) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
}

// MergeRecord is the immutable audit entry of a completed merge.
type MergeRecord struct {
	ID            string    `json:"id"`
	SourceChatIDs []string  `json:"source_chat_ids"`
	ResultChatID  string    `json:"result_chat_id"`
	MergeProvider string    `json:"merge_provider"`
	MergeModel    string    `json:"merge_model"`
	CreatedAt     time.Time `json:"created_at"`
}

// Stamp assigns an ID and creation time to a merge record that lacks them.
func (m *MergeRecord) Stamp(now time.Time) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
}
