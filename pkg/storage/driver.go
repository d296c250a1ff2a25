// Package storage defines the relational model of conversations, turns,
// attachments and merge records, and the Driver interface backends implement.
package storage

import (
	"context"
)

// Driver defines the interface for persisting and retrieving chatmerge
// entities in a storage backend.
type Driver interface {
	// CreateConversation stores a new conversation, stamping its ID and
	// timestamps when unset.
	CreateConversation(ctx context.Context, c *Conversation) error

	// GetConversation retrieves a conversation by ID.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// ListConversations returns all conversations, most recently updated first.
	ListConversations(ctx context.Context) ([]*Conversation, error)

	// UpdateConversation overwrites the mutable fields of a conversation
	// and bumps its UpdatedAt.
	UpdateConversation(ctx context.Context, c *Conversation) error

	// DeleteConversation removes a conversation and all of its turns.
	DeleteConversation(ctx context.Context, id string) error

	// AppendTurn stores a new turn and touches the owning conversation.
	AppendTurn(ctx context.Context, t *Turn) error

	// ListTurns returns a conversation's turns in creation order, with
	// their attachments.
	ListTurns(ctx context.Context, conversationID string) ([]*Turn, error)

	// GetTurns returns the turns with the given IDs. Unknown IDs are skipped.
	GetTurns(ctx context.Context, ids []string) ([]*Turn, error)

	// CreateAttachment stores attachment metadata.
	CreateAttachment(ctx context.Context, a *Attachment) error

	// GetAttachment retrieves attachment metadata by ID.
	GetAttachment(ctx context.Context, id string) (*Attachment, error)

	// GetAttachments returns the attachments with the given IDs. Unknown IDs are skipped.
	GetAttachments(ctx context.Context, ids []string) ([]*Attachment, error)

	// AssociateAttachments links the given attachments to a turn.
	AssociateAttachments(ctx context.Context, turnID string, ids []string) error

	// DeleteAttachment removes attachment metadata.
	DeleteAttachment(ctx context.Context, id string) error

	// CreateMergeRecord stores a merge audit entry.
	CreateMergeRecord(ctx context.Context, m *MergeRecord) error

	// ListMergeRecords returns merge records, newest first.
	ListMergeRecords(ctx context.Context) ([]*MergeRecord, error)

	// Close closes the store and releases any resources.
	Close() error
}
