// Package inmemory provides a map-backed storage.Driver for tests and
// ephemeral servers.
package inmemory

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/papercomputeco/chatmerge/pkg/storage"
)

// Driver implements storage.Driver using in-memory maps.
type Driver struct {
	// mu guards every map below
	mu sync.RWMutex

	conversations map[string]storage.Conversation

	// turns holds each conversation's turn IDs in creation order
	turns     map[string][]string
	turnsByID map[string]storage.Turn

	attachments map[string]storage.Attachment
	merges      []storage.MergeRecord

	now func() time.Time
}

// NewDriver creates a new in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		conversations: make(map[string]storage.Conversation),
		turns:         make(map[string][]string),
		turnsByID:     make(map[string]storage.Turn),
		attachments:   make(map[string]storage.Attachment),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

var _ storage.Driver = (*Driver)(nil)

func (d *Driver) CreateConversation(_ context.Context, c *storage.Conversation) error {
	if c == nil {
		return errors.New("cannot store nil conversation")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	c.Stamp(d.now())
	if _, ok := d.conversations[c.ID]; ok {
		return errors.New("conversation already exists: " + c.ID)
	}

	d.conversations[c.ID] = *c
	return nil
}

func (d *Driver) GetConversation(_ context.Context, id string) (*storage.Conversation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.conversations[id]
	if !ok {
		return nil, storage.NotFoundError{Kind: "conversation", ID: id}
	}

	return &c, nil
}

func (d *Driver) ListConversations(_ context.Context) ([]*storage.Conversation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]*storage.Conversation, 0, len(d.conversations))
	for _, c := range d.conversations {
		result = append(result, &c)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})

	return result, nil
}

func (d *Driver) UpdateConversation(_ context.Context, c *storage.Conversation) error {
	if c == nil {
		return errors.New("cannot update nil conversation")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	existing, ok := d.conversations[c.ID]
	if !ok {
		return storage.NotFoundError{Kind: "conversation", ID: c.ID}
	}

	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = d.now()
	d.conversations[c.ID] = *c
	return nil
}

func (d *Driver) DeleteConversation(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.conversations[id]; !ok {
		return storage.NotFoundError{Kind: "conversation", ID: id}
	}

	for _, turnID := range d.turns[id] {
		delete(d.turnsByID, turnID)
		for aid, a := range d.attachments {
			if a.TurnID == turnID {
				a.TurnID = ""
				d.attachments[aid] = a
			}
		}
	}

	delete(d.turns, id)
	delete(d.conversations, id)
	return nil
}

func (d *Driver) AppendTurn(_ context.Context, t *storage.Turn) error {
	if t == nil {
		return errors.New("cannot store nil turn")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.conversations[t.ConversationID]
	if !ok {
		return storage.NotFoundError{Kind: "conversation", ID: t.ConversationID}
	}

	t.Stamp(d.now())
	stored := *t
	stored.Attachments = nil
	d.turnsByID[t.ID] = stored
	d.turns[t.ConversationID] = append(d.turns[t.ConversationID], t.ID)

	c.UpdatedAt = t.CreatedAt
	d.conversations[c.ID] = c
	return nil
}

func (d *Driver) ListTurns(_ context.Context, conversationID string) ([]*storage.Turn, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if _, ok := d.conversations[conversationID]; !ok {
		return nil, storage.NotFoundError{Kind: "conversation", ID: conversationID}
	}

	ids := d.turns[conversationID]
	result := make([]*storage.Turn, 0, len(ids))
	for _, id := range ids {
		result = append(result, d.turnWithAttachments(id))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

func (d *Driver) GetTurns(_ context.Context, ids []string) ([]*storage.Turn, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]*storage.Turn, 0, len(ids))
	for _, id := range ids {
		if _, ok := d.turnsByID[id]; ok {
			result = append(result, d.turnWithAttachments(id))
		}
	}

	return result, nil
}

// turnWithAttachments copies a stored turn and joins its attachments.
// Callers must hold mu.
func (d *Driver) turnWithAttachments(id string) *storage.Turn {
	t := d.turnsByID[id]
	for _, a := range d.attachments {
		if a.TurnID == id {
			t.Attachments = append(t.Attachments, &a)
		}
	}

	sort.Slice(t.Attachments, func(i, j int) bool {
		return t.Attachments[i].CreatedAt.Before(t.Attachments[j].CreatedAt)
	})

	return &t
}

func (d *Driver) CreateAttachment(_ context.Context, a *storage.Attachment) error {
	if a == nil {
		return errors.New("cannot store nil attachment")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	a.Stamp(d.now())
	d.attachments[a.ID] = *a
	return nil
}

func (d *Driver) GetAttachment(_ context.Context, id string) (*storage.Attachment, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	a, ok := d.attachments[id]
	if !ok {
		return nil, storage.NotFoundError{Kind: "attachment", ID: id}
	}

	return &a, nil
}

func (d *Driver) GetAttachments(_ context.Context, ids []string) ([]*storage.Attachment, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]*storage.Attachment, 0, len(ids))
	for _, id := range ids {
		if a, ok := d.attachments[id]; ok {
			result = append(result, &a)
		}
	}

	return result, nil
}

func (d *Driver) AssociateAttachments(_ context.Context, turnID string, ids []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.turnsByID[turnID]; !ok {
		return storage.NotFoundError{Kind: "turn", ID: turnID}
	}

	for _, id := range ids {
		a, ok := d.attachments[id]
		if !ok {
			continue
		}
		a.TurnID = turnID
		d.attachments[id] = a
	}

	return nil
}

func (d *Driver) DeleteAttachment(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.attachments[id]; !ok {
		return storage.NotFoundError{Kind: "attachment", ID: id}
	}

	delete(d.attachments, id)
	return nil
}

func (d *Driver) CreateMergeRecord(_ context.Context, m *storage.MergeRecord) error {
	if m == nil {
		return errors.New("cannot store nil merge record")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	m.Stamp(d.now())
	stored := *m
	stored.SourceChatIDs = slices.Clone(m.SourceChatIDs)
	d.merges = append(d.merges, stored)
	return nil
}

func (d *Driver) ListMergeRecords(_ context.Context) ([]*storage.MergeRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]*storage.MergeRecord, 0, len(d.merges))
	for i := len(d.merges) - 1; i >= 0; i-- {
		m := d.merges[i]
		m.SourceChatIDs = slices.Clone(m.SourceChatIDs)
		result = append(result, &m)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}
