// Package entdriver implements storage.Driver on top of ent's dialect/sql
// query builders. It is database-agnostic and embedded by the sqlite and
// postgres drivers.
package entdriver

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/chatmerge/pkg/storage"
	"github.com/papercomputeco/chatmerge/pkg/storage/ent/migrate"
)

var (
	conversationColumns = []string{"id", "title", "provider", "model", "system_prompt", "fused", "created_at", "updated_at"}
	turnColumns         = []string{"id", "conversation_id", "role", "content", "reasoning", "origin", "created_at"}
	attachmentColumns   = []string{"id", "turn_id", "filename", "mime_type", "size", "storage_path", "created_at"}
	mergeColumns        = []string{"id", "source_chat_ids", "result_chat_id", "merge_provider", "merge_model", "created_at"}
)

// EntDriver provides storage operations using an ent SQL driver.
type EntDriver struct {
	Driver *sql.Driver

	now func() time.Time
}

// New wraps drv and runs the schema auto-migration.
func New(ctx context.Context, drv *sql.Driver) (*EntDriver, error) {
	if err := migrate.Create(ctx, drv); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &EntDriver{
		Driver: drv,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

var _ storage.Driver = (*EntDriver)(nil)

func (ed *EntDriver) builder() *sql.DialectBuilder {
	return sql.Dialect(ed.Driver.Dialect())
}

func (ed *EntDriver) exec(ctx context.Context, conn dialect.ExecQuerier, query string, args []any) (int64, error) {
	var res stdsql.Result
	if err := conn.Exec(ctx, query, args, &res); err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (ed *EntDriver) CreateConversation(ctx context.Context, c *storage.Conversation) error {
	if c == nil {
		return errors.New("cannot store nil conversation")
	}

	c.Stamp(ed.now())
	query, args := ed.builder().
		Insert(migrate.ConversationsTableName).
		Columns(conversationColumns...).
		Values(c.ID, c.Title, c.Provider, c.Model, nullString(c.SystemPrompt), c.Fused, c.CreatedAt, c.UpdatedAt).
		Query()

	if _, err := ed.exec(ctx, ed.Driver, query, args); err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}

	return nil
}

func (ed *EntDriver) GetConversation(ctx context.Context, id string) (*storage.Conversation, error) {
	query, args := ed.builder().
		Select(conversationColumns...).
		From(sql.Table(migrate.ConversationsTableName)).
		Where(sql.EQ("id", id)).
		Query()

	convs, err := ed.queryConversations(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return nil, storage.NotFoundError{Kind: "conversation", ID: id}
	}

	return convs[0], nil
}

func (ed *EntDriver) ListConversations(ctx context.Context) ([]*storage.Conversation, error) {
	query, args := ed.builder().
		Select(conversationColumns...).
		From(sql.Table(migrate.ConversationsTableName)).
		OrderBy(sql.Desc("updated_at")).
		Query()

	return ed.queryConversations(ctx, query, args)
}

func (ed *EntDriver) queryConversations(ctx context.Context, query string, args []any) ([]*storage.Conversation, error) {
	rows := &sql.Rows{}
	if err := ed.Driver.Query(ctx, query, args, rows); err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var result []*storage.Conversation
	for rows.Next() {
		var (
			c      storage.Conversation
			prompt stdsql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Title, &c.Provider, &c.Model, &prompt, &c.Fused, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		c.SystemPrompt = prompt.String
		result = append(result, &c)
	}

	return result, rows.Err()
}

func (ed *EntDriver) UpdateConversation(ctx context.Context, c *storage.Conversation) error {
	if c == nil {
		return errors.New("cannot update nil conversation")
	}

	c.UpdatedAt = ed.now()
	query, args := ed.builder().
		Update(migrate.ConversationsTableName).
		Set("title", c.Title).
		Set("provider", c.Provider).
		Set("model", c.Model).
		Set("system_prompt", nullString(c.SystemPrompt)).
		Set("fused", c.Fused).
		Set("updated_at", c.UpdatedAt).
		Where(sql.EQ("id", c.ID)).
		Query()

	n, err := ed.exec(ctx, ed.Driver, query, args)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	if n == 0 {
		return storage.NotFoundError{Kind: "conversation", ID: c.ID}
	}

	return nil
}

// DeleteConversation removes the conversation and its turns in one
// transaction, detaching attachments from the deleted turns.
func (ed *EntDriver) DeleteConversation(ctx context.Context, id string) (err error) {
	tx, err := ed.Driver.Tx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	b := ed.builder()

	turnIDs := b.Select("id").
		From(sql.Table(migrate.TurnsTableName)).
		Where(sql.EQ("conversation_id", id))
	query, args := b.Update(migrate.AttachmentsTableName).
		SetNull("turn_id").
		Where(sql.In("turn_id", turnIDs)).
		Query()
	if _, err = ed.exec(ctx, tx, query, args); err != nil {
		return fmt.Errorf("failed to detach attachments: %w", err)
	}

	query, args = b.Delete(migrate.TurnsTableName).
		Where(sql.EQ("conversation_id", id)).
		Query()
	if _, err = ed.exec(ctx, tx, query, args); err != nil {
		return fmt.Errorf("failed to delete turns: %w", err)
	}

	query, args = b.Delete(migrate.ConversationsTableName).
		Where(sql.EQ("id", id)).
		Query()
	n, err := ed.exec(ctx, tx, query, args)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if n == 0 {
		err = storage.NotFoundError{Kind: "conversation", ID: id}
		return err
	}

	return tx.Commit()
}

func (ed *EntDriver) AppendTurn(ctx context.Context, t *storage.Turn) (err error) {
	if t == nil {
		return errors.New("cannot store nil turn")
	}

	t.Stamp(ed.now())

	tx, err := ed.Driver.Tx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	b := ed.builder()
	query, args := b.Update(migrate.ConversationsTableName).
		Set("updated_at", t.CreatedAt).
		Where(sql.EQ("id", t.ConversationID)).
		Query()
	n, err := ed.exec(ctx, tx, query, args)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	if n == 0 {
		err = storage.NotFoundError{Kind: "conversation", ID: t.ConversationID}
		return err
	}

	query, args = b.Insert(migrate.TurnsTableName).
		Columns(turnColumns...).
		Values(t.ID, t.ConversationID, t.Role, t.Content, nullString(t.Reasoning), nullString(t.Origin), t.CreatedAt).
		Query()
	if _, err = ed.exec(ctx, tx, query, args); err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}

	return tx.Commit()
}

func (ed *EntDriver) ListTurns(ctx context.Context, conversationID string) ([]*storage.Turn, error) {
	if _, err := ed.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	query, args := ed.builder().
		Select(turnColumns...).
		From(sql.Table(migrate.TurnsTableName)).
		Where(sql.EQ("conversation_id", conversationID)).
		OrderBy(sql.Asc("created_at"), sql.Asc("id")).
		Query()

	return ed.queryTurns(ctx, query, args)
}

func (ed *EntDriver) GetTurns(ctx context.Context, ids []string) ([]*storage.Turn, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args := ed.builder().
		Select(turnColumns...).
		From(sql.Table(migrate.TurnsTableName)).
		Where(sql.In("id", anySlice(ids)...)).
		OrderBy(sql.Asc("created_at"), sql.Asc("id")).
		Query()

	return ed.queryTurns(ctx, query, args)
}

func (ed *EntDriver) queryTurns(ctx context.Context, query string, args []any) ([]*storage.Turn, error) {
	turns, err := ed.scanTurns(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(turns) == 0 {
		return turns, nil
	}

	ids := make([]string, len(turns))
	byID := make(map[string]*storage.Turn, len(turns))
	for i, t := range turns {
		ids[i] = t.ID
		byID[t.ID] = t
	}

	query, args = ed.builder().
		Select(attachmentColumns...).
		From(sql.Table(migrate.AttachmentsTableName)).
		Where(sql.In("turn_id", anySlice(ids)...)).
		OrderBy(sql.Asc("created_at")).
		Query()

	attachments, err := ed.queryAttachments(ctx, query, args)
	if err != nil {
		return nil, err
	}
	for _, a := range attachments {
		if t, ok := byID[a.TurnID]; ok {
			t.Attachments = append(t.Attachments, a)
		}
	}

	return turns, nil
}

func (ed *EntDriver) scanTurns(ctx context.Context, query string, args []any) ([]*storage.Turn, error) {
	rows := &sql.Rows{}
	if err := ed.Driver.Query(ctx, query, args, rows); err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var result []*storage.Turn
	for rows.Next() {
		var (
			t                 storage.Turn
			reasoning, origin stdsql.NullString
		)
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.Role, &t.Content, &reasoning, &origin, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		t.Reasoning = reasoning.String
		t.Origin = origin.String
		result = append(result, &t)
	}

	return result, rows.Err()
}

func (ed *EntDriver) CreateAttachment(ctx context.Context, a *storage.Attachment) error {
	if a == nil {
		return errors.New("cannot store nil attachment")
	}

	a.Stamp(ed.now())
	query, args := ed.builder().
		Insert(migrate.AttachmentsTableName).
		Columns(attachmentColumns...).
		Values(a.ID, nullString(a.TurnID), a.Filename, a.MimeType, a.Size, a.StoragePath, a.CreatedAt).
		Query()

	if _, err := ed.exec(ctx, ed.Driver, query, args); err != nil {
		return fmt.Errorf("failed to insert attachment: %w", err)
	}

	return nil
}

func (ed *EntDriver) GetAttachment(ctx context.Context, id string) (*storage.Attachment, error) {
	attachments, err := ed.GetAttachments(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(attachments) == 0 {
		return nil, storage.NotFoundError{Kind: "attachment", ID: id}
	}

	return attachments[0], nil
}

func (ed *EntDriver) GetAttachments(ctx context.Context, ids []string) ([]*storage.Attachment, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args := ed.builder().
		Select(attachmentColumns...).
		From(sql.Table(migrate.AttachmentsTableName)).
		Where(sql.In("id", anySlice(ids)...)).
		OrderBy(sql.Asc("created_at")).
		Query()

	return ed.queryAttachments(ctx, query, args)
}

func (ed *EntDriver) queryAttachments(ctx context.Context, query string, args []any) ([]*storage.Attachment, error) {
	rows := &sql.Rows{}
	if err := ed.Driver.Query(ctx, query, args, rows); err != nil {
		return nil, fmt.Errorf("failed to query attachments: %w", err)
	}
	defer rows.Close()

	var result []*storage.Attachment
	for rows.Next() {
		var (
			a      storage.Attachment
			turnID stdsql.NullString
		)
		if err := rows.Scan(&a.ID, &turnID, &a.Filename, &a.MimeType, &a.Size, &a.StoragePath, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		a.TurnID = turnID.String
		result = append(result, &a)
	}

	return result, rows.Err()
}

func (ed *EntDriver) AssociateAttachments(ctx context.Context, turnID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query, args := ed.builder().
		Update(migrate.AttachmentsTableName).
		Set("turn_id", turnID).
		Where(sql.In("id", anySlice(ids)...)).
		Query()

	if _, err := ed.exec(ctx, ed.Driver, query, args); err != nil {
		return fmt.Errorf("failed to associate attachments: %w", err)
	}

	return nil
}

func (ed *EntDriver) DeleteAttachment(ctx context.Context, id string) error {
	query, args := ed.builder().
		Delete(migrate.AttachmentsTableName).
		Where(sql.EQ("id", id)).
		Query()

	n, err := ed.exec(ctx, ed.Driver, query, args)
	if err != nil {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	if n == 0 {
		return storage.NotFoundError{Kind: "attachment", ID: id}
	}

	return nil
}

func (ed *EntDriver) CreateMergeRecord(ctx context.Context, m *storage.MergeRecord) error {
	if m == nil {
		return errors.New("cannot store nil merge record")
	}

	m.Stamp(ed.now())
	sources, err := json.Marshal(m.SourceChatIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal source chat ids: %w", err)
	}

	query, args := ed.builder().
		Insert(migrate.MergeRecordsTableName).
		Columns(mergeColumns...).
		Values(m.ID, string(sources), m.ResultChatID, m.MergeProvider, m.MergeModel, m.CreatedAt).
		Query()

	if _, err := ed.exec(ctx, ed.Driver, query, args); err != nil {
		return fmt.Errorf("failed to insert merge record: %w", err)
	}

	return nil
}

func (ed *EntDriver) ListMergeRecords(ctx context.Context) ([]*storage.MergeRecord, error) {
	query, args := ed.builder().
		Select(mergeColumns...).
		From(sql.Table(migrate.MergeRecordsTableName)).
		OrderBy(sql.Desc("created_at")).
		Query()

	rows := &sql.Rows{}
	if err := ed.Driver.Query(ctx, query, args, rows); err != nil {
		return nil, fmt.Errorf("failed to query merge records: %w", err)
	}
	defer rows.Close()

	var result []*storage.MergeRecord
	for rows.Next() {
		var (
			m       storage.MergeRecord
			sources []byte
		)
		if err := rows.Scan(&m.ID, &sources, &m.ResultChatID, &m.MergeProvider, &m.MergeModel, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan merge record: %w", err)
		}
		if err := json.Unmarshal(sources, &m.SourceChatIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal source chat ids: %w", err)
		}
		result = append(result, &m)
	}

	return result, rows.Err()
}

// Close closes the underlying database.
func (ed *EntDriver) Close() error {
	return ed.Driver.Close()
}

func nullString(s string) stdsql.NullString {
	return stdsql.NullString{String: s, Valid: s != ""}
}

func anySlice(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
