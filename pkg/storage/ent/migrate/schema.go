// Package migrate declares the relational schema for chatmerge and applies it
// with ent's atlas-backed auto-migration.
package migrate

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// Table names.
const (
	ConversationsTableName = "conversations"
	TurnsTableName         = "turns"
	AttachmentsTableName   = "attachments"
	MergeRecordsTableName  = "merge_records"
)

var (
	// ConversationsColumns holds the columns for the "conversations" table.
	ConversationsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Unique: true},
		{Name: "title", Type: field.TypeString, Default: ""},
		{Name: "provider", Type: field.TypeString},
		{Name: "model", Type: field.TypeString},
		{Name: "system_prompt", Type: field.TypeString, Nullable: true, Size: 2147483647},
		{Name: "fused", Type: field.TypeBool, Default: false},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	// ConversationsTable holds the schema information for the "conversations" table.
	ConversationsTable = &schema.Table{
		Name:       ConversationsTableName,
		Columns:    ConversationsColumns,
		PrimaryKey: []*schema.Column{ConversationsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "conversation_updated_at",
				Unique:  false,
				Columns: []*schema.Column{ConversationsColumns[7]},
			},
		},
	}

	// TurnsColumns holds the columns for the "turns" table.
	TurnsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Unique: true},
		{Name: "role", Type: field.TypeString},
		{Name: "content", Type: field.TypeString, Size: 2147483647},
		{Name: "reasoning", Type: field.TypeString, Nullable: true, Size: 2147483647},
		{Name: "origin", Type: field.TypeString, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "conversation_id", Type: field.TypeString},
	}
	// TurnsTable holds the schema information for the "turns" table.
	TurnsTable = &schema.Table{
		Name:       TurnsTableName,
		Columns:    TurnsColumns,
		PrimaryKey: []*schema.Column{TurnsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "turns_conversations_turns",
				Columns:    []*schema.Column{TurnsColumns[6]},
				RefColumns: []*schema.Column{ConversationsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "turn_conversation_id_created_at",
				Unique:  false,
				Columns: []*schema.Column{TurnsColumns[6], TurnsColumns[5]},
			},
		},
	}

	// AttachmentsColumns holds the columns for the "attachments" table.
	AttachmentsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Unique: true},
		{Name: "filename", Type: field.TypeString},
		{Name: "mime_type", Type: field.TypeString},
		{Name: "size", Type: field.TypeInt64},
		{Name: "storage_path", Type: field.TypeString},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "turn_id", Type: field.TypeString, Nullable: true},
	}
	// AttachmentsTable holds the schema information for the "attachments" table.
	AttachmentsTable = &schema.Table{
		Name:       AttachmentsTableName,
		Columns:    AttachmentsColumns,
		PrimaryKey: []*schema.Column{AttachmentsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "attachments_turns_attachments",
				Columns:    []*schema.Column{AttachmentsColumns[6]},
				RefColumns: []*schema.Column{TurnsColumns[0]},
				OnDelete:   schema.SetNull,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "attachment_turn_id",
				Unique:  false,
				Columns: []*schema.Column{AttachmentsColumns[6]},
			},
		},
	}

	// MergeRecordsColumns holds the columns for the "merge_records" table.
	MergeRecordsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Unique: true},
		{Name: "source_chat_ids", Type: field.TypeJSON},
		{Name: "result_chat_id", Type: field.TypeString},
		{Name: "merge_provider", Type: field.TypeString},
		{Name: "merge_model", Type: field.TypeString},
		{Name: "created_at", Type: field.TypeTime},
	}
	// MergeRecordsTable holds the schema information for the "merge_records" table.
	MergeRecordsTable = &schema.Table{
		Name:       MergeRecordsTableName,
		Columns:    MergeRecordsColumns,
		PrimaryKey: []*schema.Column{MergeRecordsColumns[0]},
	}

	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		ConversationsTable,
		TurnsTable,
		AttachmentsTable,
		MergeRecordsTable,
	}
)

func init() {
	TurnsTable.ForeignKeys[0].RefTable = ConversationsTable
	AttachmentsTable.ForeignKeys[0].RefTable = TurnsTable
}

// Create runs the auto-migration for all tables against drv.
// This handles append-only schema changes (new tables, columns, indexes).
func Create(ctx context.Context, drv dialect.Driver, opts ...schema.MigrateOption) error {
	m, err := schema.NewMigrate(drv, opts...)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}

	if err := m.Create(ctx, Tables...); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}

	return nil
}
