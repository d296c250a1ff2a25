package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Attachment holds the schema definition for the Attachment entity. Only
// metadata is stored; the bytes live in the blob store at storage_path.
type Attachment struct {
	ent.Schema
}

// Fields of the Attachment.
func (Attachment) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable().
			NotEmpty(),

		field.String("filename"),

		field.String("mime_type"),

		field.Int64("size"),

		field.String("storage_path"),

		field.Time("created_at").
			Default(time.Now).
			Immutable(),

		// turn_id is empty until the upload is attached to a message
		field.String("turn_id").
			Optional(),
	}
}

// Indexes of the Attachment.
func (Attachment) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("turn_id"),
	}
}

// Edges of the Attachment.
func (Attachment) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("turn", Turn.Type).
			Ref("attachments").
			Field("turn_id").
			Unique().
			Annotations(entsql.OnDelete(entsql.SetNull)),
	}
}
