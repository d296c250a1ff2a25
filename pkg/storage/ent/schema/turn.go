package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Turn holds the schema definition for the Turn entity, a single message of
// a conversation.
type Turn struct {
	ent.Schema
}

// Fields of the Turn.
func (Turn) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable().
			NotEmpty(),

		// role is one of "user", "assistant", "system" or "context-marker"
		field.String("role"),

		field.Text("content"),

		field.Text("reasoning").
			Optional(),

		// origin is "merge" for the introduction written by a merge
		field.String("origin").
			Optional(),

		field.Time("created_at").
			Default(time.Now).
			Immutable(),

		field.String("conversation_id"),
	}
}

// Indexes of the Turn.
func (Turn) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("conversation_id", "created_at"),
	}
}

// Edges of the Turn.
func (Turn) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("conversation", Conversation.Type).
			Ref("turns").
			Field("conversation_id").
			Unique().
			Required().
			Annotations(entsql.OnDelete(entsql.Cascade)),

		edge.To("attachments", Attachment.Type),
	}
}
