package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
)

// MergeRecord holds the schema definition for the MergeRecord entity, the
// history entry written after a successful merge.
type MergeRecord struct {
	ent.Schema
}

// Fields of the MergeRecord.
func (MergeRecord) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable().
			NotEmpty(),

		field.Strings("source_chat_ids"),

		field.String("result_chat_id"),

		field.String("merge_provider"),

		field.String("merge_model"),

		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}
