package worker

import (
	"strconv"
	"strings"

	"github.com/papercomputeco/chatmerge/pkg/storage"
	"github.com/papercomputeco/chatmerge/pkg/utils"
	"github.com/papercomputeco/chatmerge/pkg/vector"
)

// maxContentMetadata caps the content copy kept in vector metadata.
const maxContentMetadata = 1000

// IndexText returns the text embedded for t: its content followed by one
// marker line per attachment.
func IndexText(t *storage.Turn) string {
	var b strings.Builder
	b.WriteString(t.Content)
	for _, a := range t.Attachments {
		b.WriteString("\n\n[Attachment: ")
		b.WriteString(a.Filename)
		b.WriteString("]")
	}
	return strings.TrimSpace(b.String())
}

// Record builds the vector record for t. The record ID is the turn ID so
// re-indexing a turn replaces its previous vector.
func Record(t *storage.Turn, values []float32) vector.Record {
	return vector.Record{
		ID:     t.ID,
		Values: values,
		Metadata: vector.Metadata{
			vector.MetaChatID:         t.ConversationID,
			vector.MetaRole:           t.Role,
			vector.MetaContent:        utils.Clip(t.Content, maxContentMetadata),
			vector.MetaTurnID:         t.ID,
			vector.MetaHasAttachments: strconv.FormatBool(len(t.Attachments) > 0),
		},
	}
}
