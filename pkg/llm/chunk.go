package llm

// Stream chunk types.
const (
	ChunkContent       = "content"
	ChunkReasoning     = "reasoning"
	ChunkError         = "error"
	ChunkDone          = "done"
	ChunkWarning       = "warning"
	ChunkMergeComplete = "merge_complete"
)

// Chunk is a single event of a completion or merge stream. It is also the
// JSON payload of every SSE frame the API emits.
type Chunk struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// ContentChunk returns a content chunk.
func ContentChunk(s string) Chunk { return Chunk{Type: ChunkContent, Data: s} }

// ReasoningChunk returns a reasoning chunk.
func ReasoningChunk(s string) Chunk { return Chunk{Type: ChunkReasoning, Data: s} }

// ErrorChunk returns an error chunk.
func ErrorChunk(s string) Chunk { return Chunk{Type: ChunkError, Data: s} }

// DoneChunk returns a done chunk. For completions the data is the persisted
// assistant turn ID, or empty when nothing was persisted.
func DoneChunk(id string) Chunk { return Chunk{Type: ChunkDone, Data: id} }

// WarningChunk returns a warning chunk.
func WarningChunk(s string) Chunk { return Chunk{Type: ChunkWarning, Data: s} }

// MergeCompleteChunk returns the terminal chunk of a merge, carrying the new
// conversation ID.
func MergeCompleteChunk(id string) Chunk { return Chunk{Type: ChunkMergeComplete, Data: id} }

// IsTerminal reports whether the chunk ends a stream.
func (c Chunk) IsTerminal() bool {
	switch c.Type {
	case ChunkError, ChunkDone, ChunkMergeComplete:
		return true
	}
	return false
}
