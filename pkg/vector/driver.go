// Package vector provides interfaces and implementations for namespaced
// vector storage. Every conversation owns one namespace, keyed by its ID.
package vector

import (
	"context"
	"maps"
)

// Metadata is the flat key/value payload stored next to each vector.
type Metadata map[string]string

// Clone returns a copy of m that can be mutated independently.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return Metadata{}
	}
	return maps.Clone(m)
}

// Well-known metadata keys written by the indexers and the fusion engine.
const (
	MetaChatID         = "chat_id"
	MetaRole           = "role"
	MetaContent        = "content"
	MetaTurnID         = "message_id"
	MetaType           = "type"
	MetaSourceChatID   = "source_chat_id"
	MetaOriginalChatID = "original_chat_id"
	MetaSourceAChatID  = "source_a_chat_id"
	MetaSourceBChatID  = "source_b_chat_id"
	MetaHasAttachments = "has_attachments"

	TypeKept  = "kept"
	TypeFused = "fused"
)

// Record is a single stored vector.
type Record struct {
	// ID is unique within its namespace.
	ID string

	// Values is the embedding.
	Values []float32

	Metadata Metadata
}

// Match is a query result. Score is cosine similarity, higher is closer.
type Match struct {
	Record

	Score float64
}

// Stats describes a single namespace.
type Stats struct {
	Namespace  string `json:"namespace"`
	Count      int    `json:"vector_count"`
	Dimensions int    `json:"dimensions"`
}

// Driver handles storage and retrieval of vectors partitioned by namespace.
type Driver interface {
	// Upsert stores records in ns, replacing records with the same ID.
	Upsert(ctx context.Context, ns string, records []Record) error

	// Fetch returns the records of ns with the given IDs. Unknown IDs are
	// absent from the result.
	Fetch(ctx context.Context, ns string, ids []string) (map[string]Record, error)

	// ListIDs pages through the IDs of ns. An empty cursor starts at the
	// beginning and an empty next cursor marks the last page.
	ListIDs(ctx context.Context, ns string, cursor string, limit int) (ids []string, next string, err error)

	// Query finds the topK records of ns most similar to vec.
	Query(ctx context.Context, ns string, vec []float32, topK int) ([]Match, error)

	// DeleteNamespace removes every record of ns. Deleting an unknown
	// namespace is not an error.
	DeleteNamespace(ctx context.Context, ns string) error

	// Stats reports the size of ns.
	Stats(ctx context.Context, ns string) (Stats, error)

	// EnsureReady prepares the backend (collections, tables, indexes).
	// It is safe to call more than once.
	EnsureReady(ctx context.Context) error

	// Close releases any resources held by the driver.
	Close() error
}

// Resolver hands out the driver for the current vector credential.
type Resolver interface {
	Resolve(ctx context.Context) (Driver, error)
}
