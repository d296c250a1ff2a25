package vector

import "errors"

var (
	// ErrNotFound is returned when a document is not found in the vector store.
	ErrNotFound = errors.New("document not found")

	// ErrEmbedding is returned when embedding generation fails.
	ErrEmbedding = errors.New("embedding failed")

	// ErrConnection is returned when the vector store connection fails.
	ErrConnection = errors.New("vector store connection failed")

	// ErrNotConfigured is returned when no vector credential is available.
	ErrNotConfigured = errors.New("vector store not configured")

	// ErrDimensionMismatch is returned when a vector does not match the
	// dimensions of the store it is written to or compared with.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)
