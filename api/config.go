// Package api provides the HTTP API server for conversations, streaming
// completions, merges and attachments.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// DefaultProvider and DefaultModel apply to new chats that name neither.
	DefaultProvider string
	DefaultModel    string

	// DisableMCP serves /mcp without any tools.
	DisableMCP bool
}
