// Package provider defines the streaming model provider interface and the
// factory for its openai, anthropic, gemini and ollama variants.
package provider

import (
	"context"
	"iter"

	"github.com/papercomputeco/chatmerge/pkg/llm"
)

// Request is a streaming completion request.
type Request = llm.ChatRequest

// Provider streams completions from one model vendor. Vendor quirks such as
// role names, system prompt placement and token defaults stay inside each
// implementation.
type Provider interface {
	// Name returns the canonical provider name (e.g., "openai", "anthropic")
	Name() string

	// RequiresKey reports whether the provider needs an API key.
	RequiresKey() bool

	// Models returns the model names offered for new conversations.
	Models() []string

	// Stream runs one completion. It yields content and reasoning chunks as
	// they arrive and ends with exactly one done or error chunk. Breaking out
	// of the iteration cancels the upstream request.
	Stream(ctx context.Context, req Request) iter.Seq[llm.Chunk]
}
