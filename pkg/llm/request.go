package llm

// ChatRequest is a provider-agnostic streaming completion request.
type ChatRequest struct {
	// Model name (e.g., "gpt-4o", "claude-sonnet-4-20250514", "llama3.2")
	Model string `json:"model"`

	// Conversation messages, oldest first. System messages are folded into
	// System by the providers that need it.
	Messages []Message `json:"messages"`

	// System prompt (providers place it according to their API)
	System string `json:"system,omitempty"`

	// Generation parameters. A nil Temperature leaves the provider default,
	// a zero MaxTokens lets each provider apply its own default.
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
}
