package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/chatmerge/pkg/retrieval"
	"github.com/papercomputeco/chatmerge/pkg/storage"
	"github.com/papercomputeco/chatmerge/pkg/vector"
)

const defaultTopK = 5

var (
	retrieveToolName    = "retrieve_context"
	retrieveDescription = "Semantic search within one conversation. Returns the stored turns and fused records of the conversation most relevant to the query, ranked by similarity."

	listToolName    = "list_conversations"
	listDescription = "List stored conversations, most recently updated first. Use the returned IDs with retrieve_context."
)

// RetrieveInput represents the input arguments for the retrieve_context tool.
type RetrieveInput struct {
	ChatID string `json:"chat_id" jsonschema:"the ID of the conversation to search"`
	Query  string `json:"query" jsonschema:"the text to find relevant context for"`
	TopK   int    `json:"top_k,omitempty" jsonschema:"number of results to return (default: 5)"`
}

// RetrieveOutput represents the output of the retrieve_context tool.
type RetrieveOutput struct {
	ChatID  string                `json:"chat_id"`
	Query   string                `json:"query"`
	Results []retrieval.Retrieved `json:"results"`
	Count   int                   `json:"count"`
}

// ListInput represents the input arguments for the list_conversations tool.
type ListInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of conversations to return (default: all)"`
}

// ConversationSummary is one entry of the list_conversations output.
type ConversationSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Fused     bool   `json:"fused"`
	UpdatedAt string `json:"updated_at"`
}

// ListOutput represents the output of the list_conversations tool.
type ListOutput struct {
	Conversations []ConversationSummary `json:"conversations"`
	Count         int                   `json:"count"`
}

// handleRetrieve processes a retrieve_context request.
func (s *Server) handleRetrieve(ctx context.Context, _ *mcp.CallToolRequest, input RetrieveInput) (*mcp.CallToolResult, RetrieveOutput, error) {
	logger := s.config.Logger

	if input.ChatID == "" {
		return toolError("chat_id is required"), RetrieveOutput{}, nil
	}
	if input.Query == "" {
		return toolError("query is required"), RetrieveOutput{}, nil
	}

	topK := input.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	logger.Debug("MCP retrieve request",
		"chat_id", input.ChatID,
		"query", input.Query,
		"top_k", topK,
	)

	if _, err := s.config.Store.GetConversation(ctx, input.ChatID); err != nil {
		if storage.IsNotFound(err) {
			return toolError("Chat %s not found", input.ChatID), RetrieveOutput{}, nil
		}
		logger.Error("failed to load conversation", "chat_id", input.ChatID, "error", err)
		return toolError("Failed to load conversation: %v", err), RetrieveOutput{}, nil
	}

	hits, err := s.config.Searcher.Search(ctx, input.ChatID, input.Query, topK)
	if errors.Is(err, vector.ErrNotConfigured) {
		return toolError("No vector store is configured"), RetrieveOutput{}, nil
	}
	if err != nil {
		logger.Error("failed to search vector store", "chat_id", input.ChatID, "error", err)
		return toolError("Failed to search vector store: %v", err), RetrieveOutput{}, nil
	}

	output := RetrieveOutput{
		ChatID:  input.ChatID,
		Query:   input.Query,
		Results: hits,
		Count:   len(hits),
	}

	return s.toolResult(output), output, nil
}

// handleList processes a list_conversations request.
func (s *Server) handleList(ctx context.Context, _ *mcp.CallToolRequest, input ListInput) (*mcp.CallToolResult, ListOutput, error) {
	convs, err := s.config.Store.ListConversations(ctx)
	if err != nil {
		s.config.Logger.Error("failed to list conversations", "error", err)
		return toolError("Failed to list conversations: %v", err), ListOutput{}, nil
	}

	if input.Limit > 0 && len(convs) > input.Limit {
		convs = convs[:input.Limit]
	}

	summaries := make([]ConversationSummary, 0, len(convs))
	for _, c := range convs {
		summaries = append(summaries, ConversationSummary{
			ID:        c.ID,
			Title:     c.Title,
			Provider:  c.Provider,
			Model:     c.Model,
			Fused:     c.Fused,
			UpdatedAt: c.UpdatedAt.Format(time.RFC3339),
		})
	}

	output := ListOutput{
		Conversations: summaries,
		Count:         len(summaries),
	}

	return s.toolResult(output), output, nil
}
