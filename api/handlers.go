package api

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/chatmerge/pkg/llm/provider"
	"github.com/papercomputeco/chatmerge/pkg/merge"
	"github.com/papercomputeco/chatmerge/pkg/storage"
	"github.com/papercomputeco/chatmerge/pkg/vector"
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleModels returns the models offered by every provider.
func (s *Server) handleModels(c *fiber.Ctx) error {
	return c.JSON(provider.AllModels())
}

// handleVectorStats reports the size of a chat's vector namespace.
func (s *Server) handleVectorStats(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := s.store.GetConversation(c.Context(), id); err != nil {
		return s.conversationError(c, id, err)
	}

	if s.vectors == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, merge.VectorStoreRequired)
	}

	driver, err := s.vectors.Resolve(c.Context())
	if errors.Is(err, vector.ErrNotConfigured) {
		return errorJSON(c, fiber.StatusServiceUnavailable, merge.VectorStoreRequired)
	}
	if err != nil {
		s.logger.Error("failed to resolve vector store", "error", err)
		return errorJSON(c, fiber.StatusBadGateway, fmt.Sprintf("Failed to reach vector store: %v", err))
	}

	stats, err := driver.Stats(c.Context(), id)
	if err != nil {
		s.logger.Error("failed to read namespace stats", "chat", id, "error", err)
		return errorJSON(c, fiber.StatusBadGateway, fmt.Sprintf("Failed to read vector stats: %v", err))
	}

	return c.JSON(stats)
}

// handleMergeHistory lists completed merges, newest first.
func (s *Server) handleMergeHistory(c *fiber.Ctx) error {
	records, err := s.store.ListMergeRecords(c.Context())
	if err != nil {
		s.logger.Error("failed to list merge records", "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to list merge history")
	}
	return c.JSON(records)
}

// conversationError maps a failed conversation lookup to a response.
func (s *Server) conversationError(c *fiber.Ctx, id string, err error) error {
	if storage.IsNotFound(err) {
		return errorJSON(c, fiber.StatusNotFound, fmt.Sprintf("Chat %s not found", id))
	}
	s.logger.Error("failed to load chat", "chat", id, "error", err)
	return errorJSON(c, fiber.StatusInternalServerError, fmt.Sprintf("Failed to get chat: %v", err))
}
