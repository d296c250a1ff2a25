package api

import (
	"fmt"
	"slices"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/chatmerge/pkg/llm/provider"
	"github.com/papercomputeco/chatmerge/pkg/storage"
	"github.com/papercomputeco/chatmerge/pkg/worker"
)

const defaultChatTitle = "New Chat"

// ChatResponse is a conversation with its turn count and, for single-chat
// responses, its turns.
type ChatResponse struct {
	*storage.Conversation

	MessageCount int             `json:"message_count"`
	Messages     []*storage.Turn `json:"messages,omitempty"`
}

// CreateChatRequest is the body of POST /api/chats.
type CreateChatRequest struct {
	Title        string `json:"title,omitempty"`
	Provider     string `json:"provider,omitempty"`
	Model        string `json:"model,omitempty"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// UpdateChatRequest is the body of PATCH /api/chats/:id. Absent fields are
// left unchanged.
type UpdateChatRequest struct {
	Title        *string `json:"title,omitempty"`
	SystemPrompt *string `json:"system_prompt,omitempty"`
}

// handleListChats returns every chat, most recently updated first.
func (s *Server) handleListChats(c *fiber.Ctx) error {
	convs, err := s.store.ListConversations(c.Context())
	if err != nil {
		s.logger.Error("failed to list chats", "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, fmt.Sprintf("Failed to list chats: %v", err))
	}

	chats := make([]ChatResponse, 0, len(convs))
	for _, conv := range convs {
		turns, err := s.store.ListTurns(c.Context(), conv.ID)
		if err != nil {
			s.logger.Error("failed to count chat turns", "chat", conv.ID, "error", err)
			return errorJSON(c, fiber.StatusInternalServerError, fmt.Sprintf("Failed to list chats: %v", err))
		}
		chats = append(chats, ChatResponse{Conversation: conv, MessageCount: len(turns)})
	}

	return c.JSON(chats)
}

// handleCreateChat creates an empty chat.
func (s *Server) handleCreateChat(c *fiber.Ctx) error {
	var req CreateChatRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.Provider == "" {
		req.Provider = s.config.DefaultProvider
	}
	if !slices.Contains(provider.SupportedProviders(), req.Provider) {
		return errorJSON(c, fiber.StatusBadRequest, "Unsupported provider: "+req.Provider)
	}
	if req.Model == "" {
		req.Model = s.defaultModel(req.Provider)
	}
	if req.Title == "" {
		req.Title = defaultChatTitle
	}

	conv := &storage.Conversation{
		Title:        req.Title,
		Provider:     req.Provider,
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
	}
	if err := s.store.CreateConversation(c.Context(), conv); err != nil {
		s.logger.Error("failed to create chat", "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, fmt.Sprintf("Failed to create chat: %v", err))
	}

	s.logger.Info("created chat", "chat", conv.ID, "provider", conv.Provider, "model", conv.Model)
	return c.Status(fiber.StatusCreated).JSON(ChatResponse{Conversation: conv})
}

// handleGetChat returns a chat with all of its turns.
func (s *Server) handleGetChat(c *fiber.Ctx) error {
	id := c.Params("id")
	conv, err := s.store.GetConversation(c.Context(), id)
	if err != nil {
		return s.conversationError(c, id, err)
	}
	return s.chatWithTurns(c, conv)
}

// handleUpdateChat changes the title or system prompt of a chat.
func (s *Server) handleUpdateChat(c *fiber.Ctx) error {
	var req UpdateChatRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid request body")
	}

	id := c.Params("id")
	conv, err := s.store.GetConversation(c.Context(), id)
	if err != nil {
		return s.conversationError(c, id, err)
	}

	if req.Title != nil {
		conv.Title = *req.Title
	}
	if req.SystemPrompt != nil {
		conv.SystemPrompt = *req.SystemPrompt
	}

	if err := s.store.UpdateConversation(c.Context(), conv); err != nil {
		s.logger.Error("failed to update chat", "chat", id, "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, fmt.Sprintf("Failed to update chat: %v", err))
	}

	s.logger.Info("updated chat", "chat", id)
	return s.chatWithTurns(c, conv)
}

// handleDeleteChat deletes a chat, its turns and their attachments. The
// vector namespace is removed in the background.
func (s *Server) handleDeleteChat(c *fiber.Ctx) error {
	ctx := c.Context()
	id := c.Params("id")

	turns, err := s.store.ListTurns(ctx, id)
	if err != nil {
		return s.conversationError(c, id, err)
	}

	for _, t := range turns {
		for _, a := range t.Attachments {
			s.removeAttachment(c, a)
		}
	}

	if err := s.store.DeleteConversation(ctx, id); err != nil {
		if storage.IsNotFound(err) {
			return s.conversationError(c, id, err)
		}
		s.logger.Error("failed to delete chat", "chat", id, "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, fmt.Sprintf("Failed to delete chat: %v", err))
	}

	if s.indexer != nil && !s.indexer.Enqueue(worker.DeleteJob(id)) {
		s.logger.Warn("namespace not deleted, queue full", "chat", id)
	}

	s.logger.Info("deleted chat", "chat", id)
	return c.SendStatus(fiber.StatusNoContent)
}

// handleListMessages returns the turns of a chat, oldest first.
func (s *Server) handleListMessages(c *fiber.Ctx) error {
	id := c.Params("id")
	turns, err := s.store.ListTurns(c.Context(), id)
	if err != nil {
		return s.conversationError(c, id, err)
	}
	return c.JSON(turns)
}

func (s *Server) chatWithTurns(c *fiber.Ctx, conv *storage.Conversation) error {
	turns, err := s.store.ListTurns(c.Context(), conv.ID)
	if err != nil {
		return s.conversationError(c, conv.ID, err)
	}
	return c.JSON(ChatResponse{Conversation: conv, MessageCount: len(turns), Messages: turns})
}

// defaultModel picks the model of a new chat that names none.
func (s *Server) defaultModel(name string) string {
	if name == s.config.DefaultProvider && s.config.DefaultModel != "" {
		return s.config.DefaultModel
	}
	if models := provider.AllModels()[name]; len(models) > 0 {
		return models[0]
	}
	return ""
}
