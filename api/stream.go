package api

import (
	"context"
	"io"
	"iter"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/chatmerge/pkg/completion"
	"github.com/papercomputeco/chatmerge/pkg/llm"
	"github.com/papercomputeco/chatmerge/pkg/merge"
	"github.com/papercomputeco/chatmerge/pkg/sse"
)

// handleCompletion streams the answer to a user message.
func (s *Server) handleCompletion(c *fiber.Ctx) error {
	var req completion.Request
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Content) == "" && len(req.AttachmentIDs) == 0 {
		return errorJSON(c, fiber.StatusBadRequest, "content is required")
	}

	id := c.Params("id")
	if _, err := s.store.GetConversation(c.Context(), id); err != nil {
		return s.conversationError(c, id, err)
	}
	req.ConversationID = id

	return s.streamChunks(c, func(ctx context.Context) iter.Seq[llm.Chunk] {
		return s.completions.Stream(ctx, req)
	})
}

// handleMerge streams the progress of a merge.
func (s *Server) handleMerge(c *fiber.Ctx) error {
	var req merge.Request
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid request body")
	}
	if len(req.SourceIDs) < merge.MinSources {
		return errorJSON(c, fiber.StatusBadRequest, "At least 2 chat IDs required for merge")
	}

	return s.streamChunks(c, func(ctx context.Context) iter.Seq[llm.Chunk] {
		return s.merges.Merge(ctx, req)
	})
}

// streamChunks writes the chunks of run to the client as SSE data events.
//
// The stream runs on its own context because fasthttp recycles the request
// context once the handler returns. A client that goes away fails the next
// pipe write, which stops the iteration and cancels the context.
func (s *Server) streamChunks(c *fiber.Ctx, run func(ctx context.Context) iter.Seq[llm.Chunk]) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	ctx, cancel := context.WithCancel(context.Background())

	// io.Pipe gives per-chunk backpressure: each write blocks until
	// fasthttp's chunked body writer has consumed and flushed it.
	pr, pw := io.Pipe()
	go func() {
		defer cancel()
		defer pw.Close()

		w := sse.NewWriter(pw)
		for chunk := range run(ctx) {
			if err := w.WriteJSON(chunk); err != nil {
				s.logger.Debug("stream client went away", "error", err)
				return
			}
		}
	}()

	// Unknown size (-1) triggers chunked transfer encoding in fasthttp.
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}
