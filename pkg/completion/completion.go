// Package completion answers one user message of a conversation as a stream.
//
// The Coordinator persists the user turn, assembles the prior context,
// streams the provider's reply to the caller and persists the assistant turn
// once the provider finishes. Indexing the new turns happens in the
// background.
package completion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/papercomputeco/chatmerge/pkg/attachments"
	"github.com/papercomputeco/chatmerge/pkg/eventstream"
	"github.com/papercomputeco/chatmerge/pkg/llm"
	"github.com/papercomputeco/chatmerge/pkg/llm/provider"
	"github.com/papercomputeco/chatmerge/pkg/logger"
	"github.com/papercomputeco/chatmerge/pkg/retrieval"
	"github.com/papercomputeco/chatmerge/pkg/storage"
	"github.com/papercomputeco/chatmerge/pkg/worker"
)

// DefaultTemperature applies when a request sets none.
const DefaultTemperature = 0.7

// ContextBuilder assembles the prior context of a turn.
type ContextBuilder interface {
	Build(ctx context.Context, req retrieval.Request) (*retrieval.Context, error)
}

// Indexer accepts background vector jobs. *worker.Pool implements it.
type Indexer interface {
	Enqueue(job worker.Job) bool
}

// Config configures a Coordinator.
type Config struct {
	Store     storage.Driver
	Context   ContextBuilder
	Providers provider.Connector

	// Blobs, Indexer and Events are optional.
	Blobs   attachments.Store
	Indexer Indexer
	Events  eventstream.Publisher

	Logger *slog.Logger
}

// Coordinator runs streaming completions.
type Coordinator struct {
	store     storage.Driver
	context   ContextBuilder
	providers provider.Connector
	blobs     attachments.Store
	indexer   Indexer
	events    eventstream.Publisher
	logger    *slog.Logger
}

// New creates a Coordinator.
func New(cfg Config) *Coordinator {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Coordinator{
		store:     cfg.Store,
		context:   cfg.Context,
		providers: cfg.Providers,
		blobs:     cfg.Blobs,
		indexer:   cfg.Indexer,
		events:    cfg.Events,
		logger:    log,
	}
}

// Request is one user message.
type Request struct {
	ConversationID string   `json:"-"`
	Content        string   `json:"content"`
	AttachmentIDs  []string `json:"attachment_ids,omitempty"`

	// Temperature defaults to DefaultTemperature.
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
}

// Stream answers req. Content and reasoning chunks are forwarded as the
// provider produces them. The sequence ends with a done chunk carrying the
// assistant turn ID (empty when the provider produced no content) or with
// an error chunk.
func (c *Coordinator) Stream(ctx context.Context, req Request) iter.Seq[llm.Chunk] {
	return func(yield func(llm.Chunk) bool) {
		start := time.Now()

		conv, err := c.store.GetConversation(ctx, req.ConversationID)
		if storage.IsNotFound(err) {
			yield(llm.ErrorChunk("Chat not found"))
			return
		}
		if err != nil {
			c.streamError(yield, err)
			return
		}

		user := &storage.Turn{
			ConversationID: conv.ID,
			Role:           storage.RoleUser,
			Content:        req.Content,
		}
		if err := c.store.AppendTurn(ctx, user); err != nil {
			yield(llm.ErrorChunk("Failed to save user message"))
			return
		}

		if len(req.AttachmentIDs) > 0 {
			if err := c.store.AssociateAttachments(ctx, user.ID, req.AttachmentIDs); err != nil {
				c.streamError(yield, err)
				return
			}
			found, err := c.store.GetAttachments(ctx, req.AttachmentIDs)
			if err != nil {
				c.streamError(yield, err)
				return
			}
			user.Attachments = found
		}

		p, err := c.providers.Connect(conv.Provider)
		if errors.Is(err, provider.ErrNoAPIKey) {
			yield(llm.ErrorChunk("No API key configured for provider: " + conv.Provider))
			return
		}
		if err != nil {
			yield(llm.ErrorChunk(fmt.Sprintf("Failed to create provider: %v", err)))
			return
		}

		prior, err := c.context.Build(ctx, retrieval.Request{
			Conversation:  conv,
			Query:         req.Content,
			ExcludeTurnID: user.ID,
		})
		if err != nil {
			c.streamError(yield, err)
			return
		}

		temperature := DefaultTemperature
		if req.Temperature != nil {
			temperature = *req.Temperature
		}

		messages := slices.Concat(prior.Messages, []llm.Message{c.userMessage(ctx, user)})
		chatReq := provider.Request{
			Model:       conv.Model,
			Messages:    messages,
			System:      joinSystem(conv.SystemPrompt, prior.SystemAddendum),
			Temperature: &temperature,
			MaxTokens:   req.MaxTokens,
		}

		c.logger.Debug("streaming completion",
			"conversation", conv.ID,
			"provider", conv.Provider,
			"model", conv.Model,
			"context_mode", prior.Mode,
			"messages", len(messages),
		)

		var content, reasoning strings.Builder
		for chunk := range p.Stream(ctx, chatReq) {
			switch chunk.Type {
			case llm.ChunkContent:
				content.WriteString(chunk.Data)
			case llm.ChunkReasoning:
				reasoning.WriteString(chunk.Data)
			case llm.ChunkError:
				c.logger.Warn("provider stream failed", "conversation", conv.ID, "provider", conv.Provider, "error", chunk.Data)
				yield(chunk)
				return
			case llm.ChunkDone:
				c.finish(ctx, yield, finished{
					conv:      conv,
					user:      user,
					content:   content.String(),
					reasoning: reasoning.String(),
					mode:      prior.Mode,
					started:   start,
				})
				return
			}

			if !yield(chunk) {
				return
			}
		}

		// A provider that ends without a terminal chunk is treated as done.
		c.finish(ctx, yield, finished{
			conv:      conv,
			user:      user,
			content:   content.String(),
			reasoning: reasoning.String(),
			mode:      prior.Mode,
			started:   start,
		})
	}
}

type finished struct {
	conv      *storage.Conversation
	user      *storage.Turn
	content   string
	reasoning string
	mode      retrieval.Mode
	started   time.Time
}

// finish persists the assistant turn and hands both turns to the indexer.
func (c *Coordinator) finish(ctx context.Context, yield func(llm.Chunk) bool, f finished) {
	if f.content == "" {
		yield(llm.DoneChunk(""))
		return
	}

	assistant := &storage.Turn{
		ConversationID: f.conv.ID,
		Role:           storage.RoleAssistant,
		Content:        f.content,
		Reasoning:      f.reasoning,
	}
	if err := c.store.AppendTurn(ctx, assistant); err != nil {
		c.logger.Error("failed to save assistant response", "conversation", f.conv.ID, "error", err)
		yield(llm.ErrorChunk("Failed to save assistant response"))
		return
	}

	c.logger.Info("saved assistant message", "conversation", f.conv.ID, "turn", assistant.ID)

	if c.indexer != nil && !c.indexer.Enqueue(worker.IndexJob(f.conv.ID, f.user, assistant)) {
		c.logger.Warn("turns not indexed, queue full", "conversation", f.conv.ID)
	}

	if c.events != nil {
		event := eventstream.NewTurnPersistedEvent()
		event.ConversationID = f.conv.ID
		event.Provider = f.conv.Provider
		event.Model = f.conv.Model
		event.UserTurnID = f.user.ID
		event.AssistantTurnID = assistant.ID
		event.ContextMode = string(f.mode)
		event.HasReasoning = f.reasoning != ""
		event.DurationMs = time.Since(f.started).Milliseconds()

		if err := c.events.PublishTurn(context.WithoutCancel(ctx), event); err != nil {
			c.logger.Warn("failed to publish turn event", "conversation", f.conv.ID, "error", err)
		}
	}

	yield(llm.DoneChunk(assistant.ID))
}

func (c *Coordinator) streamError(yield func(llm.Chunk) bool, err error) {
	c.logger.Error("completion streaming error", "error", err)
	yield(llm.ErrorChunk(fmt.Sprintf("Streaming error: %v", err)))
}

// userMessage builds the current message with its attachments inlined.
// Attachments whose bytes cannot be read are left out.
func (c *Coordinator) userMessage(ctx context.Context, user *storage.Turn) llm.Message {
	msg := llm.NewTextMessage(llm.RoleUser, user.Content)
	if c.blobs == nil {
		return msg
	}

	for _, a := range user.Attachments {
		data, err := c.readBlob(ctx, a)
		if err != nil {
			c.logger.Warn("failed to read attachment", "attachment", a.ID, "error", err)
			continue
		}
		msg.Content = append(msg.Content, llm.NewAttachmentBlock(a.Filename, a.MimeType, data))
	}
	return msg
}

func (c *Coordinator) readBlob(ctx context.Context, a *storage.Attachment) ([]byte, error) {
	rc, err := c.blobs.Open(ctx, a.StoragePath)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(io.LimitReader(rc, attachments.MaxFileSize))
}

func joinSystem(prompt, addendum string) string {
	switch {
	case addendum == "":
		return prompt
	case prompt == "":
		return addendum
	default:
		return prompt + "\n\n" + addendum
	}
}
