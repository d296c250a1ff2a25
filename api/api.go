package api

import (
	"context"
	"errors"
	"iter"
	"log/slog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/chatmerge/api/mcp"
	"github.com/papercomputeco/chatmerge/pkg/attachments"
	"github.com/papercomputeco/chatmerge/pkg/completion"
	"github.com/papercomputeco/chatmerge/pkg/llm"
	"github.com/papercomputeco/chatmerge/pkg/llm/provider"
	"github.com/papercomputeco/chatmerge/pkg/logger"
	"github.com/papercomputeco/chatmerge/pkg/merge"
	"github.com/papercomputeco/chatmerge/pkg/storage"
	"github.com/papercomputeco/chatmerge/pkg/vector"
)

// Completer streams the answer to one user message.
// *completion.Coordinator implements it.
type Completer interface {
	Stream(ctx context.Context, req completion.Request) iter.Seq[llm.Chunk]
}

// Merger streams a merge. *merge.Orchestrator implements it.
type Merger interface {
	Merge(ctx context.Context, req merge.Request) iter.Seq[llm.Chunk]
}

// Options carries the components the server routes to.
type Options struct {
	Store       storage.Driver
	Completions Completer
	Merges      Merger

	// Searcher backs the MCP retrieval tool. Without it /mcp serves no tools.
	Searcher mcp.Searcher

	// Vectors, Indexer and Blobs are optional. Without Vectors the stats
	// endpoint reports the index as unavailable, without Indexer deleted
	// chats keep their namespace and without Blobs uploads are refused.
	Vectors vector.Resolver
	Indexer completion.Indexer
	Blobs   attachments.Store

	Logger *slog.Logger
}

// Server is the API server for conversations, completions and merges.
type Server struct {
	config Config

	store       storage.Driver
	completions Completer
	merges      Merger
	vectors     vector.Resolver
	indexer     completion.Indexer
	blobs       attachments.Store

	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server.
func NewServer(config Config, opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, errors.New("storage driver is required")
	}
	if opts.Completions == nil {
		return nil, errors.New("completion coordinator is required")
	}
	if opts.Merges == nil {
		return nil, errors.New("merge orchestrator is required")
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if config.DefaultProvider == "" {
		config.DefaultProvider = provider.OpenAI
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             8 * attachments.MaxFileSize,
	})

	s := &Server{
		config:      config,
		store:       opts.Store,
		completions: opts.Completions,
		merges:      opts.Merges,
		vectors:     opts.Vectors,
		indexer:     opts.Indexer,
		blobs:       opts.Blobs,
		logger:      opts.Logger,
		app:         app,
	}

	mcpServer, err := mcp.NewServer(mcp.Config{
		Store:    opts.Store,
		Searcher: opts.Searcher,
		Noop:     config.DisableMCP || opts.Searcher == nil,
		Logger:   opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	app.Get("/ping", s.handlePing)

	api := app.Group("/api")
	api.Get("/chats", s.handleListChats)
	api.Post("/chats", s.handleCreateChat)
	api.Get("/chats/:id", s.handleGetChat)
	api.Patch("/chats/:id", s.handleUpdateChat)
	api.Delete("/chats/:id", s.handleDeleteChat)
	api.Get("/chats/:id/messages", s.handleListMessages)
	api.Post("/chats/:id/completions", s.handleCompletion)
	api.Get("/chats/:id/vectors", s.handleVectorStats)

	api.Post("/merge", s.handleMerge)
	api.Get("/merge/history", s.handleMergeHistory)

	api.Post("/attachments", s.handleUploadAttachments)
	api.Get("/attachments/:id", s.handleGetAttachment)
	api.Delete("/attachments/:id", s.handleDeleteAttachment)

	api.Get("/models", s.handleModels)

	app.All("/mcp", adaptor.HTTPHandler(mcpServer.Handler()))

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
		"mcp", !s.config.DisableMCP,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(llm.ErrorResponse{Error: msg})
}
