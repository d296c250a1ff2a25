// Package servecmder provides the serve command that runs the chatmerge API
// server together with its background vector worker.
package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatmerge/api"
	"github.com/papercomputeco/chatmerge/pkg/config"
	"github.com/papercomputeco/chatmerge/pkg/logger"
)

type serveCommander struct {
	configDir string
	debug     bool
	jsonLogs  bool

	// flag targets, bound to viper in PreRunE
	listen          string
	storageDriver   string
	sqlitePath      string
	postgresDSN     string
	provider        string
	model           string
	ollamaTarget    string
	vectorProvider  string
	vectorTarget    string
	vectorPath      string
	embeddingProv   string
	embeddingTarget string
	embeddingModel  string
	embeddingDims   uint
	topK            uint
	kafkaBrokers    string

	cfg    *config.Config
	logger *slog.Logger
}

const serveLongDesc string = `Run the chatmerge API server.

The server exposes conversation management, streamed completions and merges
over HTTP, and an MCP endpoint at /mcp for retrieval tools. A background
worker pool indexes every persisted turn into the configured vector store.

Settings come from flags, CHATMERGE_* environment variables and config.toml,
in that order of precedence.

Examples:
  chatmerge serve
  chatmerge serve --storage-driver postgres --postgres-dsn postgres://localhost/chatmerge
  chatmerge serve --vector-store-provider qdrant --vector-store-target localhost:6334
  chatmerge serve --provider openai --model gpt-4o`

const serveShortDesc string = "Run the chatmerge API server"

var serveFlags = config.FlagSet{
	config.FlagAPIListen: {
		Name:        "listen",
		Shorthand:   "l",
		ViperKey:    "api.listen",
		Description: "Address for the API server to listen on",
	},
	config.FlagStorageDriver: {
		Name:        "storage-driver",
		ViperKey:    "storage.driver",
		Description: "Relational store: sqlite, postgres or memory",
	},
	config.FlagSQLite: {
		Name:        "sqlite",
		Shorthand:   "s",
		ViperKey:    "storage.sqlite_path",
		Description: "Path to the SQLite database (default: <config-dir>/chatmerge.db)",
	},
	config.FlagPostgresDSN: {
		Name:        "postgres-dsn",
		ViperKey:    "storage.postgres_dsn",
		Description: "PostgreSQL connection string",
	},
	config.FlagProvider: {
		Name:        "provider",
		Shorthand:   "p",
		ViperKey:    "providers.default_provider",
		Description: "Default model provider for new and merged chats",
	},
	config.FlagModel: {
		Name:        "model",
		Shorthand:   "m",
		ViperKey:    "providers.default_model",
		Description: "Default model for the default provider",
	},
	config.FlagOllamaTarget: {
		Name:        "ollama-target",
		ViperKey:    "providers.ollama_target",
		Description: "Ollama server URL",
	},
	config.FlagVectorStoreProv: {
		Name:        "vector-store-provider",
		ViperKey:    "vector_store.provider",
		Description: "Vector store: memory, sqlite-vec, chroma, chromem or qdrant",
	},
	config.FlagVectorStoreTgt: {
		Name:        "vector-store-target",
		ViperKey:    "vector_store.target",
		Description: "Vector store URL for chroma or host:port for qdrant",
	},
	config.FlagVectorStorePath: {
		Name:        "vector-store-path",
		ViperKey:    "vector_store.path",
		Description: "Directory of the embedded vector stores (default: <config-dir>/vectors)",
	},
	config.FlagEmbeddingProv: {
		Name:        "embedding-provider",
		ViperKey:    "embedding.provider",
		Description: "Embedding provider: ollama, openai or local",
	},
	config.FlagEmbeddingTgt: {
		Name:        "embedding-target",
		ViperKey:    "embedding.target",
		Description: "Embedding provider URL",
	},
	config.FlagEmbeddingModel: {
		Name:        "embedding-model",
		ViperKey:    "embedding.model",
		Description: "Embedding model name",
	},
	config.FlagEmbeddingDims: {
		Name:        "embedding-dimensions",
		ViperKey:    "embedding.dimensions",
		Description: "Embedding vector dimensions",
	},
	config.FlagTopK: {
		Name:        "top-k",
		ViperKey:    "context.top_k",
		Description: "Turns retrieved per completion once a chat outgrows its window",
	},
	config.FlagKafkaBrokers: {
		Name:        "kafka-brokers",
		ViperKey:    "events.kafka_brokers",
		Description: "Comma-separated Kafka brokers for domain events (default: events are discarded)",
	},
}

var serveFlagKeys = []string{
	config.FlagAPIListen,
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagProvider,
	config.FlagModel,
	config.FlagOllamaTarget,
	config.FlagVectorStoreProv,
	config.FlagVectorStoreTgt,
	config.FlagVectorStorePath,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagEmbeddingDims,
	config.FlagTopK,
	config.FlagKafkaBrokers,
}

func NewServeCmd() *cobra.Command {
	return newServeCmd(&serveCommander{})
}

func newServeCmd(cmder *serveCommander) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, serveFlags, serveFlagKeys)
			cmder.cfg = config.FromViper(v)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, serveFlags, config.FlagAPIListen, &cmder.listen)
	config.AddStringFlag(cmd, serveFlags, config.FlagStorageDriver, &cmder.storageDriver)
	config.AddStringFlag(cmd, serveFlags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, serveFlags, config.FlagPostgresDSN, &cmder.postgresDSN)
	config.AddStringFlag(cmd, serveFlags, config.FlagProvider, &cmder.provider)
	config.AddStringFlag(cmd, serveFlags, config.FlagModel, &cmder.model)
	config.AddStringFlag(cmd, serveFlags, config.FlagOllamaTarget, &cmder.ollamaTarget)
	config.AddStringFlag(cmd, serveFlags, config.FlagVectorStoreProv, &cmder.vectorProvider)
	config.AddStringFlag(cmd, serveFlags, config.FlagVectorStoreTgt, &cmder.vectorTarget)
	config.AddStringFlag(cmd, serveFlags, config.FlagVectorStorePath, &cmder.vectorPath)
	config.AddStringFlag(cmd, serveFlags, config.FlagEmbeddingProv, &cmder.embeddingProv)
	config.AddStringFlag(cmd, serveFlags, config.FlagEmbeddingTgt, &cmder.embeddingTarget)
	config.AddStringFlag(cmd, serveFlags, config.FlagEmbeddingModel, &cmder.embeddingModel)
	config.AddUintFlag(cmd, serveFlags, config.FlagEmbeddingDims, &cmder.embeddingDims)
	config.AddUintFlag(cmd, serveFlags, config.FlagTopK, &cmder.topK)
	config.AddStringFlag(cmd, serveFlags, config.FlagKafkaBrokers, &cmder.kafkaBrokers)
	cmd.Flags().BoolVar(&cmder.jsonLogs, "json-logs", false, "Emit JSON logs instead of pretty output")

	return cmd
}

func (c *serveCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger = logger.New(
		logger.WithDebug(c.debug),
		logger.WithJSON(c.jsonLogs),
		logger.WithPretty(!c.jsonLogs),
	)

	stack, err := newStack(ctx, c.cfg, c.configDir, c.logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	server, err := api.NewServer(api.Config{
		ListenAddr:      c.cfg.API.Listen,
		DefaultProvider: c.cfg.Providers.DefaultProvider,
		DefaultModel:    c.cfg.Providers.DefaultModel,
		DisableMCP:      c.cfg.API.DisableMCP,
	}, stack.serverOptions())
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// Channel to capture errors from the server goroutine
	errChan := make(chan error, 1)

	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
		return server.Shutdown()
	}
}
