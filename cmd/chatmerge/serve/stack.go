package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/papercomputeco/chatmerge/api"
	"github.com/papercomputeco/chatmerge/pkg/attachments/local"
	"github.com/papercomputeco/chatmerge/pkg/completion"
	"github.com/papercomputeco/chatmerge/pkg/config"
	"github.com/papercomputeco/chatmerge/pkg/credentials"
	"github.com/papercomputeco/chatmerge/pkg/dotdir"
	"github.com/papercomputeco/chatmerge/pkg/embeddings"
	embeddingutils "github.com/papercomputeco/chatmerge/pkg/embeddings/utils"
	"github.com/papercomputeco/chatmerge/pkg/eventstream"
	"github.com/papercomputeco/chatmerge/pkg/eventstream/kafka"
	"github.com/papercomputeco/chatmerge/pkg/eventstream/nop"
	"github.com/papercomputeco/chatmerge/pkg/llm/provider"
	"github.com/papercomputeco/chatmerge/pkg/merge"
	"github.com/papercomputeco/chatmerge/pkg/retrieval"
	"github.com/papercomputeco/chatmerge/pkg/storage"
	"github.com/papercomputeco/chatmerge/pkg/storage/inmemory"
	"github.com/papercomputeco/chatmerge/pkg/storage/postgres"
	"github.com/papercomputeco/chatmerge/pkg/storage/sqlite"
	"github.com/papercomputeco/chatmerge/pkg/vector"
	vectorutils "github.com/papercomputeco/chatmerge/pkg/vector/utils"
	"github.com/papercomputeco/chatmerge/pkg/worker"
)

// Storage driver names accepted by storage.driver.
const (
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"
	driverMemory   = "memory"
)

const defaultSQLiteFile = "chatmerge.db"

// stack holds every long-lived component behind the API server.
type stack struct {
	store       storage.Driver
	vectors     *vector.Registry
	embedder    embeddings.Embedder
	pool        *worker.Pool
	events      eventstream.Publisher
	blobs       *local.Store
	assembler   *retrieval.Assembler
	completions *completion.Coordinator
	merges      *merge.Orchestrator

	logger *slog.Logger
}

// newStack builds the components described by cfg. Anything opened before
// a failure is closed again.
func newStack(ctx context.Context, cfg *config.Config, configDir string, log *slog.Logger) (_ *stack, err error) {
	s := &stack{logger: log}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	ddm := dotdir.NewManager()

	creds, err := credentials.NewManager(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}

	s.store, err = newStorageDriver(ctx, cfg.Storage, ddm, configDir, log)
	if err != nil {
		return nil, err
	}

	vectorsDir, err := ddm.Sub(configDir, dotdir.VectorsDir)
	if err != nil {
		return nil, err
	}

	s.vectors = vector.NewRegistry(vector.RegistryConfig{
		Factory: vectorutils.NewFactory(log),
		Source:  vectorutils.NewCredentialSource(cfg, vectorsDir, creds),
		Logger:  log,
	})

	s.embedder, err = newEmbedder(cfg.Embedding, creds)
	if err != nil {
		return nil, err
	}

	s.pool, err = worker.NewPool(&worker.Config{
		Vectors:    s.vectors,
		Embedder:   s.embedder,
		NumWorkers: cfg.Worker.NumWorkers,
		QueueSize:  cfg.Worker.QueueSize,
		Logger:     log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}
	go s.drainJobErrors()

	s.events, err = newPublisher(cfg.Events, log)
	if err != nil {
		return nil, err
	}

	uploadsDir, err := ddm.Sub(configDir, dotdir.UploadsDir)
	if err != nil {
		return nil, err
	}
	s.blobs, err = local.NewStore(uploadsDir)
	if err != nil {
		return nil, fmt.Errorf("creating attachment store: %w", err)
	}

	catalog := &provider.Catalog{
		Keys: creds,
		BaseURLs: map[string]string{
			provider.Ollama: cfg.Providers.OllamaTarget,
		},
		Logger: log,
	}

	s.assembler = retrieval.NewAssembler(retrieval.Config{
		Store:            s.store,
		Vectors:          s.vectors,
		Embedder:         s.embedder,
		RecencyThreshold: int(cfg.Context.RecencyThreshold),
		RecentTurns:      int(cfg.Context.RecentTurns),
		TopK:             int(cfg.Context.TopK),
		Logger:           log,
	})

	s.completions = completion.New(completion.Config{
		Store:     s.store,
		Context:   s.assembler,
		Providers: catalog,
		Blobs:     s.blobs,
		Indexer:   s.pool,
		Events:    s.events,
		Logger:    log,
	})

	s.merges = merge.New(merge.Config{
		Store:           s.store,
		Vectors:         s.vectors,
		Providers:       catalog,
		Events:          s.events,
		FusionThreshold: cfg.Context.FusionThreshold,
		DefaultProvider: cfg.Providers.DefaultProvider,
		DefaultModel:    cfg.Providers.DefaultModel,
		Logger:          log,
	})

	log.Info("components ready",
		"storage", cfg.Storage.Driver,
		"vector_store", cfg.VectorStore.Provider,
		"embedding", cfg.Embedding.Provider,
		"provider", cfg.Providers.DefaultProvider,
		"events", cfg.Events.KafkaBrokers != "",
	)

	return s, nil
}

func (s *stack) serverOptions() api.Options {
	return api.Options{
		Store:       s.store,
		Completions: s.completions,
		Merges:      s.merges,
		Searcher:    s.assembler,
		Vectors:     s.vectors,
		Indexer:     s.pool,
		Blobs:       s.blobs,
		Logger:      s.logger,
	}
}

// Close stops the worker pool first so queued jobs finish against open
// stores, then closes everything else.
func (s *stack) Close() error {
	var errs []error
	if s.pool != nil {
		s.pool.Close()
	}
	if s.events != nil {
		errs = append(errs, s.events.Close())
	}
	if s.embedder != nil {
		errs = append(errs, s.embedder.Close())
	}
	if s.vectors != nil {
		errs = append(errs, s.vectors.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	return errors.Join(errs...)
}

func (s *stack) drainJobErrors() {
	for err := range s.pool.Errors() {
		s.logger.Warn("vector job failed", "error", err)
	}
}

func newStorageDriver(ctx context.Context, c config.StorageConfig, ddm *dotdir.Manager, configDir string, log *slog.Logger) (storage.Driver, error) {
	switch c.Driver {
	case driverSQLite, "":
		path := c.SQLitePath
		if path == "" {
			target, err := ddm.Target(configDir)
			if err != nil {
				return nil, err
			}
			path = filepath.Join(target, defaultSQLiteFile)
		}

		driver, err := sqlite.NewDriver(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite storage: %w", err)
		}
		log.Info("using SQLite storage", "path", path)
		return driver, nil

	case driverPostgres:
		if c.PostgresDSN == "" {
			return nil, errors.New("storage.postgres_dsn is required for the postgres driver")
		}

		driver, err := postgres.NewDriver(ctx, c.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL storage: %w", err)
		}
		log.Info("using PostgreSQL storage")
		return driver, nil

	case driverMemory:
		log.Info("using in-memory storage")
		return inmemory.NewDriver(), nil

	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", c.Driver)
	}
}

func newEmbedder(c config.EmbeddingConfig, keys *credentials.Manager) (embeddings.Embedder, error) {
	var apiKey string
	if c.Provider == embeddingutils.ProviderOpenAI {
		key, err := keys.ResolveKey(embeddingutils.ProviderOpenAI)
		if err != nil {
			return nil, fmt.Errorf("resolving openai api key: %w", err)
		}
		apiKey = key
	}

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: c.Provider,
		TargetURL:    c.Target,
		Model:        c.Model,
		Dimensions:   c.Dimensions,
		APIKey:       apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	return embedder, nil
}

func newPublisher(c config.EventsConfig, log *slog.Logger) (eventstream.Publisher, error) {
	if c.KafkaBrokers == "" {
		return nop.NewPublisher(), nil
	}

	pub, err := kafka.NewPublisher(kafka.Config{
		Brokers: c.KafkaBrokers,
		Topic:   c.KafkaTopic,
		Logger:  log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}
	log.Info("publishing events to kafka", "brokers", c.KafkaBrokers, "topic", c.KafkaTopic)
	return pub, nil
}
