package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent chatmerge configuration stored as config.toml
// in the .chatmerge/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	API         APIConfig         `toml:"api"`
	Client      ClientConfig      `toml:"client"`
	Providers   ProvidersConfig   `toml:"providers"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	Context     ContextConfig     `toml:"context"`
	Worker      WorkerConfig      `toml:"worker"`
	Events      EventsConfig      `toml:"events"`
}

// StorageConfig selects the relational store for conversations, turns,
// attachments and merge records.
type StorageConfig struct {
	// Driver is one of "sqlite", "postgres" or "memory".
	Driver      string `toml:"driver,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen     string `toml:"listen,omitempty"`
	DisableMCP bool   `toml:"disable_mcp,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to a running
// API server (e.g. chatmerge chat, chatmerge merge).
// Values are full URLs (scheme + host + port).
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// ProvidersConfig holds model provider defaults for new and merged conversations.
type ProvidersConfig struct {
	DefaultProvider string `toml:"default_provider,omitempty"`
	DefaultModel    string `toml:"default_model,omitempty"`
	OllamaTarget    string `toml:"ollama_target,omitempty"`
}

// VectorStoreConfig holds vector index settings. An empty provider leaves the
// vector index unconfigured, which disables retrieval and fusion.
type VectorStoreConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Path       string `toml:"path,omitempty"`
	Collection string `toml:"collection,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// ContextConfig tunes the retrieval context assembler and the fusion engine.
type ContextConfig struct {
	RecencyThreshold uint    `toml:"recency_threshold,omitempty"`
	RecentTurns      uint    `toml:"recent_turns,omitempty"`
	TopK             uint    `toml:"top_k,omitempty"`
	FusionThreshold  float64 `toml:"fusion_threshold,omitempty"`
}

// WorkerConfig sizes the background vector upsert pool.
type WorkerConfig struct {
	NumWorkers uint `toml:"num_workers,omitempty"`
	QueueSize  uint `toml:"queue_size,omitempty"`
}

// EventsConfig configures domain event publishing. No brokers means
// events are discarded.
type EventsConfig struct {
	KafkaBrokers string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string `toml:"kafka_topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.driver":       stringKey(func(c *Config) *string { return &c.Storage.Driver }),
	"storage.sqlite_path":  stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn": stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),
	"api.listen":           stringKey(func(c *Config) *string { return &c.API.Listen }),
	"api.disable_mcp": {
		get: func(c *Config) string { return strconv.FormatBool(c.API.DisableMCP) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for api.disable_mcp: %w", err)
			}
			c.API.DisableMCP = b
			return nil
		},
	},
	"client.api_target":           stringKey(func(c *Config) *string { return &c.Client.APITarget }),
	"providers.default_provider":  stringKey(func(c *Config) *string { return &c.Providers.DefaultProvider }),
	"providers.default_model":     stringKey(func(c *Config) *string { return &c.Providers.DefaultModel }),
	"providers.ollama_target":     stringKey(func(c *Config) *string { return &c.Providers.OllamaTarget }),
	"vector_store.provider":       stringKey(func(c *Config) *string { return &c.VectorStore.Provider }),
	"vector_store.target":         stringKey(func(c *Config) *string { return &c.VectorStore.Target }),
	"vector_store.path":           stringKey(func(c *Config) *string { return &c.VectorStore.Path }),
	"vector_store.collection":     stringKey(func(c *Config) *string { return &c.VectorStore.Collection }),
	"embedding.provider":          stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":            stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":             stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.dimensions":        uintKey("embedding.dimensions", func(c *Config) *uint { return &c.Embedding.Dimensions }),
	"context.recency_threshold":   uintKey("context.recency_threshold", func(c *Config) *uint { return &c.Context.RecencyThreshold }),
	"context.recent_turns":        uintKey("context.recent_turns", func(c *Config) *uint { return &c.Context.RecentTurns }),
	"context.top_k":               uintKey("context.top_k", func(c *Config) *uint { return &c.Context.TopK }),
	"context.fusion_threshold": {
		get: func(c *Config) string {
			if c.Context.FusionThreshold == 0 {
				return ""
			}
			return strconv.FormatFloat(c.Context.FusionThreshold, 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for context.fusion_threshold: %w", err)
			}
			if f <= 0 || f > 1 {
				return fmt.Errorf("invalid value for context.fusion_threshold: %v is outside (0, 1]", f)
			}
			c.Context.FusionThreshold = f
			return nil
		},
	},
	"worker.num_workers": uintKey("worker.num_workers", func(c *Config) *uint { return &c.Worker.NumWorkers }),
	"worker.queue_size":  uintKey("worker.queue_size", func(c *Config) *uint { return &c.Worker.QueueSize }),
	"events.kafka_brokers": stringKey(func(c *Config) *string { return &c.Events.KafkaBrokers }),
	"events.kafka_topic":   stringKey(func(c *Config) *string { return &c.Events.KafkaTopic }),
}
