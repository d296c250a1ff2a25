package config

const (
	defaultStorageDriver = "sqlite"
	defaultAPIListen     = ":8081"

	defaultClientAPITarget = "http://localhost:8081"

	defaultProvider     = "ollama"
	defaultModel        = "llama3.2"
	defaultOllamaTarget = "http://localhost:11434"

	defaultVectorProvider   = "chromem"
	defaultVectorCollection = "chatmerge"

	defaultEmbeddingModel      = "embeddinggemma"
	defaultEmbeddingDimensions = 768

	defaultRecencyThreshold = 10
	defaultRecentTurns      = 6
	defaultTopK             = 8
	defaultFusionThreshold  = 0.82

	defaultNumWorkers = 3
	defaultQueueSize  = 256

	defaultKafkaTopic = "chatmerge.events"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver: defaultStorageDriver,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
		Providers: ProvidersConfig{
			DefaultProvider: defaultProvider,
			DefaultModel:    defaultModel,
			OllamaTarget:    defaultOllamaTarget,
		},
		VectorStore: VectorStoreConfig{
			Provider:   defaultVectorProvider,
			Collection: defaultVectorCollection,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultProvider,
			Target:     defaultOllamaTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		Context: ContextConfig{
			RecencyThreshold: defaultRecencyThreshold,
			RecentTurns:      defaultRecentTurns,
			TopK:             defaultTopK,
			FusionThreshold:  defaultFusionThreshold,
		},
		Worker: WorkerConfig{
			NumWorkers: defaultNumWorkers,
			QueueSize:  defaultQueueSize,
		},
		Events: EventsConfig{
			KafkaTopic: defaultKafkaTopic,
		},
	}
}
