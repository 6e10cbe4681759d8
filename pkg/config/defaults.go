package config

const (
	defaultStorageProvider = "sqlite"
	defaultSQLitePath      = "engram.db"

	defaultIdempotencyWindowSeconds = 30
	defaultLRUCacheSize             = 5000
	defaultBatchSizeHint            = 500

	defaultCascadeMaxDepth   = 5
	defaultCascadeMaxBreadth = 10

	defaultEmbeddingProvider = "none"
	defaultEmbeddingTarget   = "http://localhost:11434"
	defaultEmbeddingModel    = "embeddinggemma"
	defaultEmbeddingTimeout  = 30

	defaultStreamProvider = "none"
	defaultStreamTopic    = "engram.events.recorded"

	defaultAPIListen = ":8081"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Provider:   defaultStorageProvider,
			SQLitePath: defaultSQLitePath,
		},
		Ingest: IngestConfig{
			IdempotencyWindowSeconds: defaultIdempotencyWindowSeconds,
			LRUCacheSize:             defaultLRUCacheSize,
			BatchSizeHint:            defaultBatchSizeHint,
		},
		Cascade: CascadeConfig{
			MaxDepth:   defaultCascadeMaxDepth,
			MaxBreadth: defaultCascadeMaxBreadth,
		},
		Embedding: EmbeddingConfig{
			Provider:       defaultEmbeddingProvider,
			Target:         defaultEmbeddingTarget,
			Model:          defaultEmbeddingModel,
			TimeoutSeconds: defaultEmbeddingTimeout,
		},
		Stream: StreamConfig{
			Provider: defaultStreamProvider,
			Topic:    defaultStreamTopic,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
	}
}
