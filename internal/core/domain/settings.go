package domain

import "time"

const unknownDescription = "Unknown"

// SearchSettings holds search behaviour configuration.
type SearchSettings struct {
	// Mode is the default retrieval mode.
	Mode SearchMode

	// Limit is the default number of results.
	Limit int
}

// AIProvider identifies an embedding service provider.
type AIProvider string

// Available embedding providers.
const (
	// AIProviderOllama is a local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is the OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderHashing is the offline feature-hashing embedder.
	AIProviderHashing AIProvider = "hashing"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderHashing:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI
}

// IsLocal returns true if this provider runs locally.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderOllama || p == AIProviderHashing
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderHashing:
		return "Feature hashing (offline)"
	default:
		return unknownDescription
	}
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint.
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string

	// Dimensions is the embedding vector size fixed for the index.
	Dimensions int

	// Timeout bounds every provider call.
	Timeout time.Duration

	// MaxAttempts is the number of attempts for transient failures.
	MaxAttempts int

	// Backoff is the fixed delay between attempts.
	Backoff time.Duration

	// CacheSize is the number of query embeddings kept in memory (0 disables).
	CacheSize int

	// MaxInputRunes rejects longer texts as invalid input.
	MaxInputRunes int

	// RequestsPerSecond throttles provider calls (0 disables).
	RequestsPerSecond float64
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// StorageBackend identifies a chunk store implementation.
type StorageBackend string

// Available storage backends.
const (
	// StorageSQLite is the embedded single-file store.
	StorageSQLite StorageBackend = "sqlite"

	// StoragePostgres is PostgreSQL with pgvector.
	StoragePostgres StorageBackend = "postgres"

	// StorageMemory keeps everything in process memory.
	StorageMemory StorageBackend = "memory"
)

// IsValid returns true if the backend is recognised.
func (b StorageBackend) IsValid() bool {
	switch b {
	case StorageSQLite, StoragePostgres, StorageMemory:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (b StorageBackend) String() string {
	return string(b)
}

// StorageSettings holds persistence configuration.
type StorageSettings struct {
	// Backend selects the store implementation.
	Backend StorageBackend

	// DataDir is the SQLite data directory.
	DataDir string

	// DSN is the PostgreSQL connection string.
	DSN string
}

// ReembedSettings holds re-embedding coordinator configuration.
type ReembedSettings struct {
	// BatchSize is the maximum number of chunks per provider call.
	BatchSize int

	// ChunkSize is the number of characters per chunk.
	ChunkSize int

	// ChunkOverlap is the number of overlapping characters between chunks.
	ChunkOverlap int

	// SweepInterval is how often the watch loop sweeps for papers without chunks.
	SweepInterval time.Duration
}

// AppSettings holds all application settings.
type AppSettings struct {
	Search    SearchSettings
	Embedding EmbeddingSettings
	Storage   StorageSettings
	Reembed   ReembedSettings
}

// DefaultAppSettings returns settings with sensible defaults.
// The offline hashing embedder is used until a provider is configured.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Search: SearchSettings{
			Mode:  SearchModeHybrid,
			Limit: DefaultSearchLimit,
		},
		Embedding: EmbeddingSettings{
			Provider:      AIProviderHashing,
			Model:         "hashing-v1",
			Dimensions:    384,
			Timeout:       30 * time.Second,
			MaxAttempts:   3,
			Backoff:       500 * time.Millisecond,
			CacheSize:     1024,
			MaxInputRunes: 8192,
		},
		Storage: StorageSettings{
			Backend: StorageSQLite,
		},
		Reembed: ReembedSettings{
			BatchSize:     50,
			ChunkSize:     1000,
			ChunkOverlap:  200,
			SweepInterval: 15 * time.Minute,
		},
	}
}

// AllEmbeddingProviders returns providers that can produce embeddings.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
		AIProviderHashing,
	}
}

// AllStorageBackends returns the available chunk store implementations.
func AllStorageBackends() []StorageBackend {
	return []StorageBackend{StorageSQLite, StoragePostgres, StorageMemory}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:  "nomic-embed-text",
		AIProviderOpenAI:  "text-embedding-3-small",
		AIProviderHashing: "hashing-v1",
	}
}

// DefaultBaseURLs returns the endpoint used when none is configured.
func DefaultBaseURLs() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "http://localhost:11434",
		AIProviderOpenAI: "https://api.openai.com/v1",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
		// Offline
		"hashing-v1": 384,
	}
}
