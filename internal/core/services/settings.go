package services

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/custodia-labs/paperdex/internal/core/domain"
	"github.com/custodia-labs/paperdex/internal/core/ports/driven"
	"github.com/custodia-labs/paperdex/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keySearchMode  = "search.mode"
	keySearchLimit = "search.limit"

	keyEmbedProvider    = "embedding.provider"
	keyEmbedModel       = "embedding.model"
	keyEmbedBaseURL     = "embedding.base_url"
	keyEmbedAPIKey      = "embedding.api_key"
	keyEmbedDims        = "embedding.dimensions"
	keyEmbedTimeout     = "embedding.timeout"
	keyEmbedAttempts    = "embedding.max_attempts"
	keyEmbedBackoff     = "embedding.backoff"
	keyEmbedCacheSize   = "embedding.cache_size"
	keyEmbedMaxRunes    = "embedding.max_input_runes"
	keyEmbedRatePerSec  = "embedding.requests_per_second"
	keyStorageBackend   = "storage.backend"
	keyStorageDataDir   = "storage.data_dir"
	keyStorageDSN       = "storage.dsn"
	keyReembedBatchSize = "reembed.batch_size"
	keyReembedChunkSize = "reembed.chunk_size"
	keyReembedOverlap   = "reembed.chunk_overlap"
	keyReembedSweep     = "reembed.sweep_interval"
)

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore, aiValidator driven.AIConfigValidator) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
	}
}

// Get retrieves current application settings. Missing or unrecognised
// values fall back to defaults.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	defaults := domain.DefaultAppSettings()

	settings := &domain.AppSettings{
		Search: domain.SearchSettings{
			Mode:  s.getSearchMode(defaults.Search.Mode),
			Limit: s.getInt(keySearchLimit, defaults.Search.Limit),
		},
		Embedding: domain.EmbeddingSettings{
			Provider:          s.getProvider(defaults.Embedding.Provider),
			BaseURL:           s.configStore.GetString(keyEmbedBaseURL), // empty means the provider default
			APIKey:            s.configStore.GetString(keyEmbedAPIKey),
			Timeout:           s.getDuration(keyEmbedTimeout, defaults.Embedding.Timeout),
			MaxAttempts:       s.getInt(keyEmbedAttempts, defaults.Embedding.MaxAttempts),
			Backoff:           s.getDuration(keyEmbedBackoff, defaults.Embedding.Backoff),
			CacheSize:         s.getInt(keyEmbedCacheSize, defaults.Embedding.CacheSize),
			MaxInputRunes:     s.getInt(keyEmbedMaxRunes, defaults.Embedding.MaxInputRunes),
			RequestsPerSecond: s.getFloat(keyEmbedRatePerSec, defaults.Embedding.RequestsPerSecond),
		},
		Storage: domain.StorageSettings{
			Backend: s.getBackend(defaults.Storage.Backend),
			DataDir: s.configStore.GetString(keyStorageDataDir),
			DSN:     s.configStore.GetString(keyStorageDSN),
		},
		Reembed: domain.ReembedSettings{
			BatchSize:     s.getInt(keyReembedBatchSize, defaults.Reembed.BatchSize),
			ChunkSize:     s.getInt(keyReembedChunkSize, defaults.Reembed.ChunkSize),
			ChunkOverlap:  s.getInt(keyReembedOverlap, defaults.Reembed.ChunkOverlap),
			SweepInterval: s.getDuration(keyReembedSweep, defaults.Reembed.SweepInterval),
		},
	}

	// Model and dimensions follow the provider unless set explicitly.
	settings.Embedding.Model = s.getString(keyEmbedModel, domain.DefaultEmbeddingModels()[settings.Embedding.Provider])
	dims := defaults.Embedding.Dimensions
	if d, ok := domain.EmbeddingDimensions()[settings.Embedding.Model]; ok {
		dims = d
	}
	settings.Embedding.Dimensions = s.getInt(keyEmbedDims, dims)

	return settings, nil
}

// Save persists application settings.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	values := []struct {
		key   string
		value any
	}{
		{keySearchMode, settings.Search.Mode.String()},
		{keySearchLimit, settings.Search.Limit},
		{keyEmbedProvider, settings.Embedding.Provider.String()},
		{keyEmbedModel, settings.Embedding.Model},
		{keyEmbedBaseURL, settings.Embedding.BaseURL},
		{keyEmbedDims, settings.Embedding.Dimensions},
		{keyEmbedTimeout, settings.Embedding.Timeout},
		{keyEmbedAttempts, settings.Embedding.MaxAttempts},
		{keyEmbedBackoff, settings.Embedding.Backoff},
		{keyEmbedCacheSize, settings.Embedding.CacheSize},
		{keyEmbedMaxRunes, settings.Embedding.MaxInputRunes},
		{keyEmbedRatePerSec, settings.Embedding.RequestsPerSecond},
		{keyStorageBackend, settings.Storage.Backend.String()},
		{keyStorageDataDir, settings.Storage.DataDir},
		{keyStorageDSN, settings.Storage.DSN},
		{keyReembedBatchSize, settings.Reembed.BatchSize},
		{keyReembedChunkSize, settings.Reembed.ChunkSize},
		{keyReembedOverlap, settings.Reembed.ChunkOverlap},
		{keyReembedSweep, settings.Reembed.SweepInterval},
	}
	for _, v := range values {
		if err := s.configStore.Set(v.key, v.value); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}

	// An empty key never overwrites a stored one.
	if settings.Embedding.APIKey != "" {
		if err := s.configStore.Set(keyEmbedAPIKey, settings.Embedding.APIKey); err != nil {
			return fmt.Errorf("save %s: %w", keyEmbedAPIKey, err)
		}
	}

	return nil
}

// SetSearchMode updates the default search mode.
func (s *SettingsService) SetSearchMode(mode domain.SearchMode) error {
	if !mode.IsValid() {
		return fmt.Errorf("%w: search mode %q", domain.ErrInvalidInput, mode)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}
	settings.Search.Mode = mode
	return s.Save(settings)
}

// SetEmbeddingProvider configures the embedding provider. An empty model
// selects the provider default; dimensions follow the model when known.
func (s *SettingsService) SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error {
	if !slices.Contains(domain.AllEmbeddingProviders(), provider) {
		return fmt.Errorf("%w: embedding provider %q", domain.ErrUnsupportedType, provider)
	}
	if provider.RequiresAPIKey() && apiKey == "" {
		return fmt.Errorf("%w: API key required for %s", domain.ErrInvalidInput, provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	settings.Embedding.Provider = provider
	if model == "" {
		model = domain.DefaultEmbeddingModels()[provider]
	}
	settings.Embedding.Model = model
	settings.Embedding.BaseURL = domain.DefaultBaseURLs()[provider]
	settings.Embedding.APIKey = apiKey

	if d, ok := domain.EmbeddingDimensions()[model]; ok {
		settings.Embedding.Dimensions = d
	}

	return s.Save(settings)
}

// SetStorage configures the storage backend. location is the data
// directory for SQLite and the connection string for PostgreSQL.
func (s *SettingsService) SetStorage(backend domain.StorageBackend, location string) error {
	if !backend.IsValid() {
		return fmt.Errorf("%w: storage backend %q", domain.ErrUnsupportedType, backend)
	}
	if backend == domain.StoragePostgres && location == "" {
		return fmt.Errorf("%w: postgres requires a connection string", domain.ErrInvalidInput)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	settings.Storage.Backend = backend
	switch backend {
	case domain.StorageSQLite:
		settings.Storage.DataDir = location
	case domain.StoragePostgres:
		settings.Storage.DSN = location
	case domain.StorageMemory:
	}

	return s.Save(settings)
}

// Validate checks if current settings are usable.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}

	var errs []error

	if !settings.Search.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("invalid search mode: %s", settings.Search.Mode))
	}
	if settings.Search.Limit <= 0 || settings.Search.Limit > domain.MaxSearchLimit {
		errs = append(errs, fmt.Errorf("search limit must be in 1..%d, got %d", domain.MaxSearchLimit, settings.Search.Limit))
	}

	if settings.Search.Mode.RequiresEmbedding() && !settings.Embedding.IsConfigured() {
		errs = append(errs, fmt.Errorf(
			"search mode %q requires embedding provider to be configured",
			settings.Search.Mode.Description(),
		))
	}
	if settings.Embedding.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("embedding dimensions must be positive, got %d", settings.Embedding.Dimensions))
	}
	if settings.Embedding.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("embedding max_attempts must be positive, got %d", settings.Embedding.MaxAttempts))
	}

	if settings.Storage.Backend == domain.StoragePostgres && settings.Storage.DSN == "" {
		errs = append(errs, errors.New("postgres storage requires storage.dsn"))
	}

	r := settings.Reembed
	if r.BatchSize <= 0 || r.BatchSize > MaxBatchSize {
		errs = append(errs, fmt.Errorf("reembed batch_size must be in 1..%d, got %d", MaxBatchSize, r.BatchSize))
	}
	if r.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("reembed chunk_size must be positive, got %d", r.ChunkSize))
	}
	if r.ChunkOverlap < 0 || r.ChunkOverlap >= r.ChunkSize {
		errs = append(errs, fmt.Errorf("reembed chunk_overlap must be in 0..chunk_size-1, got %d", r.ChunkOverlap))
	}
	if r.SweepInterval < time.Second {
		errs = append(errs, fmt.Errorf("reembed sweep_interval must be at least 1s, got %s", r.SweepInterval))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrInvalidInput, errors.Join(errs...))
	}
	return nil
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// ValidateEmbeddingConfig validates the current embedding configuration by pinging the provider.
func (s *SettingsService) ValidateEmbeddingConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateEmbedding(&settings.Embedding)
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getInt honours a stored zero; chunk_overlap = 0 is a valid setting.
func (s *SettingsService) getInt(key string, defaultVal int) int {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetInt(key)
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetFloat(key)
}

func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	val := s.configStore.GetDuration(key)
	if val <= 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getSearchMode(defaultVal domain.SearchMode) domain.SearchMode {
	mode := domain.SearchMode(s.configStore.GetString(keySearchMode))
	if !mode.IsValid() {
		return defaultVal
	}
	return mode
}

func (s *SettingsService) getProvider(defaultVal domain.AIProvider) domain.AIProvider {
	provider := domain.AIProvider(s.configStore.GetString(keyEmbedProvider))
	if !provider.IsValid() {
		return defaultVal
	}
	return provider
}

func (s *SettingsService) getBackend(defaultVal domain.StorageBackend) domain.StorageBackend {
	backend := domain.StorageBackend(s.configStore.GetString(keyStorageBackend))
	if !backend.IsValid() {
		return defaultVal
	}
	return backend
}
