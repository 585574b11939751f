package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/paperdex/internal/core/domain"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and change the embedding provider, storage backend, search defaults
and re-embedding parameters.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	Args:  cobra.NoArgs,
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Change one setting",
	Long: `Change one setting by its dotted key.

Keys:
  search.mode                    hybrid, semantic or keyword
  search.limit                   default number of results
  embedding.provider             ollama, openai or hashing (resets model and dimensions)
  embedding.model                embedding model name
  embedding.base_url             provider endpoint
  embedding.api_key              provider API key
  embedding.dimensions           vector size of the index
  embedding.timeout              per-call timeout (e.g. 30s)
  embedding.max_attempts         attempts for transient failures
  embedding.backoff              delay between attempts (e.g. 500ms)
  embedding.cache_size           cached query embeddings (0 disables)
  embedding.max_input_runes      longest accepted text
  embedding.requests_per_second  client-side rate limit (0 disables)
  storage.backend                sqlite, postgres or memory
  storage.data_dir               SQLite data directory
  storage.dsn                    PostgreSQL connection string
  reembed.batch_size             chunks per provider call (1-50)
  reembed.chunk_size             characters per chunk
  reembed.chunk_overlap          overlapping characters between chunks
  reembed.sweep_interval         how often 'paperdex watch' sweeps (e.g. 15m)`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

var settingsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the embedding provider is reachable",
	Args:  cobra.NoArgs,
	RunE:  runSettingsCheck,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsCheckCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errSettingsNotConfigured
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	if jsonOutput {
		masked := *settings
		if masked.Embedding.APIKey != "" {
			masked.Embedding.APIKey = maskAPIKey(masked.Embedding.APIKey)
		}
		return printJSON(cmd, masked)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	cmd.Println()

	cmd.Println("[Search]")
	cmd.Printf("  Mode: %s\n", settings.Search.Mode.Description())
	cmd.Printf("  Limit: %d\n", settings.Search.Limit)
	cmd.Println()

	cmd.Println("[Embedding]")
	cmd.Printf("  Provider: %s\n", settings.Embedding.Provider.Description())
	cmd.Printf("  Model: %s\n", settings.Embedding.Model)
	cmd.Printf("  Dimensions: %d\n", settings.Embedding.Dimensions)
	if settings.Embedding.BaseURL != "" {
		cmd.Printf("  Base URL: %s\n", settings.Embedding.BaseURL)
	}
	if settings.Embedding.Provider.RequiresAPIKey() {
		if settings.Embedding.APIKey != "" {
			cmd.Printf("  API Key: %s\n", maskAPIKey(settings.Embedding.APIKey))
		} else {
			cmd.Printf("  API Key: (not set)\n")
		}
	}
	cmd.Printf("  Timeout: %s, attempts: %d, backoff: %s\n",
		settings.Embedding.Timeout, settings.Embedding.MaxAttempts, settings.Embedding.Backoff)
	status := "configured"
	if !settings.Embedding.IsConfigured() {
		status = "not configured"
	}
	cmd.Printf("  Status: %s\n", status)
	cmd.Println()

	cmd.Println("[Storage]")
	cmd.Printf("  Backend: %s\n", settings.Storage.Backend)
	switch settings.Storage.Backend {
	case domain.StorageSQLite:
		dir := settings.Storage.DataDir
		if dir == "" {
			dir = "(default)"
		}
		cmd.Printf("  Data dir: %s\n", dir)
	case domain.StoragePostgres:
		cmd.Printf("  DSN: %s\n", maskDSN(settings.Storage.DSN))
	case domain.StorageMemory:
	}
	cmd.Println()

	cmd.Println("[Re-embedding]")
	cmd.Printf("  Batch size: %d\n", settings.Reembed.BatchSize)
	cmd.Printf("  Chunk size: %d (overlap %d)\n", settings.Reembed.ChunkSize, settings.Reembed.ChunkOverlap)
	cmd.Printf("  Sweep interval: %s\n", settings.Reembed.SweepInterval)
	cmd.Println()

	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
		cmd.Println("Run 'paperdex settings set <key> <value>' to fix configuration issues.")
	} else {
		cmd.Println("Configuration is valid.")
	}

	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errSettingsNotConfigured
	}

	key, value := strings.ToLower(args[0]), strings.TrimSpace(args[1])

	switch key {
	case "search.mode":
		if err := settingsService.SetSearchMode(domain.SearchMode(strings.ToLower(value))); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	case "embedding.provider":
		current, err := settingsService.Get()
		if err != nil {
			return fmt.Errorf("failed to get settings: %w", err)
		}
		provider := domain.AIProvider(strings.ToLower(value))
		if err := settingsService.SetEmbeddingProvider(provider, "", current.Embedding.APIKey); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	default:
		settings, err := settingsService.Get()
		if err != nil {
			return fmt.Errorf("failed to get settings: %w", err)
		}
		if err := applySetting(settings, key, value); err != nil {
			return err
		}
		if err := settingsService.Save(settings); err != nil {
			return fmt.Errorf("failed to save settings: %w", err)
		}
	}

	cmd.Printf("Set %s.\n", key)
	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
	}
	return nil
}

func runSettingsCheck(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errSettingsNotConfigured
	}
	if err := settingsService.ValidateEmbeddingConfig(); err != nil {
		return fmt.Errorf("embedding provider check failed: %w", err)
	}
	cmd.Println("Embedding provider is reachable.")
	return nil
}

// applySetting writes one dotted key into settings.
func applySetting(settings *domain.AppSettings, key, value string) error {
	var err error
	switch key {
	case "search.limit":
		settings.Search.Limit, err = strconv.Atoi(value)
	case "embedding.model":
		settings.Embedding.Model = value
		if d, ok := domain.EmbeddingDimensions()[value]; ok {
			settings.Embedding.Dimensions = d
		}
	case "embedding.base_url":
		settings.Embedding.BaseURL = value
	case "embedding.api_key":
		settings.Embedding.APIKey = value
	case "embedding.dimensions":
		settings.Embedding.Dimensions, err = strconv.Atoi(value)
	case "embedding.timeout":
		settings.Embedding.Timeout, err = time.ParseDuration(value)
	case "embedding.max_attempts":
		settings.Embedding.MaxAttempts, err = strconv.Atoi(value)
	case "embedding.backoff":
		settings.Embedding.Backoff, err = time.ParseDuration(value)
	case "embedding.cache_size":
		settings.Embedding.CacheSize, err = strconv.Atoi(value)
	case "embedding.max_input_runes":
		settings.Embedding.MaxInputRunes, err = strconv.Atoi(value)
	case "embedding.requests_per_second":
		settings.Embedding.RequestsPerSecond, err = strconv.ParseFloat(value, 64)
	case "storage.backend":
		backend := domain.StorageBackend(strings.ToLower(value))
		if !backend.IsValid() {
			return fmt.Errorf("%w: storage backend %q", domain.ErrUnsupportedType, value)
		}
		settings.Storage.Backend = backend
	case "storage.data_dir":
		settings.Storage.DataDir = value
	case "storage.dsn":
		settings.Storage.DSN = value
	case "reembed.batch_size":
		settings.Reembed.BatchSize, err = strconv.Atoi(value)
	case "reembed.chunk_size":
		settings.Reembed.ChunkSize, err = strconv.Atoi(value)
	case "reembed.chunk_overlap":
		settings.Reembed.ChunkOverlap, err = strconv.Atoi(value)
	case "reembed.sweep_interval":
		settings.Reembed.SweepInterval, err = time.ParseDuration(value)
	default:
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrInvalidInput, key, err)
	}
	return nil
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// maskDSN hides the password of a postgres URL.
func maskDSN(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	userinfo, host, ok := strings.Cut(rest, "@")
	if !ok {
		return dsn
	}
	user, _, hasPassword := strings.Cut(userinfo, ":")
	if !hasPassword {
		return dsn
	}
	return scheme + "://" + user + ":****@" + host
}
