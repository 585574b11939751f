package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/paperdex/internal/adapters/driven/ai"
	"github.com/custodia-labs/paperdex/internal/adapters/driven/config/file"
	"github.com/custodia-labs/paperdex/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/paperdex/internal/adapters/driven/storage/postgres"
	"github.com/custodia-labs/paperdex/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/paperdex/internal/adapters/driving/cli"
	"github.com/custodia-labs/paperdex/internal/core/domain"
	"github.com/custodia-labs/paperdex/internal/core/ports/driven"
	"github.com/custodia-labs/paperdex/internal/core/ports/driving"
	"github.com/custodia-labs/paperdex/internal/core/services"
	"github.com/custodia-labs/paperdex/internal/logger"
)

// index bundles the storage ports of one backend.
type index struct {
	docs   driven.DocumentStore
	chunks driven.ChunkStore
	status driven.EmbeddingStatusStore
	close  func() error
}

// bootstrap wires services from the settings in configDir.
func bootstrap(configDir string, withIndex bool) (cli.Services, func() error, error) {
	configStore, err := file.NewConfigStore(configDir)
	if err != nil {
		return cli.Services{}, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.Debug("Config: %s", configStore.Path())

	settingsService := services.NewSettingsService(configStore, ai.NewConfigValidator())
	wired := cli.Services{Settings: settingsService}
	if !withIndex {
		return wired, nil, nil
	}

	settings, err := settingsService.Get()
	if err != nil {
		return cli.Services{}, nil, fmt.Errorf("failed to read settings: %w", err)
	}

	var embedder driven.EmbeddingService
	if svc, err := ai.CreateEmbeddingService(&settings.Embedding); err != nil {
		logger.Warn("Embedding provider unavailable, semantic search disabled: %v", err)
	} else if svc != nil {
		embedder = svc
	}

	dims := settings.Embedding.Dimensions
	if embedder != nil {
		dims = embedder.Dimensions()
	}

	idx, err := openIndex(context.Background(), settings.Storage, dims)
	if err != nil {
		if embedder != nil {
			_ = embedder.Close()
		}
		return cli.Services{}, nil, err
	}

	var (
		reembed     *services.ReembedService
		reembedPort driving.ReembedService
	)
	if embedder != nil {
		reembed = services.NewReembedService(idx.docs, idx.chunks, idx.status, embedder, settings.Reembed)
		reembedPort = reembed
	}

	wired.Search = services.NewSearchService(idx.docs, idx.chunks, embedder)
	wired.Document = services.NewDocumentService(idx.docs, idx.chunks, idx.status, reembedPort)
	wired.Reembed = reembedPort
	if reembed != nil {
		wired.Scheduler = services.NewSweepScheduler(reembed, settings.Reembed.SweepInterval)
		wired.ConfigWatcher = configStore
	}

	cleanup := func() error {
		var errs []error
		if reembed != nil {
			// Let scheduled jobs finish before the process exits.
			reembed.Wait()
			errs = append(errs, reembed.Close())
		}
		if embedder != nil {
			errs = append(errs, embedder.Close())
		}
		errs = append(errs, idx.close())
		return errors.Join(errs...)
	}

	return wired, cleanup, nil
}

// openIndex opens the configured storage backend for vectors of dims dimensions.
func openIndex(ctx context.Context, cfg domain.StorageSettings, dims int) (*index, error) {
	switch cfg.Backend {
	case domain.StorageSQLite, "":
		store, err := sqlite.NewStore(cfg.DataDir, dims)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite index: %w", err)
		}
		logger.Debug("SQLite index: %s", store.Path())
		return &index{
			docs:   store.DocumentStore(),
			chunks: store.ChunkStore(),
			status: store.StatusStore(),
			close:  store.Close,
		}, nil

	case domain.StoragePostgres:
		store, err := postgres.Open(ctx, cfg.DSN, dims)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres index: %w", err)
		}
		return &index{
			docs:   store.DocumentStore(),
			chunks: store.ChunkStore(),
			status: store.StatusStore(),
			close:  store.Close,
		}, nil

	case domain.StorageMemory:
		logger.Warn("Memory storage selected; the index is discarded on exit")
		store := memory.NewStore(dims)
		return &index{docs: store, chunks: store, status: store, close: store.Close}, nil

	default:
		return nil, fmt.Errorf("%w: storage backend %q", domain.ErrUnsupportedType, cfg.Backend)
	}
}
