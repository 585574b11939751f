// Package postgres provides a PostgreSQL implementation of the storage ports.
//
// Vectors live in a pgvector column searched through an HNSW cosine index;
// lexical search runs against a generated tsvector column (english stemmer)
// ranked with ts_rank_cd. Status transitions lock the state row with
// SELECT ... FOR UPDATE; Claim is a single conditional UPDATE.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/custodia-labs/paperdex/internal/core/domain"
	"github.com/custodia-labs/paperdex/internal/core/ports/driven"
	"github.com/custodia-labs/paperdex/internal/logger"
)

// DB is the subset of pgxpool.Pool used by the store.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store is a PostgreSQL-backed document, chunk and status store.
type Store struct {
	db         DB
	pool       *pgxpool.Pool
	dimensions int
}

// Open migrates the database at dsn, connects a pool and prepares the
// vector index for the given dimensionality.
func Open(ctx context.Context, dsn string, dimensions int) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("%w: postgres dsn is required", domain.ErrInvalidInput)
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive, got %d", domain.ErrInvalidInput, dimensions)
	}

	if err := ApplyMigrations(ctx, dsn); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: new pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := New(pool, dimensions)
	s.pool = pool
	if err := s.Prepare(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Debug("Postgres store opened (%d dimensions)", dimensions)
	return s, nil
}

// New wraps an existing connection (pool, or a mock in tests). The schema
// must already be migrated.
func New(db DB, dimensions int) *Store {
	return &Store{db: db, dimensions: dimensions}
}

// Prepare verifies the index dimensionality and creates the HNSW index.
func (s *Store) Prepare(ctx context.Context) error {
	if err := s.checkDimensions(ctx); err != nil {
		return err
	}
	// pgvector can only index a sized column; the cast makes the expression sized.
	index := fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS idx_chunks_embedding_hnsw ON chunks "+
			"USING hnsw ((embedding::vector(%d)) vector_cosine_ops)", s.dimensions)
	if _, err := s.db.Exec(ctx, index); err != nil {
		return fmt.Errorf("postgres: create vector index: %w", err)
	}
	return nil
}

// Close releases the pool when the store owns one.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// DocumentStore returns a DocumentStore interface backed by this store.
func (s *Store) DocumentStore() driven.DocumentStore {
	return &documentStore{store: s}
}

// ChunkStore returns a ChunkStore interface backed by this store.
func (s *Store) ChunkStore() driven.ChunkStore {
	return &chunkStore{store: s}
}

// StatusStore returns an EmbeddingStatusStore interface backed by this store.
func (s *Store) StatusStore() driven.EmbeddingStatusStore {
	return &statusStore{store: s}
}

func (s *Store) checkDimensions(ctx context.Context) error {
	if _, err := s.db.Exec(ctx,
		"INSERT INTO index_meta (key, value) VALUES ('dimensions', $1) ON CONFLICT (key) DO NOTHING",
		strconv.Itoa(s.dimensions)); err != nil {
		return fmt.Errorf("postgres: record dimensions: %w", err)
	}

	var stored string
	if err := s.db.QueryRow(ctx, "SELECT value FROM index_meta WHERE key = 'dimensions'").Scan(&stored); err != nil {
		return fmt.Errorf("postgres: read dimensions: %w", err)
	}
	if stored != strconv.Itoa(s.dimensions) {
		return fmt.Errorf("%w: index holds %s-dimensional vectors, embedder produces %d",
			domain.ErrDimensionMismatch, stored, s.dimensions)
	}
	return nil
}

// withTx runs fn in a transaction, committing on success.
func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = fmt.Errorf("postgres: rollback failed: %w; original error: %w", rbErr, err)
			}
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("postgres: commit: %w", commitErr)
		}
	}()
	return fn(tx)
}

// params numbers positional arguments as they are added.
type params struct {
	values []any
}

func (p *params) add(v any) string {
	p.values = append(p.values, v)
	return "$" + strconv.Itoa(len(p.values))
}

// filterClause renders a chunk filter as SQL predicates over the chunk (c)
// and document (d) aliases.
func filterClause(filter domain.ChunkFilter, p *params) string {
	var b strings.Builder
	if filter.SearchSpaceID != nil {
		b.WriteString(" AND d.search_space_id = " + p.add(*filter.SearchSpaceID))
	}
	if filter.ExcludeDocumentID != nil {
		b.WriteString(" AND c.document_id <> " + p.add(*filter.ExcludeDocumentID))
	}
	return b.String()
}
