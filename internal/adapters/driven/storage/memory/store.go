// Package memory provides in-process implementations of the storage ports.
// A single Store backs documents, chunks and re-embedding state; it is used
// by tests and by the "memory" storage backend.
package memory

import (
	"sync"

	"github.com/custodia-labs/paperdex/internal/core/domain"
	"github.com/custodia-labs/paperdex/internal/core/ports/driven"
)

// Ensure Store implements the interfaces.
var (
	_ driven.DocumentStore        = (*Store)(nil)
	_ driven.ChunkStore           = (*Store)(nil)
	_ driven.EmbeddingStatusStore = (*Store)(nil)
)

// Store is an in-memory document, chunk and status store.
// Chunk sets are copy-on-write per document: a writer builds the new slice
// and swaps it in, so readers always see a complete set.
type Store struct {
	mu         sync.RWMutex
	dimensions int
	nextID     int64
	documents  map[int64]domain.Document
	chunks     map[int64][]domain.Chunk
	terms      map[int64][]termCounts // terms[doc][i] indexes chunks[doc][i]
	status     map[int64]domain.EmbeddingState
}

// NewStore creates an empty store for vectors of the given dimensionality.
func NewStore(dimensions int) *Store {
	return &Store{
		dimensions: dimensions,
		nextID:     1,
		documents:  make(map[int64]domain.Document),
		chunks:     make(map[int64][]domain.Chunk),
		terms:      make(map[int64][]termCounts),
		status:     make(map[int64]domain.EmbeddingState),
	}
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
