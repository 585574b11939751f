package driven

import (
	"context"

	"github.com/custodia-labs/paperdex/internal/core/domain"
)

// ChunkStore holds (content, vector, parent document) records and answers
// nearest-neighbour and full-text queries over the same rows.
//
// Writes for one document are atomic with respect to readers: a reader
// never observes a partially written set. Writes lock only the parent
// document, so ingestion of different documents proceeds in parallel.
type ChunkStore interface {
	// UpsertChunks replaces all chunks of a document in one transaction.
	// Returns domain.ErrNotFound if the document does not exist.
	UpsertChunks(ctx context.Context, documentID int64, chunks []domain.ChunkInput) error

	// UpsertChunkRange overwrites chunks by position in one transaction.
	// When total >= 0, chunks at positions >= total are removed in the same
	// transaction; a negative total leaves other positions untouched.
	UpsertChunkRange(ctx context.Context, documentID int64, chunks []domain.Chunk, total int) error

	// VectorSearch returns the chunks nearest to query by cosine distance,
	// closest first.
	VectorSearch(ctx context.Context, query []float32, limit int, filter domain.ChunkFilter) ([]VectorHit, error)

	// LexicalSearch performs tokenised, stemmed full-text search and returns
	// chunks by descending engine relevance.
	LexicalSearch(ctx context.Context, query string, limit int, filter domain.ChunkFilter) ([]LexicalHit, error)

	// GetChunks returns the chunks of a document ordered by position.
	GetChunks(ctx context.Context, documentID int64) ([]domain.Chunk, error)

	// CountChunks returns the number of chunks stored for a document.
	CountChunks(ctx context.Context, documentID int64) (int, error)

	// DeleteChunks removes every chunk of a document.
	DeleteChunks(ctx context.Context, documentID int64) error

	// Dimensions returns the vector size fixed for this index.
	Dimensions() int
}

// VectorHit represents a nearest-neighbour search result.
type VectorHit struct {
	ChunkID    string
	DocumentID int64
	Position   int
	Content    string

	// Distance is the cosine distance (0 identical, 2 opposite).
	Distance float64
}

// LexicalHit represents a full-text search result.
type LexicalHit struct {
	ChunkID    string
	DocumentID int64
	Position   int
	Content    string

	// Rank is the engine's relevance score (higher is better, unnormalised).
	Rank float64
}
