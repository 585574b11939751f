package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/custodia-labs/paperdex/internal/adapters/driven/storage/vecmath"
	"github.com/custodia-labs/paperdex/internal/core/domain"
	"github.com/custodia-labs/paperdex/internal/core/ports/driven"
	"github.com/custodia-labs/paperdex/internal/postprocessors/chunker"
)

// Dimensions returns the vector size fixed for this store.
func (s *Store) Dimensions() int {
	return s.dimensions
}

// UpsertChunks replaces all chunks of a document.
func (s *Store) UpsertChunks(ctx context.Context, documentID int64, inputs []domain.ChunkInput) error {
	chunks := make([]domain.Chunk, len(inputs))
	for i := range inputs {
		chunks[i] = domain.Chunk{
			Position:  i,
			Content:   inputs[i].Content,
			Embedding: inputs[i].Embedding,
		}
	}
	return s.UpsertChunkRange(ctx, documentID, chunks, len(chunks))
}

// UpsertChunkRange overwrites chunks by position and, when total >= 0,
// drops positions >= total. The new set is swapped in under one lock.
func (s *Store) UpsertChunkRange(_ context.Context, documentID int64, chunks []domain.Chunk, total int) error {
	for i := range chunks {
		if len(chunks[i].Embedding) != s.dimensions {
			return fmt.Errorf("%w: chunk %d has %d dimensions, index has %d",
				domain.ErrDimensionMismatch, chunks[i].Position, len(chunks[i].Embedding), s.dimensions)
		}
	}

	counted := make([]termCounts, len(chunks))
	for i := range chunks {
		counted[i] = countTerms(chunks[i].Content)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[documentID]; !ok {
		return domain.ErrNotFound
	}

	type indexed struct {
		chunk domain.Chunk
		terms termCounts
	}
	current, currentTerms := s.chunks[documentID], s.terms[documentID]
	byPosition := make(map[int]indexed, len(current)+len(chunks))
	for i, c := range current {
		byPosition[c.Position] = indexed{chunk: c, terms: currentTerms[i]}
	}

	now := time.Now()
	for i := range chunks {
		c := chunks[i]
		c.DocumentID = documentID
		c.ID = chunker.ChunkID(documentID, c.Position)
		c.Embedding = append([]float32(nil), c.Embedding...)
		c.CreatedAt = now
		byPosition[c.Position] = indexed{chunk: c, terms: counted[i]}
	}

	entries := make([]indexed, 0, len(byPosition))
	for pos, e := range byPosition {
		if total >= 0 && pos >= total {
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].chunk.Position < entries[j].chunk.Position })

	if len(entries) == 0 {
		delete(s.chunks, documentID)
		delete(s.terms, documentID)
		return nil
	}
	next := make([]domain.Chunk, len(entries))
	nextTerms := make([]termCounts, len(entries))
	for i, e := range entries {
		next[i], nextTerms[i] = e.chunk, e.terms
	}
	s.chunks[documentID] = next
	s.terms[documentID] = nextTerms
	return nil
}

// GetChunks returns the chunks of a document ordered by position.
func (s *Store) GetChunks(_ context.Context, documentID int64) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunks := s.chunks[documentID]
	out := make([]domain.Chunk, len(chunks))
	copy(out, chunks)
	return out, nil
}

// CountChunks returns the number of chunks of a document.
func (s *Store) CountChunks(_ context.Context, documentID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks[documentID]), nil
}

// DeleteChunks removes every chunk of a document.
func (s *Store) DeleteChunks(_ context.Context, documentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, documentID)
	delete(s.terms, documentID)
	return nil
}

// VectorSearch scans every chunk passing filter and returns the nearest by
// cosine distance, ties broken by chunk ID.
func (s *Store) VectorSearch(
	_ context.Context, query []float32, limit int, filter domain.ChunkFilter,
) ([]driven.VectorHit, error) {
	if len(query) != s.dimensions {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			domain.ErrDimensionMismatch, len(query), s.dimensions)
	}
	if limit <= 0 {
		return []driven.VectorHit{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := make([]driven.VectorHit, 0)
	for docID, chunks := range s.chunks {
		if !s.matches(docID, filter) {
			continue
		}
		for i := range chunks {
			hits = append(hits, driven.VectorHit{
				ChunkID:    chunks[i].ID,
				DocumentID: docID,
				Position:   chunks[i].Position,
				Content:    chunks[i].Content,
				Distance:   vecmath.CosineDistance(query, chunks[i].Embedding),
			})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// LexicalSearch ranks chunks passing filter with BM25 over the term counts
// indexed at write time.
func (s *Store) LexicalSearch(
	_ context.Context, query string, limit int, filter domain.ChunkFilter,
) ([]driven.LexicalHit, error) {
	terms := analyze(query)
	if len(terms) == 0 || limit <= 0 {
		return []driven.LexicalHit{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		corpus []domain.Chunk
		stats  []termCounts
	)
	for docID, chunks := range s.chunks {
		if s.matches(docID, filter) {
			corpus = append(corpus, chunks...)
			stats = append(stats, s.terms[docID]...)
		}
	}

	scores := bm25(stats, terms)
	hits := make([]driven.LexicalHit, 0)
	for i := range corpus {
		if scores[i] <= 0 {
			continue
		}
		hits = append(hits, driven.LexicalHit{
			ChunkID:    corpus[i].ID,
			DocumentID: corpus[i].DocumentID,
			Position:   corpus[i].Position,
			Content:    corpus[i].Content,
			Rank:       scores[i],
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Rank != hits[j].Rank {
			return hits[i].Rank > hits[j].Rank
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// matches reports whether chunks of docID pass filter. Callers hold s.mu.
func (s *Store) matches(docID int64, filter domain.ChunkFilter) bool {
	if filter.ExcludeDocumentID != nil && docID == *filter.ExcludeDocumentID {
		return false
	}
	if filter.SearchSpaceID != nil {
		doc, ok := s.documents[docID]
		if !ok || doc.SearchSpaceID != *filter.SearchSpaceID {
			return false
		}
	}
	return true
}
