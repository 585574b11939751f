package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/custodia-labs/paperdex/internal/adapters/driven/storage/vecmath"
	"github.com/custodia-labs/paperdex/internal/core/domain"
	"github.com/custodia-labs/paperdex/internal/core/ports/driven"
	"github.com/custodia-labs/paperdex/internal/postprocessors/chunker"
)

// chunkStore implements driven.ChunkStore.
type chunkStore struct {
	store *Store
}

var _ driven.ChunkStore = (*chunkStore)(nil)

// Dimensions returns the vector size fixed for this index.
func (s *chunkStore) Dimensions() int {
	return s.store.dimensions
}

// UpsertChunks replaces all chunks of a document.
func (s *chunkStore) UpsertChunks(ctx context.Context, documentID int64, inputs []domain.ChunkInput) error {
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
// drops positions >= total, all in one transaction.
func (s *chunkStore) UpsertChunkRange(ctx context.Context, documentID int64, chunks []domain.Chunk, total int) error {
	for i := range chunks {
		if len(chunks[i].Embedding) != s.store.dimensions {
			return fmt.Errorf("%w: chunk %d has %d dimensions, index has %d",
				domain.ErrDimensionMismatch, chunks[i].Position, len(chunks[i].Embedding), s.store.dimensions)
		}
	}

	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM documents WHERE id = ?", documentID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("checking document: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (id, document_id, position, content, embedding, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(document_id, position) DO UPDATE SET
				content = excluded.content,
				embedding = excluded.embedding,
				created_at = excluded.created_at
		`)
		if err != nil {
			return fmt.Errorf("preparing statement: %w", err)
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for i := range chunks {
			c := &chunks[i]
			if _, err := stmt.ExecContext(ctx, chunker.ChunkID(documentID, c.Position), documentID,
				c.Position, c.Content, vecmath.Encode(c.Embedding), now); err != nil {
				return fmt.Errorf("saving chunk %d: %w", c.Position, err)
			}
		}

		if total >= 0 {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM chunks WHERE document_id = ? AND position >= ?", documentID, total); err != nil {
				return fmt.Errorf("truncating chunks: %w", err)
			}
		}
		return nil
	})
}

// GetChunks returns the chunks of a document ordered by position.
func (s *chunkStore) GetChunks(ctx context.Context, documentID int64) ([]domain.Chunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, document_id, position, content, embedding, created_at
		FROM chunks WHERE document_id = ?
		ORDER BY position
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	chunks := make([]domain.Chunk, 0)
	for rows.Next() {
		var (
			c    domain.Chunk
			blob []byte
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Position, &c.Content, &blob, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		c.Embedding = vecmath.Decode(blob)
		chunks = append(chunks, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}

// CountChunks returns the number of chunks stored for a document.
func (s *chunkStore) CountChunks(ctx context.Context, documentID int64) (int, error) {
	var n int
	if err := s.store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chunks WHERE document_id = ?", documentID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

// DeleteChunks removes every chunk of a document.
func (s *chunkStore) DeleteChunks(ctx context.Context, documentID int64) error {
	if _, err := s.store.db.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	return nil
}

// VectorSearch scans the chunks passing filter and returns the nearest by
// cosine distance, ties broken by chunk ID.
func (s *chunkStore) VectorSearch(
	ctx context.Context, query []float32, limit int, filter domain.ChunkFilter,
) ([]driven.VectorHit, error) {
	if len(query) != s.store.dimensions {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			domain.ErrDimensionMismatch, len(query), s.store.dimensions)
	}
	if limit <= 0 {
		return []driven.VectorHit{}, nil
	}

	where, args := filterClause(filter)
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.position, c.content, c.embedding
		FROM chunks c JOIN documents d ON d.id = c.document_id
		WHERE 1 = 1`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	hits := make([]driven.VectorHit, 0)
	for rows.Next() {
		var (
			h    driven.VectorHit
			blob []byte
		)
		if err := rows.Scan(&h.ChunkID, &h.DocumentID, &h.Position, &h.Content, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		h.Distance = vecmath.CosineDistance(query, vecmath.Decode(blob))
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
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

// LexicalSearch matches query terms against the FTS5 index and ranks by bm25.
// Any term may match; the porter tokenizer stems both sides.
func (s *chunkStore) LexicalSearch(
	ctx context.Context, query string, limit int, filter domain.ChunkFilter,
) ([]driven.LexicalHit, error) {
	match := matchExpression(query)
	if match == "" || limit <= 0 {
		return []driven.LexicalHit{}, nil
	}

	where, args := filterClause(filter)
	args = append([]any{match}, args...)
	args = append(args, limit)

	// bm25() is lower for better matches; negate so higher is better.
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.position, c.content, -bm25(chunks_fts) AS score
		FROM chunks_fts
		JOIN chunks c ON c.seq = chunks_fts.rowid
		JOIN documents d ON d.id = c.document_id
		WHERE chunks_fts MATCH ?`+where+`
		ORDER BY score DESC, c.id
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying full-text index: %w", err)
	}
	defer rows.Close()

	hits := make([]driven.LexicalHit, 0)
	for rows.Next() {
		var h driven.LexicalHit
		if err := rows.Scan(&h.ChunkID, &h.DocumentID, &h.Position, &h.Content, &h.Rank); err != nil {
			return nil, fmt.Errorf("scanning hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating hits: %w", err)
	}
	return hits, nil
}

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "in": true, "is": true,
	"it": true, "of": true, "on": true, "or": true, "that": true, "the": true,
	"this": true, "to": true, "was": true, "were": true, "with": true,
}

// matchExpression turns free text into an FTS5 query: each alphanumeric
// term is quoted (so FTS5 operators in user input are inert) and the terms
// are OR-ed. Returns "" when nothing searchable remains.
func matchExpression(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	seen := make(map[string]bool, len(words))
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, `"`+w+`"`)
	}
	return strings.Join(terms, " OR ")
}
