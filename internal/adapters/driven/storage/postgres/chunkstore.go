package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

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

// UpsertChunkRange overwrites chunks by position in one transaction that
// holds a row lock on the parent document only.
func (s *chunkStore) UpsertChunkRange(ctx context.Context, documentID int64, chunks []domain.Chunk, total int) error {
	for i := range chunks {
		if len(chunks[i].Embedding) != s.store.dimensions {
			return fmt.Errorf("%w: chunk %d has %d dimensions, index has %d",
				domain.ErrDimensionMismatch, chunks[i].Position, len(chunks[i].Embedding), s.store.dimensions)
		}
	}

	return s.store.withTx(ctx, func(tx pgx.Tx) error {
		var id int64
		err := tx.QueryRow(ctx, "SELECT id FROM documents WHERE id = $1 FOR UPDATE", documentID).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("locking document: %w", err)
		}

		now := time.Now().UTC()
		for i := range chunks {
			c := &chunks[i]
			if _, err := tx.Exec(ctx, `
				INSERT INTO chunks (id, document_id, position, content, embedding, created_at)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (document_id, position) DO UPDATE SET
					content = excluded.content,
					embedding = excluded.embedding,
					created_at = excluded.created_at
			`, chunker.ChunkID(documentID, c.Position), documentID, c.Position, c.Content,
				pgvector.NewVector(c.Embedding), now); err != nil {
				return fmt.Errorf("saving chunk %d: %w", c.Position, err)
			}
		}

		if total >= 0 {
			if _, err := tx.Exec(ctx,
				"DELETE FROM chunks WHERE document_id = $1 AND position >= $2", documentID, total); err != nil {
				return fmt.Errorf("truncating chunks: %w", err)
			}
		}
		return nil
	})
}

// GetChunks returns the chunks of a document ordered by position.
func (s *chunkStore) GetChunks(ctx context.Context, documentID int64) ([]domain.Chunk, error) {
	rows, err := s.store.db.Query(ctx, `
		SELECT id, document_id, position, content, embedding, created_at
		FROM chunks WHERE document_id = $1
		ORDER BY position
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	chunks := make([]domain.Chunk, 0)
	for rows.Next() {
		var (
			c   domain.Chunk
			vec pgvector.Vector
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Position, &c.Content, &vec, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		c.Embedding = vec.Slice()
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
	if err := s.store.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM chunks WHERE document_id = $1", documentID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

// DeleteChunks removes every chunk of a document.
func (s *chunkStore) DeleteChunks(ctx context.Context, documentID int64) error {
	if _, err := s.store.db.Exec(ctx, "DELETE FROM chunks WHERE document_id = $1", documentID); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	return nil
}

// VectorSearch orders chunks by cosine distance through the HNSW index.
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

	p := &params{}
	vec := p.add(pgvector.NewVector(query))
	distance := fmt.Sprintf("c.embedding::vector(%d) <=> %s", s.store.dimensions, vec)
	where := filterClause(filter, p)
	sql := `
		SELECT c.id, c.document_id, c.position, c.content, ` + distance + ` AS distance
		FROM chunks c JOIN documents d ON d.id = c.document_id
		WHERE TRUE` + where + `
		ORDER BY distance, c.id
		LIMIT ` + p.add(limit)

	rows, err := s.store.db.Query(ctx, sql, p.values...)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	hits := make([]driven.VectorHit, 0, limit)
	for rows.Next() {
		var h driven.VectorHit
		if err := rows.Scan(&h.ChunkID, &h.DocumentID, &h.Position, &h.Content, &h.Distance); err != nil {
			return nil, fmt.Errorf("scanning hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating hits: %w", err)
	}
	return hits, nil
}

// LexicalSearch matches any query term against the english tsvector and
// ranks with ts_rank_cd.
func (s *chunkStore) LexicalSearch(
	ctx context.Context, query string, limit int, filter domain.ChunkFilter,
) ([]driven.LexicalHit, error) {
	tsquery := tsQuery(query)
	if tsquery == "" || limit <= 0 {
		return []driven.LexicalHit{}, nil
	}

	p := &params{}
	q := p.add(tsquery)
	where := filterClause(filter, p)
	sql := `
		SELECT c.id, c.document_id, c.position, c.content, ts_rank_cd(c.content_tsv, q) AS score
		FROM chunks c JOIN documents d ON d.id = c.document_id, to_tsquery('english', ` + q + `) q
		WHERE c.content_tsv @@ q` + where + `
		ORDER BY score DESC, c.id
		LIMIT ` + p.add(limit)

	rows, err := s.store.db.Query(ctx, sql, p.values...)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()

	hits := make([]driven.LexicalHit, 0, limit)
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

// tsQuery reduces free text to alphanumeric terms joined with the OR
// operator, so to_tsquery never sees user-supplied syntax. Stemming and
// stop words are left to the english configuration.
func tsQuery(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	seen := make(map[string]bool, len(words))
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, w)
	}
	return strings.Join(terms, " | ")
}
