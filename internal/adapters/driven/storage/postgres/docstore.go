package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/custodia-labs/paperdex/internal/core/domain"
	"github.com/custodia-labs/paperdex/internal/core/ports/driven"
)

// documentStore implements driven.DocumentStore.
type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

const documentColumns = "id, title, content, literature_type, search_space_id, created_at, updated_at"

// SaveDocument stores or updates a document. A zero ID is assigned by the sequence.
func (s *documentStore) SaveDocument(ctx context.Context, doc *domain.Document) error {
	now := time.Now().UTC()
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = now
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}

	if doc.ID == 0 {
		err := s.store.db.QueryRow(ctx, `
			INSERT INTO documents (title, content, literature_type, search_space_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, doc.Title, doc.Content, doc.LiteratureType, doc.SearchSpaceID, doc.CreatedAt, doc.UpdatedAt).Scan(&doc.ID)
		if err != nil {
			return fmt.Errorf("saving document: %w", err)
		}
		return nil
	}

	// created_at is never overwritten; RETURNING reports the stored value.
	err := s.store.db.QueryRow(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			literature_type = excluded.literature_type,
			search_space_id = excluded.search_space_id,
			updated_at = excluded.updated_at
		RETURNING created_at
	`, doc.ID, doc.Title, doc.Content, doc.LiteratureType, doc.SearchSpaceID, doc.CreatedAt, doc.UpdatedAt).
		Scan(&doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}

	// Keep the sequence ahead of explicitly assigned IDs.
	if _, err := s.store.db.Exec(ctx,
		"SELECT setval('documents_id_seq', GREATEST($1::bigint, (SELECT last_value FROM documents_id_seq)))",
		doc.ID); err != nil {
		return fmt.Errorf("advancing document sequence: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *documentStore) GetDocument(ctx context.Context, id int64) (*domain.Document, error) {
	row := s.store.db.QueryRow(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = $1", id)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return doc, err
}

// GetDocuments retrieves several documents; missing IDs are skipped.
func (s *documentStore) GetDocuments(ctx context.Context, ids []int64) (map[int64]*domain.Document, error) {
	result := make(map[int64]*domain.Document, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.store.db.Query(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		result[doc.ID] = doc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return result, nil
}

// GetDocumentText returns the full text of a document.
func (s *documentStore) GetDocumentText(ctx context.Context, id int64) (string, error) {
	var content string
	err := s.store.db.QueryRow(ctx, "SELECT content FROM documents WHERE id = $1", id).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading document text: %w", err)
	}
	return content, nil
}

// GetDocumentMetadata returns the indexing metadata of a document.
func (s *documentStore) GetDocumentMetadata(ctx context.Context, id int64) (*domain.DocumentMetadata, error) {
	var meta domain.DocumentMetadata
	err := s.store.db.QueryRow(ctx, `
		SELECT id, title, literature_type, search_space_id, updated_at
		FROM documents WHERE id = $1
	`, id).Scan(&meta.ID, &meta.Title, &meta.LiteratureType, &meta.SearchSpaceID, &meta.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading document metadata: %w", err)
	}
	return &meta, nil
}

// DeleteDocument removes a document; chunks and embedding state cascade.
func (s *documentStore) DeleteDocument(ctx context.Context, id int64) error {
	tag, err := s.store.db.Exec(ctx, "DELETE FROM documents WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListDocuments returns documents ordered by ID, optionally for one search space.
func (s *documentStore) ListDocuments(ctx context.Context, searchSpaceID *int64) ([]domain.Document, error) {
	query := "SELECT " + documentColumns + " FROM documents"
	var args []any
	if searchSpaceID != nil {
		query += " WHERE search_space_id = $1"
		args = append(args, *searchSpaceID)
	}
	query += " ORDER BY id"

	rows, err := s.store.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	docs := make([]domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var doc domain.Document
	if err := row.Scan(&doc.ID, &doc.Title, &doc.Content, &doc.LiteratureType,
		&doc.SearchSpaceID, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	return &doc, nil
}
