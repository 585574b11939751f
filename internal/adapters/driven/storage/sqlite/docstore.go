package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/paperdex/internal/core/domain"
	"github.com/custodia-labs/paperdex/internal/core/ports/driven"
)

// documentStore implements driven.DocumentStore.
type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

const documentColumns = `id, title, content, literature_type, search_space_id, created_at, updated_at`

// SaveDocument stores or updates a document. A zero ID is assigned by SQLite.
func (s *documentStore) SaveDocument(ctx context.Context, doc *domain.Document) error {
	now := time.Now().UTC()
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = now
	}
	if doc.CreatedAt.IsZero() && doc.ID != 0 {
		var createdAt time.Time
		err := s.store.db.QueryRowContext(ctx,
			"SELECT created_at FROM documents WHERE id = ?", doc.ID).Scan(&createdAt)
		switch {
		case err == nil:
			doc.CreatedAt = createdAt
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("reading document: %w", err)
		}
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}

	if doc.ID == 0 {
		res, err := s.store.db.ExecContext(ctx, `
			INSERT INTO documents (title, content, literature_type, search_space_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, doc.Title, doc.Content, doc.LiteratureType, doc.SearchSpaceID, doc.CreatedAt, doc.UpdatedAt)
		if err != nil {
			return fmt.Errorf("saving document: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading document id: %w", err)
		}
		doc.ID = id
		return nil
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			literature_type = excluded.literature_type,
			search_space_id = excluded.search_space_id,
			updated_at = excluded.updated_at
	`, doc.ID, doc.Title, doc.Content, doc.LiteratureType, doc.SearchSpaceID, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *documentStore) GetDocument(ctx context.Context, id int64) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE id = ?", id)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
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

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE id IN ("+placeholders(len(ids))+")", args...)
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
	err := s.store.db.QueryRowContext(ctx, "SELECT content FROM documents WHERE id = ?", id).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
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
	err := s.store.db.QueryRowContext(ctx, `
		SELECT id, title, literature_type, search_space_id, updated_at
		FROM documents WHERE id = ?
	`, id).Scan(&meta.ID, &meta.Title, &meta.LiteratureType, &meta.SearchSpaceID, &meta.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading document metadata: %w", err)
	}
	return &meta, nil
}

// DeleteDocument removes a document; chunks and embedding state cascade.
func (s *documentStore) DeleteDocument(ctx context.Context, id int64) error {
	res, err := s.store.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListDocuments returns documents ordered by ID, optionally for one search space.
func (s *documentStore) ListDocuments(ctx context.Context, searchSpaceID *int64) ([]domain.Document, error) {
	query := "SELECT " + documentColumns + " FROM documents"
	var args []any
	if searchSpaceID != nil {
		query += " WHERE search_space_id = ?"
		args = append(args, *searchSpaceID)
	}
	query += " ORDER BY id"

	rows, err := s.store.db.QueryContext(ctx, query, args...)
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

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanDocument scans a row selected with documentColumns.
func scanDocument(row scanner) (*domain.Document, error) {
	var doc domain.Document
	if err := row.Scan(&doc.ID, &doc.Title, &doc.Content, &doc.LiteratureType,
		&doc.SearchSpaceID, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	return &doc, nil
}
