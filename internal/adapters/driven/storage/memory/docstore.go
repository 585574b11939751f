package memory

import (
	"context"
	"sort"
	"time"

	"github.com/custodia-labs/paperdex/internal/core/domain"
)

// SaveDocument stores or updates a document. A zero ID is assigned.
func (s *Store) SaveDocument(_ context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if doc.ID == 0 {
		doc.ID = s.nextID
	}
	if doc.ID >= s.nextID {
		s.nextID = doc.ID + 1
	}
	if existing, ok := s.documents[doc.ID]; ok && doc.CreatedAt.IsZero() {
		doc.CreatedAt = existing.CreatedAt
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = now
	}

	s.documents[doc.ID] = *doc
	return nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(_ context.Context, id int64) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &doc, nil
}

// GetDocuments retrieves several documents; missing IDs are skipped.
func (s *Store) GetDocuments(_ context.Context, ids []int64) (map[int64]*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[int64]*domain.Document, len(ids))
	for _, id := range ids {
		if doc, ok := s.documents[id]; ok {
			result[id] = &doc
		}
	}
	return result, nil
}

// GetDocumentText returns the full text of a document.
func (s *Store) GetDocumentText(ctx context.Context, id int64) (string, error) {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return "", err
	}
	return doc.Content, nil
}

// GetDocumentMetadata returns the indexing metadata of a document.
func (s *Store) GetDocumentMetadata(ctx context.Context, id int64) (*domain.DocumentMetadata, error) {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	meta := doc.Metadata()
	return &meta, nil
}

// DeleteDocument removes a document, its chunks and its embedding state.
func (s *Store) DeleteDocument(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.documents, id)
	delete(s.chunks, id)
	delete(s.terms, id)
	delete(s.status, id)
	return nil
}

// ListDocuments returns documents ordered by ID, optionally for one search space.
func (s *Store) ListDocuments(_ context.Context, searchSpaceID *int64) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.Document, 0, len(s.documents))
	for id := range s.documents {
		doc := s.documents[id]
		if searchSpaceID != nil && doc.SearchSpaceID != *searchSpaceID {
			continue
		}
		result = append(result, doc)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}
