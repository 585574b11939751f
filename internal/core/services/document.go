package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/paperdex/internal/core/domain"
	"github.com/custodia-labs/paperdex/internal/core/ports/driven"
	"github.com/custodia-labs/paperdex/internal/core/ports/driving"
	"github.com/custodia-labs/paperdex/internal/logger"
)

// Ensure DocumentService implements the interface.
var _ driving.DocumentService = (*DocumentService)(nil)

// DocumentService manages papers and keeps their embeddings scheduled.
type DocumentService struct {
	docStore   driven.DocumentStore
	chunkStore driven.ChunkStore
	status     driven.EmbeddingStatusStore
	reembed    driving.ReembedService
}

// NewDocumentService creates a new document service.
// reembed may be nil, in which case documents are stored without chunks
// and a later sweep picks them up.
func NewDocumentService(
	docStore driven.DocumentStore,
	chunkStore driven.ChunkStore,
	status driven.EmbeddingStatusStore,
	reembed driving.ReembedService,
) *DocumentService {
	return &DocumentService{
		docStore:   docStore,
		chunkStore: chunkStore,
		status:     status,
		reembed:    reembed,
	}
}

// Add stores a new document and schedules its embedding.
func (s *DocumentService) Add(ctx context.Context, doc *domain.Document) error {
	if doc == nil {
		return fmt.Errorf("%w: nil document", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(doc.Title) == "" {
		return fmt.Errorf("%w: document title is required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(doc.Content) == "" {
		return fmt.Errorf("%w: document content is required", domain.ErrInvalidInput)
	}

	if err := s.docStore.SaveDocument(ctx, doc); err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	logger.Info("Added document %d: %s", doc.ID, doc.Title)

	return s.notify(ctx, doc.ID)
}

// UpdateContent replaces the text of a document and schedules re-embedding.
func (s *DocumentService) UpdateContent(ctx context.Context, documentID int64, content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: document content is required", domain.ErrInvalidInput)
	}

	doc, err := s.docStore.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.Content == content {
		logger.Debug("Document %d: content unchanged", documentID)
		return nil
	}

	doc.Content = content
	doc.UpdatedAt = time.Now()
	if err := s.docStore.SaveDocument(ctx, doc); err != nil {
		return fmt.Errorf("save document: %w", err)
	}

	return s.notify(ctx, documentID)
}

// Get retrieves a document by ID.
func (s *DocumentService) Get(ctx context.Context, documentID int64) (*domain.Document, error) {
	return s.docStore.GetDocument(ctx, documentID)
}

// GetDetails returns indexing metadata for display.
func (s *DocumentService) GetDetails(ctx context.Context, documentID int64) (*driving.DocumentDetails, error) {
	doc, err := s.docStore.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	details := &driving.DocumentDetails{
		ID:             doc.ID,
		Title:          doc.Title,
		LiteratureType: doc.LiteratureType,
		SearchSpaceID:  doc.SearchSpaceID,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}

	if s.chunkStore != nil {
		n, err := s.chunkStore.CountChunks(ctx, documentID)
		if err != nil {
			return nil, fmt.Errorf("count chunks: %w", err)
		}
		details.ChunkCount = n
	}

	if s.status != nil {
		state, err := s.status.Get(ctx, documentID)
		switch {
		case err == nil:
			details.Status = state.Status
			details.LastError = state.LastError
		case !errors.Is(err, domain.ErrNotFound):
			return nil, fmt.Errorf("get embedding status: %w", err)
		}
	}

	return details, nil
}

// List returns documents in a search space, or all when nil.
func (s *DocumentService) List(ctx context.Context, searchSpaceID *int64) ([]domain.Document, error) {
	return s.docStore.ListDocuments(ctx, searchSpaceID)
}

// Delete removes a document, then its chunks and its embedding state record.
func (s *DocumentService) Delete(ctx context.Context, documentID int64) error {
	if err := s.docStore.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	if s.chunkStore != nil {
		if err := s.chunkStore.DeleteChunks(ctx, documentID); err != nil {
			return fmt.Errorf("delete chunks: %w", err)
		}
	}
	if s.status != nil {
		if err := s.status.Delete(ctx, documentID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("delete embedding status: %w", err)
		}
	}
	logger.Info("Deleted document %d", documentID)
	return nil
}

func (s *DocumentService) notify(ctx context.Context, documentID int64) error {
	if s.reembed == nil {
		return nil
	}
	if err := s.reembed.NotifyContentChanged(ctx, documentID); err != nil {
		return fmt.Errorf("schedule embedding: %w", err)
	}
	return nil
}
