package driven

import (
	"context"

	"github.com/custodia-labs/paperdex/internal/core/domain"
)

// DocumentSource provides paper text and metadata to the re-embedding
// coordinator. It is owned by the ingestion side of the application.
type DocumentSource interface {
	// GetDocumentText returns the full extracted text of a document.
	GetDocumentText(ctx context.Context, id int64) (string, error)

	// GetDocumentMetadata returns the indexing metadata of a document.
	GetDocumentMetadata(ctx context.Context, id int64) (*domain.DocumentMetadata, error)
}

// DocumentLister enumerates documents.
type DocumentLister interface {
	// ListDocuments returns documents in a search space, or all documents when nil.
	ListDocuments(ctx context.Context, searchSpaceID *int64) ([]domain.Document, error)
}

// DocumentStore persists documents. Deleting a document cascades to its chunks.
type DocumentStore interface {
	DocumentSource
	DocumentLister

	// SaveDocument stores or updates a document. A zero ID is assigned by the store.
	SaveDocument(ctx context.Context, doc *domain.Document) error

	// GetDocument retrieves a document by ID.
	GetDocument(ctx context.Context, id int64) (*domain.Document, error)

	// GetDocuments retrieves several documents; missing IDs are skipped.
	GetDocuments(ctx context.Context, ids []int64) (map[int64]*domain.Document, error)

	// DeleteDocument removes a document and its chunks.
	DeleteDocument(ctx context.Context, id int64) error
}
