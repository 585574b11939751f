package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/paperdex/internal/core/domain"
)

// DocumentService manages the papers that retrieval runs over.
type DocumentService interface {
	// Add stores a document and schedules its embedding.
	Add(ctx context.Context, doc *domain.Document) error

	// UpdateContent replaces a document's text and schedules re-embedding.
	UpdateContent(ctx context.Context, documentID int64, content string) error

	// Get retrieves a document by ID.
	Get(ctx context.Context, documentID int64) (*domain.Document, error)

	// GetDetails returns indexing metadata for display.
	GetDetails(ctx context.Context, documentID int64) (*DocumentDetails, error)

	// List returns documents in a search space, or all when nil.
	List(ctx context.Context, searchSpaceID *int64) ([]domain.Document, error)

	// Delete removes a document, its chunks and its embedding state.
	Delete(ctx context.Context, documentID int64) error
}

// DocumentDetails is the indexing view of a document.
type DocumentDetails struct {
	ID             int64
	Title          string
	LiteratureType string
	SearchSpaceID  int64
	ChunkCount     int

	// Status is empty when the document has never been scheduled.
	Status    domain.EmbeddingStatus
	LastError string

	CreatedAt time.Time
	UpdatedAt time.Time
}
