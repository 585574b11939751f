package driving

import (
	"context"

	"github.com/custodia-labs/paperdex/internal/core/domain"
)

// SearchService provides ranked retrieval to external actors.
type SearchService interface {
	// Search blends vector and full-text retrieval into a ranked list of
	// unique documents. An empty result is not an error.
	Search(ctx context.Context, query string, opts domain.SearchOptions) (*domain.RankedResult, error)

	// SimilarTo ranks documents by the similarity of their chunks to the
	// chunks of documentID. The anchor itself is never returned.
	SimilarTo(ctx context.Context, documentID int64, limit int) (*domain.RankedResult, error)

	// Suggest returns paper titles containing partial, title-prefix matches
	// first. Partials shorter than domain.MinSuggestRunes get no suggestions.
	Suggest(ctx context.Context, partial string, searchSpaceID *int64, limit int) ([]string, error)
}
