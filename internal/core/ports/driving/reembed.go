package driving

import (
	"context"

	"github.com/custodia-labs/paperdex/internal/core/domain"
)

// ReembedService keeps chunk vectors consistent with document content.
type ReembedService interface {
	// NotifyContentChanged records a content change and schedules
	// re-embedding in the background. It does not wait for the job.
	NotifyContentChanged(ctx context.Context, documentID int64) error

	// Reembed records a content change and runs the job on the calling
	// goroutine. force re-embeds even when the content is unchanged.
	Reembed(ctx context.Context, documentID int64, force bool) (*domain.EmbeddingState, error)

	// Status returns the re-embedding state of a document.
	Status(ctx context.Context, documentID int64) (*domain.EmbeddingState, error)

	// List returns the states with the given status, or all when empty.
	List(ctx context.Context, status domain.EmbeddingStatus) ([]domain.EmbeddingState, error)

	// Sweep flags documents that have no chunks for re-processing and
	// returns their IDs.
	Sweep(ctx context.Context) ([]int64, error)

	// Wait blocks until all background jobs have finished.
	Wait()
}
