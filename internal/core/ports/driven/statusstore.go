package driven

import (
	"context"

	"github.com/custodia-labs/paperdex/internal/core/domain"
)

// EmbeddingStatusStore persists the per-document re-embedding state machine.
// Every transition is a single atomic conditional update; no caller holds
// a lock across calls.
type EmbeddingStatusStore interface {
	// Get returns the state of a document, or domain.ErrNotFound.
	Get(ctx context.Context, documentID int64) (*domain.EmbeddingState, error)

	// MarkPending records a content-change event for contentHash and reports
	// whether the document now awaits a claimant:
	//   - no record, failed, or clean with a different hash: -> pending
	//   - pending: hash updated, stays pending
	//   - embedding with a different hash: re-arm flag set (returns false)
	//   - clean or embedding with the same hash: no-op (returns false)
	// force re-arms clean documents even when the hash is unchanged.
	MarkPending(ctx context.Context, documentID int64, contentHash string, force bool) (bool, error)

	// Claim atomically moves pending -> embedding. Exactly one concurrent
	// caller observes true.
	Claim(ctx context.Context, documentID int64) (bool, error)

	// SaveProgress records that committed chunks of total exist for contentHash.
	SaveProgress(ctx context.Context, documentID int64, contentHash string, committed, total int) error

	// Complete moves embedding -> clean, or -> pending when re-armed.
	// Returns true when the document was re-armed.
	Complete(ctx context.Context, documentID int64) (bool, error)

	// Fail moves embedding -> failed with a reason.
	Fail(ctx context.Context, documentID int64, reason string) error

	// Release moves embedding -> pending without discarding progress.
	Release(ctx context.Context, documentID int64) error

	// List returns the states with the given status, or all when empty.
	List(ctx context.Context, status domain.EmbeddingStatus) ([]domain.EmbeddingState, error)

	// Delete removes the state record of a document.
	Delete(ctx context.Context, documentID int64) error
}
