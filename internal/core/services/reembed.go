package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/custodia-labs/paperdex/internal/core/domain"
	"github.com/custodia-labs/paperdex/internal/core/ports/driven"
	"github.com/custodia-labs/paperdex/internal/core/ports/driving"
	"github.com/custodia-labs/paperdex/internal/logger"
	"github.com/custodia-labs/paperdex/internal/metrics"
	"github.com/custodia-labs/paperdex/internal/postprocessors/chunker"
)

// Ensure ReembedService implements the interface.
var _ driving.ReembedService = (*ReembedService)(nil)

// MaxBatchSize is the upper bound on chunks sent to the provider in one call.
const MaxBatchSize = 50

// ReembedService keeps chunk vectors consistent with document content.
// At most one job per document is in flight: a job only runs after winning
// the pending -> embedding compare-and-swap on the status store.
type ReembedService struct {
	source   driven.DocumentSource
	chunks   driven.ChunkStore
	status   driven.EmbeddingStatusStore
	embedder driven.EmbeddingService
	chunker  *chunker.Processor

	batchSize int
	metrics   *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewReembedService creates a re-embedding coordinator.
// Batch and chunk sizes come from settings; a batch size outside
// (0, MaxBatchSize] falls back to MaxBatchSize.
func NewReembedService(
	source driven.DocumentSource,
	chunks driven.ChunkStore,
	status driven.EmbeddingStatusStore,
	embedder driven.EmbeddingService,
	settings domain.ReembedSettings,
) *ReembedService {
	batch := settings.BatchSize
	if batch <= 0 || batch > MaxBatchSize {
		batch = MaxBatchSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ReembedService{
		source:    source,
		chunks:    chunks,
		status:    status,
		embedder:  embedder,
		chunker:   chunker.New(chunker.WithChunkSize(settings.ChunkSize), chunker.WithOverlap(settings.ChunkOverlap)),
		batchSize: batch,
		metrics:   metrics.Get(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetMetrics replaces the metrics collectors.
func (s *ReembedService) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// NotifyContentChanged records a content change and starts a background job
// when the document is now pending. Duplicate notifications for content that
// is already being embedded are absorbed by the status store.
func (s *ReembedService) NotifyContentChanged(ctx context.Context, documentID int64) error {
	if s.isClosed() {
		return domain.ErrCoordinatorClosed
	}

	text, err := s.source.GetDocumentText(ctx, documentID)
	if err != nil {
		return fmt.Errorf("read document %d: %w", documentID, err)
	}

	pending, err := s.status.MarkPending(ctx, documentID, s.contentHash(text), false)
	if err != nil {
		return fmt.Errorf("mark document %d pending: %w", documentID, err)
	}
	if !pending {
		logger.Debug("Document %d: change absorbed by current state", documentID)
		return nil
	}

	s.spawn(documentID)
	return nil
}

// Reembed records a content change and drives the job to completion on the
// calling goroutine. When another claimant holds the document the current
// state is returned without waiting.
func (s *ReembedService) Reembed(ctx context.Context, documentID int64, force bool) (*domain.EmbeddingState, error) {
	if s.isClosed() {
		return nil, domain.ErrCoordinatorClosed
	}
	logger.Section("Re-embed")

	text, err := s.source.GetDocumentText(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("read document %d: %w", documentID, err)
	}

	if _, err := s.status.MarkPending(ctx, documentID, s.contentHash(text), force); err != nil {
		return nil, fmt.Errorf("mark document %d pending: %w", documentID, err)
	}

	if err := s.drive(ctx, documentID); err != nil {
		return nil, err
	}

	return s.Status(ctx, documentID)
}

// Status returns the re-embedding state of a document.
func (s *ReembedService) Status(ctx context.Context, documentID int64) (*domain.EmbeddingState, error) {
	return s.status.Get(ctx, documentID)
}

// List returns the re-embedding states with the given status, or all when
// status is empty.
func (s *ReembedService) List(ctx context.Context, status domain.EmbeddingStatus) ([]domain.EmbeddingState, error) {
	if status != "" && !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, status)
	}
	states, err := s.status.List(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list embedding states: %w", err)
	}
	return states, nil
}

// Sweep finds documents without chunks and schedules them. Documents with
// a job in flight and failed documents are left alone; a failed document
// only returns on its next content change.
func (s *ReembedService) Sweep(ctx context.Context) ([]int64, error) {
	if s.isClosed() {
		return nil, domain.ErrCoordinatorClosed
	}

	lister, ok := s.source.(driven.DocumentLister)
	if !ok {
		return nil, fmt.Errorf("%w: document source cannot list documents", domain.ErrUnsupportedType)
	}

	docs, err := lister.ListDocuments(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	var flagged []int64
	for i := range docs {
		id := docs[i].ID

		n, err := s.chunks.CountChunks(ctx, id)
		if err != nil {
			return flagged, fmt.Errorf("count chunks of %d: %w", id, err)
		}
		if n > 0 {
			continue
		}

		state, err := s.status.Get(ctx, id)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return flagged, fmt.Errorf("get status of %d: %w", id, err)
		}

		if state != nil {
			switch state.Status {
			case domain.StatusEmbedding, domain.StatusFailed:
				continue
			case domain.StatusPending:
				flagged = append(flagged, id)
				s.spawn(id)
				continue
			}
		}

		if _, err := s.status.MarkPending(ctx, id, s.contentHash(docs[i].Content), true); err != nil {
			return flagged, fmt.Errorf("mark document %d pending: %w", id, err)
		}
		logger.Warn("Document %d has no chunks, scheduled for re-processing", id)
		flagged = append(flagged, id)
		s.spawn(id)
	}

	return flagged, nil
}

// Wait blocks until all background jobs have finished.
func (s *ReembedService) Wait() {
	s.wg.Wait()
}

// Close stops accepting work, cancels background jobs between batches and
// waits for them. Cancelled jobs hand their claim back as pending.
func (s *ReembedService) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	return nil
}

func (s *ReembedService) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// spawn runs drive for documentID in the background.
func (s *ReembedService) spawn(documentID int64) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		if err := s.drive(s.ctx, documentID); err != nil {
			logger.Warn("Re-embedding document %d: %v", documentID, err)
		}
	}()
}

// drive claims the document and runs jobs until it is no longer re-armed.
// Losing the claim is not an error: another job owns the document.
func (s *ReembedService) drive(ctx context.Context, documentID int64) error {
	for {
		claimed, err := s.status.Claim(ctx, documentID)
		if err != nil {
			return fmt.Errorf("claim document %d: %w", documentID, err)
		}
		if !claimed {
			logger.Debug("Document %d: not claimable, skipping", documentID)
			return nil
		}

		rearmed, err := s.runJob(ctx, documentID)
		if err != nil {
			if ctx.Err() != nil || !s.isPending(ctx, documentID) {
				return err
			}
			logger.Debug("Document %d: failed job superseded by newer content, re-running", documentID)
			continue
		}
		if !rearmed {
			return nil
		}
		logger.Debug("Document %d: content changed during job, re-running", documentID)
	}
}

func (s *ReembedService) isPending(ctx context.Context, documentID int64) bool {
	st, err := s.status.Get(ctx, documentID)
	return err == nil && st.Status == domain.StatusPending
}

// runJob re-embeds one claimed document. Each batch runs on a context that
// ignores cancellation so a started batch either commits or fails; between
// batches a cancelled ctx releases the claim.
func (s *ReembedService) runJob(ctx context.Context, documentID int64) (bool, error) {
	bctx := context.WithoutCancel(ctx)

	text, err := s.source.GetDocumentText(bctx, documentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Debug("Document %d deleted before re-embedding", documentID)
			s.metrics.ReembedJobs.WithLabelValues(metrics.OutcomeSkipped).Inc()
			return false, s.status.Delete(bctx, documentID)
		}
		return false, s.fail(bctx, documentID, fmt.Errorf("read document: %w", err))
	}

	hash := s.contentHash(text)
	chunks := s.chunker.Split(documentID, text)
	if len(chunks) == 0 {
		return false, s.fail(bctx, documentID, fmt.Errorf("%w: document has no text", domain.ErrInvalidInput))
	}
	total := len(chunks)

	start := 0
	state, err := s.status.Get(bctx, documentID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return false, s.fail(bctx, documentID, fmt.Errorf("read progress: %w", err))
	}
	if state.CanResume(hash) && state.Total == total {
		start = min(state.Committed, total)
		logger.Info("Document %d: resuming at chunk %d of %d", documentID, start, total)
	}

	if start == total {
		// Every batch committed earlier; make sure stale positions are gone.
		if err := s.chunks.UpsertChunkRange(bctx, documentID, nil, total); err != nil {
			return false, s.fail(bctx, documentID, fmt.Errorf("truncate chunks: %w", err))
		}
	}

	for start < total {
		if ctx.Err() != nil {
			logger.Debug("Document %d: cancelled at chunk %d, releasing", documentID, start)
			s.metrics.ReembedJobs.WithLabelValues(metrics.OutcomeSkipped).Inc()
			if err := s.status.Release(bctx, documentID); err != nil {
				return false, fmt.Errorf("release document %d: %w", documentID, err)
			}
			return false, ctx.Err()
		}

		end := min(start+s.batchSize, total)
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i := range batch {
			texts[i] = batch[i].Content
		}

		vectors, err := s.embedder.EmbedBatch(bctx, texts)
		if err != nil {
			return false, s.fail(bctx, documentID, fmt.Errorf("embed chunks %d-%d: %w", start, end, err))
		}
		if len(vectors) != len(batch) {
			return false, s.fail(bctx, documentID,
				fmt.Errorf("%w: provider returned %d vectors for %d chunks", domain.ErrEmbeddingFailed, len(vectors), len(batch)))
		}
		for i := range batch {
			batch[i].Embedding = vectors[i]
		}

		// The final batch truncates positions past the new end.
		truncate := -1
		if end == total {
			truncate = total
		}
		if err := s.chunks.UpsertChunkRange(bctx, documentID, batch, truncate); err != nil {
			return false, s.fail(bctx, documentID, fmt.Errorf("write chunks %d-%d: %w", start, end, err))
		}
		if err := s.status.SaveProgress(bctx, documentID, hash, end, total); err != nil {
			return false, s.fail(bctx, documentID, fmt.Errorf("save progress: %w", err))
		}

		s.metrics.ReembedBatches.Inc()
		logger.Debug("Document %d: committed chunks %d-%d of %d", documentID, start, end, total)
		start = end
	}

	rearmed, err := s.status.Complete(bctx, documentID)
	if err != nil {
		return false, fmt.Errorf("complete document %d: %w", documentID, err)
	}
	s.metrics.ReembedJobs.WithLabelValues(metrics.OutcomeOK).Inc()
	logger.Info("Document %d: %d chunks embedded", documentID, total)

	return rearmed, nil
}

// fail moves the document to failed. Chunks from the last good job stay
// searchable. Returns cause.
func (s *ReembedService) fail(ctx context.Context, documentID int64, cause error) error {
	s.metrics.ReembedJobs.WithLabelValues(metrics.OutcomeFailed).Inc()
	logger.Warn("Document %d: re-embedding failed: %v", documentID, cause)
	if err := s.status.Fail(ctx, documentID, cause.Error()); err != nil {
		return fmt.Errorf("%w (record failure: %v)", cause, err)
	}
	return fmt.Errorf("re-embed document %d: %w", documentID, cause)
}

// contentHash identifies a version of document text as chunked by this
// coordinator. A different chunk layout is a different version.
func (s *ReembedService) contentHash(text string) string {
	h := sha256.New()
	h.Write([]byte(s.chunker.Layout()))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}
