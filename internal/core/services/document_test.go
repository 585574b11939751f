package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/paperdex/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/paperdex/internal/core/domain"
)

func newDocumentFixture(t *testing.T) (*DocumentService, *memory.Store, *ReembedService) {
	t.Helper()
	store := memory.NewStore(testDims)
	reembed := NewReembedService(store, store, store, newFakeEmbedder(nil), testReembedSettings)
	reembed.SetMetrics(testMetrics())
	t.Cleanup(func() { _ = reembed.Close() })
	return NewDocumentService(store, store, store, reembed), store, reembed
}

func TestDocumentService_AddSchedulesEmbedding(t *testing.T) {
	svc, store, reembed := newDocumentFixture(t)
	ctx := context.Background()

	doc := &domain.Document{Title: "Gravitational lensing", Content: words(12), SearchSpaceID: 7}
	require.NoError(t, svc.Add(ctx, doc))
	reembed.Wait()

	assert.NotZero(t, doc.ID)
	n, err := store.CountChunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	details, err := svc.GetDetails(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Gravitational lensing", details.Title)
	assert.Equal(t, int64(7), details.SearchSpaceID)
	assert.Equal(t, 3, details.ChunkCount)
	assert.Equal(t, domain.StatusClean, details.Status)
}

func TestDocumentService_AddValidation(t *testing.T) {
	svc, _, _ := newDocumentFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		doc  *domain.Document
	}{
		{"nil", nil},
		{"no title", &domain.Document{Content: "text"}},
		{"blank content", &domain.Document{Title: "T", Content: "  "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, svc.Add(ctx, tt.doc), domain.ErrInvalidInput)
		})
	}
}

func TestDocumentService_UpdateContent(t *testing.T) {
	svc, store, reembed := newDocumentFixture(t)
	ctx := context.Background()

	doc := &domain.Document{Title: "Paper", Content: words(12)}
	require.NoError(t, svc.Add(ctx, doc))
	reembed.Wait()

	require.NoError(t, svc.UpdateContent(ctx, doc.ID, "short text"))
	reembed.Wait()

	chunks, err := store.GetChunks(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0].Content)

	got, err := svc.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "short text", got.Content)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
}

func TestDocumentService_UpdateContentErrors(t *testing.T) {
	svc, _, _ := newDocumentFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.UpdateContent(ctx, 1, ""), domain.ErrInvalidInput)
	assert.ErrorIs(t, svc.UpdateContent(ctx, 99, "text"), domain.ErrNotFound)
}

func TestDocumentService_UpdateContentUnchanged(t *testing.T) {
	store := memory.NewStore(testDims)
	notifier := &countingReembed{}
	svc := NewDocumentService(store, store, store, notifier)
	ctx := context.Background()

	doc := &domain.Document{Title: "Paper", Content: "same"}
	require.NoError(t, svc.Add(ctx, doc))
	require.NoError(t, svc.UpdateContent(ctx, doc.ID, "same"))

	assert.Equal(t, 1, notifier.calls)
}

func TestDocumentService_AddPropagatesSchedulingError(t *testing.T) {
	store := memory.NewStore(testDims)
	svc := NewDocumentService(store, store, store, &countingReembed{err: domain.ErrCoordinatorClosed})

	err := svc.Add(context.Background(), &domain.Document{Title: "Paper", Content: "text"})

	assert.ErrorIs(t, err, domain.ErrCoordinatorClosed)
}

func TestDocumentService_WithoutCoordinator(t *testing.T) {
	store := memory.NewStore(testDims)
	svc := NewDocumentService(store, store, store, nil)
	ctx := context.Background()

	doc := &domain.Document{Title: "Paper", Content: "text"}
	require.NoError(t, svc.Add(ctx, doc))

	details, err := svc.GetDetails(ctx, doc.ID)
	require.NoError(t, err)
	assert.Zero(t, details.ChunkCount)
	assert.Empty(t, details.Status)
}

func TestDocumentService_List(t *testing.T) {
	store := memory.NewStore(testDims)
	svc := NewDocumentService(store, store, store, nil)
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, &domain.Document{Title: "A", Content: "a", SearchSpaceID: 1}))
	require.NoError(t, svc.Add(ctx, &domain.Document{Title: "B", Content: "b", SearchSpaceID: 1}))
	require.NoError(t, svc.Add(ctx, &domain.Document{Title: "C", Content: "c", SearchSpaceID: 2}))

	all, err := svc.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	space := int64(1)
	some, err := svc.List(ctx, &space)
	require.NoError(t, err)
	assert.Len(t, some, 2)
}

func TestDocumentService_DeleteCascades(t *testing.T) {
	svc, store, reembed := newDocumentFixture(t)
	ctx := context.Background()

	doc := &domain.Document{Title: "Paper", Content: words(8)}
	require.NoError(t, svc.Add(ctx, doc))
	reembed.Wait()

	require.NoError(t, svc.Delete(ctx, doc.ID))

	_, err := svc.Get(ctx, doc.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	n, err := store.CountChunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = store.Get(ctx, doc.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, svc.Delete(ctx, doc.ID), domain.ErrNotFound)
}

// chunkDeleteRecorder records DeleteChunks calls on top of the memory store.
type chunkDeleteRecorder struct {
	*memory.Store
	deleted []int64
	err     error
}

func (r *chunkDeleteRecorder) DeleteChunks(ctx context.Context, documentID int64) error {
	r.deleted = append(r.deleted, documentID)
	if r.err != nil {
		return r.err
	}
	return r.Store.DeleteChunks(ctx, documentID)
}

func TestDocumentService_DeleteRemovesChunks(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(testDims)
	chunks := &chunkDeleteRecorder{Store: store}
	svc := NewDocumentService(store, chunks, store, nil)

	doc := &domain.Document{Title: "Paper", Content: words(8)}
	require.NoError(t, svc.Add(ctx, doc))
	require.NoError(t, store.UpsertChunks(ctx, doc.ID, []domain.ChunkInput{{Content: "w000", Embedding: []float32{1, 0, 0}}}))

	require.NoError(t, svc.Delete(ctx, doc.ID))
	assert.Equal(t, []int64{doc.ID}, chunks.deleted)

	other := &domain.Document{Title: "Other", Content: words(4)}
	require.NoError(t, svc.Add(ctx, other))
	chunks.err = errBoom

	err := svc.Delete(ctx, other.ID)

	require.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "delete chunks")
}

func TestDocumentService_GetDetailsNotFound(t *testing.T) {
	svc, _, _ := newDocumentFixture(t)

	_, err := svc.GetDetails(context.Background(), 404)

	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

// countingReembed records change notifications without running jobs.
type countingReembed struct {
	calls int
	err   error
}

func (c *countingReembed) NotifyContentChanged(context.Context, int64) error {
	c.calls++
	return c.err
}

func (c *countingReembed) Reembed(context.Context, int64, bool) (*domain.EmbeddingState, error) {
	return nil, c.err
}

func (c *countingReembed) Status(context.Context, int64) (*domain.EmbeddingState, error) {
	return nil, domain.ErrNotFound
}

func (c *countingReembed) Sweep(context.Context) ([]int64, error) { return nil, c.err }

func (c *countingReembed) List(context.Context, domain.EmbeddingStatus) ([]domain.EmbeddingState, error) {
	return nil, c.err
}

func (c *countingReembed) Wait() {}
