package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/paperdex/internal/core/domain"
)

const testDims = 3

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(testDims)
}

func saveDoc(t *testing.T, s *Store, title string, space int64) int64 {
	t.Helper()
	doc := &domain.Document{Title: title, Content: title + " content", SearchSpaceID: space}
	require.NoError(t, s.SaveDocument(context.Background(), doc))
	return doc.ID
}

func int64Ptr(v int64) *int64 { return &v }

// --- documents ---

func TestStore_SaveDocument_AssignsIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &domain.Document{Title: "First"}
	second := &domain.Document{Title: "Second"}
	require.NoError(t, s.SaveDocument(ctx, first))
	require.NoError(t, s.SaveDocument(ctx, second))

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
	assert.False(t, first.CreatedAt.IsZero())

	explicit := &domain.Document{ID: 10, Title: "Explicit"}
	require.NoError(t, s.SaveDocument(ctx, explicit))
	next := &domain.Document{Title: "Next"}
	require.NoError(t, s.SaveDocument(ctx, next))
	assert.Equal(t, int64(11), next.ID)
}

func TestStore_SaveDocument_UpdateKeepsCreatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	doc := &domain.Document{Title: "Paper", CreatedAt: created}
	require.NoError(t, s.SaveDocument(ctx, doc))

	update := &domain.Document{ID: doc.ID, Title: "Paper v2"}
	require.NoError(t, s.SaveDocument(ctx, update))

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Paper v2", got.Title)
	assert.Equal(t, created, got.CreatedAt)
}

func TestStore_GetDocument_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetDocument(context.Background(), 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.GetDocumentText(context.Background(), 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_GetDocuments_SkipsMissing(t *testing.T) {
	s := newTestStore(t)
	id := saveDoc(t, s, "Present", 1)

	docs, err := s.GetDocuments(context.Background(), []int64{id, 999})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.Equal(t, "Present", docs[id].Title)
}

func TestStore_DocumentSource(t *testing.T) {
	s := newTestStore(t)
	id := saveDoc(t, s, "Gravity", 7)

	text, err := s.GetDocumentText(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Gravity content", text)

	meta, err := s.GetDocumentMetadata(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Gravity", meta.Title)
	assert.Equal(t, int64(7), meta.SearchSpaceID)
}

func TestStore_ListDocuments(t *testing.T) {
	s := newTestStore(t)
	a := saveDoc(t, s, "A", 1)
	b := saveDoc(t, s, "B", 2)
	c := saveDoc(t, s, "C", 1)

	all, err := s.ListDocuments(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{a, b, c}, []int64{all[0].ID, all[1].ID, all[2].ID})

	space1, err := s.ListDocuments(context.Background(), int64Ptr(1))
	require.NoError(t, err)
	require.Len(t, space1, 2)
	assert.Equal(t, a, space1[0].ID)
	assert.Equal(t, c, space1[1].ID)
}

func TestStore_DeleteDocument_Cascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := saveDoc(t, s, "Doomed", 1)

	require.NoError(t, s.UpsertChunks(ctx, id, []domain.ChunkInput{{Content: "x", Embedding: []float32{1, 0, 0}}}))
	_, err := s.MarkPending(ctx, id, "h", false)
	require.NoError(t, err)

	require.NoError(t, s.DeleteDocument(ctx, id))

	n, err := s.CountChunks(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = s.Get(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, s.DeleteDocument(ctx, id), domain.ErrNotFound)
}

// --- chunks ---

func TestStore_UpsertChunks_ReplacesAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := saveDoc(t, s, "Paper", 1)

	require.NoError(t, s.UpsertChunks(ctx, id, []domain.ChunkInput{
		{Content: "one", Embedding: []float32{1, 0, 0}},
		{Content: "two", Embedding: []float32{0, 1, 0}},
		{Content: "three", Embedding: []float32{0, 0, 1}},
	}))
	require.NoError(t, s.UpsertChunks(ctx, id, []domain.ChunkInput{
		{Content: "only", Embedding: []float32{1, 1, 0}},
	}))

	chunks, err := s.GetChunks(ctx, id)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "only", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].Position)
	assert.NotEmpty(t, chunks[0].ID)
}

func TestStore_UpsertChunks_UnknownDocument(t *testing.T) {
	s := newTestStore(t)

	err := s.UpsertChunks(context.Background(), 404, []domain.ChunkInput{{Content: "x", Embedding: []float32{1, 0, 0}}})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_UpsertChunks_DimensionMismatch(t *testing.T) {
	s := newTestStore(t)
	id := saveDoc(t, s, "Paper", 1)

	err := s.UpsertChunks(context.Background(), id, []domain.ChunkInput{{Content: "x", Embedding: []float32{1, 0}}})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestStore_UpsertChunkRange_OverwritesByPosition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := saveDoc(t, s, "Paper", 1)

	require.NoError(t, s.UpsertChunks(ctx, id, []domain.ChunkInput{
		{Content: "a", Embedding: []float32{1, 0, 0}},
		{Content: "b", Embedding: []float32{0, 1, 0}},
		{Content: "c", Embedding: []float32{0, 0, 1}},
	}))
	before, err := s.GetChunks(ctx, id)
	require.NoError(t, err)

	// Negative total leaves other positions alone.
	require.NoError(t, s.UpsertChunkRange(ctx, id, []domain.Chunk{
		{Position: 1, Content: "b2", Embedding: []float32{1, 1, 0}},
	}, -1))

	after, err := s.GetChunks(ctx, id)
	require.NoError(t, err)
	require.Len(t, after, 3)
	assert.Equal(t, "b2", after[1].Content)
	assert.Equal(t, before[1].ID, after[1].ID)

	// A total truncates trailing positions in the same write.
	require.NoError(t, s.UpsertChunkRange(ctx, id, []domain.Chunk{
		{Position: 0, Content: "a2", Embedding: []float32{1, 0, 1}},
	}, 1))

	final, err := s.GetChunks(ctx, id)
	require.NoError(t, err)
	require.Len(t, final, 1)
	assert.Equal(t, "a2", final[0].Content)
}

func TestStore_GetChunks_ReturnsCopy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := saveDoc(t, s, "Paper", 1)
	require.NoError(t, s.UpsertChunks(ctx, id, []domain.ChunkInput{{Content: "a", Embedding: []float32{1, 0, 0}}}))

	chunks, err := s.GetChunks(ctx, id)
	require.NoError(t, err)
	chunks[0].Content = "mutated"

	again, err := s.GetChunks(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "a", again[0].Content)
}

func TestStore_VectorSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	near := saveDoc(t, s, "Near", 1)
	far := saveDoc(t, s, "Far", 2)

	require.NoError(t, s.UpsertChunks(ctx, near, []domain.ChunkInput{{Content: "near", Embedding: []float32{1, 0.1, 0}}}))
	require.NoError(t, s.UpsertChunks(ctx, far, []domain.ChunkInput{{Content: "far", Embedding: []float32{0, 0, 1}}}))

	hits, err := s.VectorSearch(ctx, []float32{1, 0, 0}, 10, domain.ChunkFilter{})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, near, hits[0].DocumentID)
	assert.Less(t, hits[0].Distance, hits[1].Distance)
	assert.Equal(t, "near", hits[0].Content)

	t.Run("limit", func(t *testing.T) {
		hits, err := s.VectorSearch(ctx, []float32{1, 0, 0}, 1, domain.ChunkFilter{})
		require.NoError(t, err)
		assert.Len(t, hits, 1)
	})

	t.Run("search space filter", func(t *testing.T) {
		hits, err := s.VectorSearch(ctx, []float32{1, 0, 0}, 10, domain.ChunkFilter{SearchSpaceID: int64Ptr(2)})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, far, hits[0].DocumentID)
	})

	t.Run("unknown search space is empty", func(t *testing.T) {
		hits, err := s.VectorSearch(ctx, []float32{1, 0, 0}, 10, domain.ChunkFilter{SearchSpaceID: int64Ptr(99)})
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("exclude document", func(t *testing.T) {
		hits, err := s.VectorSearch(ctx, []float32{1, 0, 0}, 10, domain.ChunkFilter{ExcludeDocumentID: &near})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, far, hits[0].DocumentID)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := s.VectorSearch(ctx, []float32{1, 0}, 10, domain.ChunkFilter{})
		assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	})
}

func TestStore_LexicalSearch_Stems(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	grav := saveDoc(t, s, "Gravity", 1)
	cook := saveDoc(t, s, "Cooking", 1)

	require.NoError(t, s.UpsertChunks(ctx, grav, []domain.ChunkInput{
		{Content: "Gravitational waves were detected by interferometers", Embedding: []float32{1, 0, 0}},
	}))
	require.NoError(t, s.UpsertChunks(ctx, cook, []domain.ChunkInput{
		{Content: "Slow cooking of vegetables in a pot", Embedding: []float32{0, 1, 0}},
	}))

	hits, err := s.LexicalSearch(ctx, "detecting wave", 10, domain.ChunkFilter{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, grav, hits[0].DocumentID)
	assert.Greater(t, hits[0].Rank, 0.0)

	none, err := s.LexicalSearch(ctx, "the of and", 10, domain.ChunkFilter{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_LexicalSearch_OrdersByRelevance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	strong := saveDoc(t, s, "Strong", 1)
	weak := saveDoc(t, s, "Weak", 1)

	require.NoError(t, s.UpsertChunks(ctx, strong, []domain.ChunkInput{
		{Content: "neutron star neutron star merger", Embedding: []float32{1, 0, 0}},
	}))
	require.NoError(t, s.UpsertChunks(ctx, weak, []domain.ChunkInput{
		{Content: "a star chart of the northern sky with many constellations", Embedding: []float32{0, 1, 0}},
	}))

	hits, err := s.LexicalSearch(ctx, "neutron star", 10, domain.ChunkFilter{})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, strong, hits[0].DocumentID)
	assert.Greater(t, hits[0].Rank, hits[1].Rank)
}

func TestStore_LexicalIndexFollowsWrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := saveDoc(t, s, "Paper", 1)

	require.NoError(t, s.UpsertChunks(ctx, id, []domain.ChunkInput{
		{Content: "quasar jets", Embedding: []float32{1, 0, 0}},
		{Content: "accretion disks", Embedding: []float32{0, 1, 0}},
	}))
	require.NoError(t, s.UpsertChunkRange(ctx, id, []domain.Chunk{
		{Position: 0, Content: "pulsar timing", Embedding: []float32{1, 0, 0}},
	}, -1))

	old, err := s.LexicalSearch(ctx, "quasar", 10, domain.ChunkFilter{})
	require.NoError(t, err)
	assert.Empty(t, old)

	hits, err := s.LexicalSearch(ctx, "pulsar disks", 10, domain.ChunkFilter{})
	require.NoError(t, err)
	require.Len(t, hits, 2)

	require.NoError(t, s.UpsertChunkRange(ctx, id, nil, 1))
	hits, err = s.LexicalSearch(ctx, "disks", 10, domain.ChunkFilter{})
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Len(t, s.terms[id], len(s.chunks[id]))

	require.NoError(t, s.DeleteChunks(ctx, id))
	assert.NotContains(t, s.terms, id)
}

func TestStore_ConcurrentUpserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids := make([]int64, 8)
	for i := range ids {
		ids[i] = saveDoc(t, s, "Doc", 1)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			for round := 0; round < 20; round++ {
				_ = s.UpsertChunks(ctx, id, []domain.ChunkInput{
					{Content: "a", Embedding: []float32{1, 0, 0}},
					{Content: "b", Embedding: []float32{0, 1, 0}},
				})
				chunks, _ := s.GetChunks(ctx, id)
				assert.Len(t, chunks, 2)
			}
		}(id)
	}
	wg.Wait()
}

// --- status ---

func TestStore_StatusLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := saveDoc(t, s, "Paper", 1)

	pending, err := s.MarkPending(ctx, id, "h1", false)
	require.NoError(t, err)
	assert.True(t, pending)

	claimed, err := s.Claim(ctx, id)
	require.NoError(t, err)
	assert.True(t, claimed)

	again, err := s.Claim(ctx, id)
	require.NoError(t, err)
	assert.False(t, again, "second claimant must lose")

	require.NoError(t, s.SaveProgress(ctx, id, "h1", 2, 3))
	st, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEmbedding, st.Status)
	assert.Equal(t, 2, st.Committed)
	assert.Equal(t, 3, st.Total)

	rearmed, err := s.Complete(ctx, id)
	require.NoError(t, err)
	assert.False(t, rearmed)

	st, err = s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClean, st.Status)
	assert.Equal(t, "h1", st.ContentHash)
}

func TestStore_MarkPending_Transitions(t *testing.T) {
	ctx := context.Background()

	t.Run("clean same hash is a no-op", func(t *testing.T) {
		s := newTestStore(t)
		s.status[1] = domain.EmbeddingState{DocumentID: 1, Status: domain.StatusClean, ContentHash: "h"}

		pending, err := s.MarkPending(ctx, 1, "h", false)
		require.NoError(t, err)
		assert.False(t, pending)
	})

	t.Run("clean same hash forced", func(t *testing.T) {
		s := newTestStore(t)
		s.status[1] = domain.EmbeddingState{DocumentID: 1, Status: domain.StatusClean, ContentHash: "h"}

		pending, err := s.MarkPending(ctx, 1, "h", true)
		require.NoError(t, err)
		assert.True(t, pending)
	})

	t.Run("clean new hash", func(t *testing.T) {
		s := newTestStore(t)
		s.status[1] = domain.EmbeddingState{DocumentID: 1, Status: domain.StatusClean, ContentHash: "h"}

		pending, err := s.MarkPending(ctx, 1, "h2", false)
		require.NoError(t, err)
		assert.True(t, pending)
		assert.Equal(t, "h2", s.status[1].ContentHash)
	})

	t.Run("embedding same hash is absorbed", func(t *testing.T) {
		s := newTestStore(t)
		s.status[1] = domain.EmbeddingState{DocumentID: 1, Status: domain.StatusEmbedding, ContentHash: "h"}

		pending, err := s.MarkPending(ctx, 1, "h", false)
		require.NoError(t, err)
		assert.False(t, pending)
		assert.False(t, s.status[1].Rearm)
	})

	t.Run("embedding new hash re-arms", func(t *testing.T) {
		s := newTestStore(t)
		s.status[1] = domain.EmbeddingState{DocumentID: 1, Status: domain.StatusEmbedding, ContentHash: "h"}

		pending, err := s.MarkPending(ctx, 1, "h2", false)
		require.NoError(t, err)
		assert.False(t, pending)
		assert.True(t, s.status[1].Rearm)

		rearmed, err := s.Complete(ctx, 1)
		require.NoError(t, err)
		assert.True(t, rearmed)
		assert.Equal(t, domain.StatusPending, s.status[1].Status)
		assert.Equal(t, "h2", s.status[1].ContentHash)
	})

	t.Run("failed same hash keeps progress", func(t *testing.T) {
		s := newTestStore(t)
		s.status[1] = domain.EmbeddingState{
			DocumentID: 1, Status: domain.StatusFailed, ContentHash: "h", Committed: 50, Total: 120, LastError: "boom",
		}

		pending, err := s.MarkPending(ctx, 1, "h", false)
		require.NoError(t, err)
		assert.True(t, pending)
		st := s.status[1]
		assert.Equal(t, 50, st.Committed)
		assert.Empty(t, st.LastError)
		assert.True(t, st.CanResume("h"))
	})

	t.Run("failed new hash resets progress", func(t *testing.T) {
		s := newTestStore(t)
		s.status[1] = domain.EmbeddingState{
			DocumentID: 1, Status: domain.StatusFailed, ContentHash: "h", Committed: 50, Total: 120,
		}

		_, err := s.MarkPending(ctx, 1, "h2", false)
		require.NoError(t, err)
		assert.Zero(t, s.status[1].Committed)
	})
}

func TestStore_Fail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.status[1] = domain.EmbeddingState{DocumentID: 1, Status: domain.StatusEmbedding, ContentHash: "h", Committed: 1}
	require.NoError(t, s.Fail(ctx, 1, "provider down"))
	assert.Equal(t, domain.StatusFailed, s.status[1].Status)
	assert.Equal(t, "provider down", s.status[1].LastError)
	assert.Equal(t, 1, s.status[1].Committed)

	s.status[2] = domain.EmbeddingState{
		DocumentID: 2, Status: domain.StatusEmbedding, ContentHash: "h", Rearm: true, PendingHash: "h2",
	}
	require.NoError(t, s.Fail(ctx, 2, "provider down"))
	assert.Equal(t, domain.StatusPending, s.status[2].Status)
	assert.Equal(t, "h2", s.status[2].ContentHash)

	assert.ErrorIs(t, s.Fail(ctx, 3, "x"), domain.ErrNotFound)
}

func TestStore_Release(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.status[1] = domain.EmbeddingState{DocumentID: 1, Status: domain.StatusEmbedding, ContentHash: "h", Committed: 2, Total: 4}
	require.NoError(t, s.Release(ctx, 1))
	assert.Equal(t, domain.StatusPending, s.status[1].Status)
	assert.Equal(t, 2, s.status[1].Committed)

	// Releasing a record that is not embedding changes nothing.
	require.NoError(t, s.Release(ctx, 1))
	assert.Equal(t, domain.StatusPending, s.status[1].Status)
}

func TestStore_Claim_Concurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.MarkPending(ctx, 1, "h", false)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Claim(ctx, 1)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestStore_ListStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.status[3] = domain.EmbeddingState{DocumentID: 3, Status: domain.StatusFailed}
	s.status[1] = domain.EmbeddingState{DocumentID: 1, Status: domain.StatusClean}
	s.status[2] = domain.EmbeddingState{DocumentID: 2, Status: domain.StatusFailed}

	failed, err := s.List(ctx, domain.StatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 2)
	assert.Equal(t, int64(2), failed[0].DocumentID)
	assert.Equal(t, int64(3), failed[1].DocumentID)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
