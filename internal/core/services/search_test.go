package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/paperdex/internal/adapters/driven/embedding/hashing"
	"github.com/custodia-labs/paperdex/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/paperdex/internal/core/domain"
)

func newTestSearchService(store *recordingStore, emb *fakeEmbedder) *SearchService {
	var svc *SearchService
	if emb == nil {
		svc = NewSearchService(store, store, nil)
	} else {
		svc = NewSearchService(store, store, emb)
	}
	svc.SetMetrics(testMetrics())
	return svc
}

func hybrid(limit int) domain.SearchOptions {
	return domain.SearchOptions{Limit: limit, Mode: domain.SearchModeHybrid}
}

func TestSearchService_GravityScenario(t *testing.T) {
	emb := newFakeEmbedder(map[string][]float32{
		"gravity":                             {1, 0, 0},
		"gravity bends light":                 {0.9, 0.1, 0},
		"general relativity predicts lensing": {0.5, 0.5, 0.5},
		"apples fall due to gravity":          {0.6, 0.8, 0},
	})
	store := newRecordingStore()
	a := addDocument(t, store, emb, &domain.Document{Title: "A"},
		"gravity bends light", "general relativity predicts lensing")
	b := addDocument(t, store, emb, &domain.Document{Title: "B"},
		"apples fall due to gravity")

	svc := newTestSearchService(store, emb)
	result, err := svc.Search(context.Background(), "gravity", hybrid(10))

	require.NoError(t, err)
	assert.Equal(t, []int64{a, b}, result.DocumentIDs())
	assert.Equal(t, "gravity bends light", result.Items[0].Snippet)
	assert.Equal(t, []string{sourceVector, sourceLexical}, result.Items[0].Sources)
	assert.Greater(t, result.Items[0].Score, result.Items[1].Score)
	assert.Equal(t, domain.SearchModeHybrid, result.Mode)
	assert.Equal(t, "gravity", result.Query)
}

func TestSearchService_ResultsBoundedAndOrdered(t *testing.T) {
	emb := newFakeEmbedder(nil)
	store := newRecordingStore()
	for i := 0; i < 30; i++ {
		addDocument(t, store, emb, &domain.Document{Title: fmt.Sprintf("Paper %d", i)},
			fmt.Sprintf("study %d of stellar spectra", i),
			fmt.Sprintf("appendix %d with tables", i))
	}
	svc := newTestSearchService(store, emb)

	for _, mode := range []domain.SearchMode{domain.SearchModeHybrid, domain.SearchModeSemantic, domain.SearchModeKeyword} {
		for _, limit := range []int{1, 7, 30, 100} {
			t.Run(fmt.Sprintf("%s/%d", mode, limit), func(t *testing.T) {
				result, err := svc.Search(context.Background(), "stellar spectra",
					domain.SearchOptions{Limit: limit, Mode: mode})
				require.NoError(t, err)

				assert.LessOrEqual(t, result.Len(), limit)
				for i := 1; i < len(result.Items); i++ {
					assert.GreaterOrEqual(t, result.Items[i-1].Score, result.Items[i].Score)
				}
				for _, item := range result.Items {
					assert.GreaterOrEqual(t, item.Score, 0.0)
					assert.LessOrEqual(t, item.Score, 1.0)
				}
			})
		}
	}
}

func TestSearchService_DeterministicTieOrdering(t *testing.T) {
	emb := newFakeEmbedder(map[string][]float32{
		"twin":          {0, 1, 0},
		"identical one": {0, 1, 0},
		"identical two": {0, 1, 0},
	})
	store := newRecordingStore()
	// Inserted out of ID order.
	addDocument(t, store, emb, &domain.Document{ID: 5, Title: "Five"}, "identical one")
	addDocument(t, store, emb, &domain.Document{ID: 3, Title: "Three"}, "identical two")
	svc := newTestSearchService(store, emb)

	opts := domain.SearchOptions{Limit: 10, Mode: domain.SearchModeSemantic}
	first, err := svc.Search(context.Background(), "twin", opts)
	require.NoError(t, err)
	second, err := svc.Search(context.Background(), "twin", opts)
	require.NoError(t, err)

	require.Len(t, first.Items, 2)
	assert.Equal(t, first.Items[0].Score, first.Items[1].Score)
	assert.Equal(t, []int64{3, 5}, first.DocumentIDs())
	assert.Equal(t, first.DocumentIDs(), second.DocumentIDs())
}

func TestSearchService_EmptySearchSpace(t *testing.T) {
	emb := newFakeEmbedder(nil)
	store := newRecordingStore()
	addDocument(t, store, emb, &domain.Document{Title: "Elsewhere", SearchSpaceID: 1}, "gravity waves")
	svc := newTestSearchService(store, emb)

	result, err := svc.Search(context.Background(), "gravity", domain.SearchOptions{
		Limit:         10,
		Mode:          domain.SearchModeHybrid,
		SearchSpaceID: int64Ptr(42),
	})

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 0, result.Len())
	assert.NotNil(t, result.Items)
}

func TestSearchService_SearchSpaceFilter(t *testing.T) {
	emb := newFakeEmbedder(nil)
	store := newRecordingStore()
	addDocument(t, store, emb, &domain.Document{Title: "One", SearchSpaceID: 1}, "dark matter halo")
	two := addDocument(t, store, emb, &domain.Document{Title: "Two", SearchSpaceID: 2}, "dark matter halo")
	svc := newTestSearchService(store, emb)

	result, err := svc.Search(context.Background(), "dark matter", domain.SearchOptions{
		Limit: 10, Mode: domain.SearchModeHybrid, SearchSpaceID: int64Ptr(2),
	})

	require.NoError(t, err)
	assert.Equal(t, []int64{two}, result.DocumentIDs())
}

func TestSearchService_PunctuationQuery(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(64)
	emb := hashing.NewEmbeddingService(64)
	doc := &domain.Document{Title: "Lensing", Content: "gravity bends light"}
	require.NoError(t, store.SaveDocument(ctx, doc))
	vec, err := emb.Embed(ctx, "gravity bends light")
	require.NoError(t, err)
	require.NoError(t, store.UpsertChunks(ctx, doc.ID, []domain.ChunkInput{{Content: "gravity bends light", Embedding: vec}}))

	svc := NewSearchService(store, store, emb)
	svc.SetMetrics(testMetrics())

	for _, mode := range []domain.SearchMode{domain.SearchModeHybrid, domain.SearchModeSemantic, domain.SearchModeKeyword} {
		result, err := svc.Search(ctx, "???", domain.SearchOptions{Limit: 5, Mode: mode})
		require.NoError(t, err, mode)
		assert.LessOrEqual(t, len(result.Items), 1, mode)
	}
}

func TestSearchService_InvalidInput(t *testing.T) {
	svc := newTestSearchService(newRecordingStore(), newFakeEmbedder(nil))
	ctx := context.Background()

	tests := []struct {
		name  string
		query string
		opts  domain.SearchOptions
	}{
		{"zero limit", "gravity", domain.SearchOptions{Limit: 0}},
		{"negative limit", "gravity", domain.SearchOptions{Limit: -3}},
		{"empty query", "", hybrid(10)},
		{"blank query", "   \t", hybrid(10)},
		{"unknown mode", "gravity", domain.SearchOptions{Limit: 10, Mode: "fuzzy"}},
		{"similar is not a query mode", "gravity", domain.SearchOptions{Limit: 10, Mode: domain.SearchModeSimilar}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Search(ctx, tt.query, tt.opts)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestSearchService_InvalidLimitRejectedBeforeQuery(t *testing.T) {
	store := newRecordingStore()
	emb := newFakeEmbedder(nil)
	svc := newTestSearchService(store, emb)

	_, err := svc.Search(context.Background(), "gravity", domain.SearchOptions{Limit: 0})

	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, store.vectorLimits)
	assert.Empty(t, store.lexicalLimits)
	assert.Zero(t, emb.embedCalls.Load())
}

func TestSearchService_CandidateLimits(t *testing.T) {
	store := newRecordingStore()
	svc := newTestSearchService(store, newFakeEmbedder(nil))

	_, err := svc.Search(context.Background(), "gravity", hybrid(7))
	require.NoError(t, err)
	_, err = svc.Search(context.Background(), "gravity", hybrid(1000))
	require.NoError(t, err)

	assert.Equal(t, []int{21, 300}, store.vectorLimits)
	assert.Equal(t, []int{21, 300}, store.lexicalLimits)
}

func TestSearchService_ModeSelection(t *testing.T) {
	ctx := context.Background()

	t.Run("semantic skips lexical", func(t *testing.T) {
		store := newRecordingStore()
		svc := newTestSearchService(store, newFakeEmbedder(nil))
		_, err := svc.Search(ctx, "gravity", domain.SearchOptions{Limit: 5, Mode: domain.SearchModeSemantic})
		require.NoError(t, err)
		assert.Len(t, store.vectorLimits, 1)
		assert.Empty(t, store.lexicalLimits)
	})

	t.Run("keyword skips embedding", func(t *testing.T) {
		store := newRecordingStore()
		emb := newFakeEmbedder(nil)
		svc := newTestSearchService(store, emb)
		_, err := svc.Search(ctx, "gravity", domain.SearchOptions{Limit: 5, Mode: domain.SearchModeKeyword})
		require.NoError(t, err)
		assert.Empty(t, store.vectorLimits)
		assert.Len(t, store.lexicalLimits, 1)
		assert.Zero(t, emb.embedCalls.Load())
	})

	t.Run("empty mode means hybrid", func(t *testing.T) {
		store := newRecordingStore()
		svc := newTestSearchService(store, newFakeEmbedder(nil))
		result, err := svc.Search(ctx, "gravity", domain.SearchOptions{Limit: 5})
		require.NoError(t, err)
		assert.Equal(t, domain.SearchModeHybrid, result.Mode)
	})

	t.Run("hybrid without embeddings degrades to keyword", func(t *testing.T) {
		store := newRecordingStore()
		emb := newFakeEmbedder(nil)
		addDocument(t, store, emb, &domain.Document{Title: "Light"}, "gravity bends light")
		svc := newTestSearchService(store, nil)

		result, err := svc.Search(ctx, "gravity", hybrid(5))
		require.NoError(t, err)
		assert.Equal(t, domain.SearchModeKeyword, result.Mode)
		assert.Equal(t, 1, result.Len())
		assert.Empty(t, store.vectorLimits)
	})

	t.Run("semantic without embeddings fails", func(t *testing.T) {
		svc := newTestSearchService(newRecordingStore(), nil)
		_, err := svc.Search(ctx, "gravity", domain.SearchOptions{Limit: 5, Mode: domain.SearchModeSemantic})
		assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	})
}

func TestSearchService_MinScore(t *testing.T) {
	emb := newFakeEmbedder(map[string][]float32{
		"query":   {1, 0, 0},
		"close":   {1, 0.05, 0},
		"distant": {0, 1, 0},
	})
	store := newRecordingStore()
	near := addDocument(t, store, emb, &domain.Document{Title: "Near"}, "close")
	addDocument(t, store, emb, &domain.Document{Title: "Far"}, "distant")
	svc := newTestSearchService(store, emb)

	result, err := svc.Search(context.Background(), "query", domain.SearchOptions{
		Limit: 10, Mode: domain.SearchModeSemantic, MinScore: 0.5,
	})

	require.NoError(t, err)
	assert.Equal(t, []int64{near}, result.DocumentIDs())
}

func TestSearchService_HydrationSkipsVanishedDocuments(t *testing.T) {
	emb := newFakeEmbedder(nil)
	store := newRecordingStore()
	gone := addDocument(t, store, emb, &domain.Document{Title: "Gone"}, "pulsar timing arrays")
	kept := addDocument(t, store, emb, &domain.Document{Title: "Kept", Content: "full text"}, "pulsar glitches")
	store.hidden[gone] = true
	svc := newTestSearchService(store, emb)

	result, err := svc.Search(context.Background(), "pulsar", hybrid(10))

	require.NoError(t, err)
	assert.Equal(t, []int64{kept}, result.DocumentIDs())
	assert.Equal(t, "Kept", result.Items[0].Document.Title)
	assert.Empty(t, result.Items[0].Document.Content)
	assert.NotEmpty(t, result.Items[0].ChunkID)
}

func TestSearchService_StoreErrorsPropagate(t *testing.T) {
	ctx := context.Background()

	t.Run("vector", func(t *testing.T) {
		store := newRecordingStore()
		store.vectorErr = errBoom
		svc := newTestSearchService(store, newFakeEmbedder(nil))

		_, err := svc.Search(ctx, "gravity", hybrid(5))
		assert.ErrorIs(t, err, errBoom)
	})

	t.Run("lexical", func(t *testing.T) {
		store := newRecordingStore()
		store.lexicalErr = errBoom
		svc := newTestSearchService(store, newFakeEmbedder(nil))

		_, err := svc.Search(ctx, "gravity", hybrid(5))
		assert.ErrorIs(t, err, errBoom)
	})
}

func TestSearchService_Metrics(t *testing.T) {
	store := newRecordingStore()
	svc := newTestSearchService(store, newFakeEmbedder(nil))
	m := testMetrics()
	svc.SetMetrics(m)

	_, err := svc.Search(context.Background(), "nothing here", hybrid(5))
	require.NoError(t, err)
	_, err = svc.Search(context.Background(), "", hybrid(5))
	require.Error(t, err)

	assert.InDelta(t, 1, testutil.ToFloat64(m.SearchRequests.WithLabelValues("hybrid", "empty")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SearchRequests.WithLabelValues("hybrid", "invalid")), 0)
}

func TestSearchService_SimilarTo(t *testing.T) {
	emb := newFakeEmbedder(map[string][]float32{
		"anchor intro":   {1, 0, 0},
		"anchor methods": {0, 1, 0},
		"close cousin":   {0.95, 0.05, 0},
		"methods clone":  {0, 0.9, 0.1},
		"unrelated":      {0, 0, 1},
	})
	store := newRecordingStore()
	anchor := addDocument(t, store, emb, &domain.Document{Title: "Anchor"}, "anchor intro", "anchor methods")
	cousin := addDocument(t, store, emb, &domain.Document{Title: "Cousin"}, "close cousin")
	clone := addDocument(t, store, emb, &domain.Document{Title: "Clone"}, "methods clone")
	other := addDocument(t, store, emb, &domain.Document{Title: "Other"}, "unrelated")
	svc := newTestSearchService(store, emb)

	result, err := svc.SimilarTo(context.Background(), anchor, 10)

	require.NoError(t, err)
	assert.Equal(t, domain.SearchModeSimilar, result.Mode)
	assert.NotContains(t, result.DocumentIDs(), anchor)
	require.Len(t, result.Items, 3)
	assert.Equal(t, []int64{cousin, clone, other}, result.DocumentIDs())
	// One vector query per anchor chunk.
	assert.Equal(t, []int{30, 30}, store.vectorLimits)
	assert.Zero(t, emb.embedCalls.Load())
}

func TestSearchService_SimilarTo_NeverIncludesAnchor(t *testing.T) {
	emb := newFakeEmbedder(nil)
	store := newRecordingStore()
	var ids []int64
	for i := 0; i < 6; i++ {
		ids = append(ids, addDocument(t, store, emb, &domain.Document{Title: "Doc"},
			"shared text", fmt.Sprintf("unique %d", i)))
	}
	svc := newTestSearchService(store, emb)

	for _, id := range ids {
		result, err := svc.SimilarTo(context.Background(), id, 3)
		require.NoError(t, err)
		assert.NotContains(t, result.DocumentIDs(), id)
		assert.LessOrEqual(t, result.Len(), 3)
	}
}

func TestSearchService_SimilarTo_EdgeCases(t *testing.T) {
	ctx := context.Background()
	emb := newFakeEmbedder(nil)
	store := newRecordingStore()
	bare := addDocument(t, store, emb, &domain.Document{Title: "No chunks"})
	svc := newTestSearchService(store, emb)

	t.Run("missing anchor", func(t *testing.T) {
		_, err := svc.SimilarTo(ctx, 404, 10)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("anchor without chunks", func(t *testing.T) {
		result, err := svc.SimilarTo(ctx, bare, 10)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Len())
	})

	t.Run("invalid limit", func(t *testing.T) {
		_, err := svc.SimilarTo(ctx, bare, 0)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestSearchService_Suggest(t *testing.T) {
	store := newRecordingStore()
	ctx := context.Background()
	for _, doc := range []*domain.Document{
		{Title: "Weak gravitational lensing", SearchSpaceID: 1},
		{Title: "Gravity waves from binary mergers", SearchSpaceID: 1},
		{Title: "Quantum gravity", SearchSpaceID: 2},
		{Title: "Gravity waves from binary mergers", SearchSpaceID: 2},
		{Title: "Protein folding", SearchSpaceID: 1},
	} {
		require.NoError(t, store.SaveDocument(ctx, doc))
	}
	svc := newTestSearchService(store, nil)

	t.Run("prefix matches first", func(t *testing.T) {
		got, err := svc.Suggest(ctx, "GRAV", nil, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"Gravity waves from binary mergers",
			"Quantum gravity",
			"Weak gravitational lensing",
		}, got)
	})

	t.Run("search space filter", func(t *testing.T) {
		got, err := svc.Suggest(ctx, "grav", int64Ptr(2), 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"Gravity waves from binary mergers", "Quantum gravity"}, got)
	})

	t.Run("limit", func(t *testing.T) {
		got, err := svc.Suggest(ctx, "grav", nil, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"Gravity waves from binary mergers"}, got)
	})

	t.Run("short partial", func(t *testing.T) {
		got, err := svc.Suggest(ctx, " g ", nil, 5)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("no match", func(t *testing.T) {
		got, err := svc.Suggest(ctx, "galaxy", nil, 5)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
