package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/paperdex/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/paperdex/internal/core/domain"
	"github.com/custodia-labs/paperdex/internal/core/ports/driven"
	"github.com/custodia-labs/paperdex/internal/metrics"
)

const testDims = 3

var errBoom = errors.New("boom")

// fakeEmbedder returns fixed vectors per text and counts calls.
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32

	embedCalls atomic.Int64
	batchCalls atomic.Int64

	// failOnBatch makes the n-th EmbedBatch call (1-based) fail; 0 never fails.
	failOnBatch int64

	// batchHook runs at the start of every EmbedBatch call.
	batchHook func(call int64)
}

func newFakeEmbedder(vectors map[string][]float32) *fakeEmbedder {
	if vectors == nil {
		vectors = make(map[string][]float32)
	}
	return &fakeEmbedder{vectors: vectors}
}

func (f *fakeEmbedder) vector(text string) []float32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.vectors[text]; ok {
		return append([]float32(nil), v...)
	}
	// Unknown text gets a stable, distinct-ish vector.
	var h uint32 = 2166136261
	for i := 0; i < len(text); i++ {
		h = (h ^ uint32(text[i])) * 16777619
	}
	return []float32{float32(h%7) + 1, float32(h%5) + 1, float32(h%3) + 1}
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.embedCalls.Add(1)
	return f.vector(text), nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	call := f.batchCalls.Add(1)
	if f.batchHook != nil {
		f.batchHook(call)
	}
	if f.failOnBatch > 0 && call == f.failOnBatch {
		return nil, errBoom
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vector(t)
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int              { return testDims }
func (f *fakeEmbedder) ModelName() string            { return "fake" }
func (f *fakeEmbedder) Ping(_ context.Context) error { return nil }
func (f *fakeEmbedder) Close() error                 { return nil }

// recordingStore wraps the memory store to observe and perturb retrieval.
type recordingStore struct {
	*memory.Store

	mu            sync.Mutex
	vectorLimits  []int
	lexicalLimits []int

	vectorErr  error
	lexicalErr error
	hidden     map[int64]bool
}

func newRecordingStore() *recordingStore {
	return &recordingStore{Store: memory.NewStore(testDims), hidden: make(map[int64]bool)}
}

func (r *recordingStore) VectorSearch(
	ctx context.Context, q []float32, limit int, f domain.ChunkFilter,
) ([]driven.VectorHit, error) {
	r.mu.Lock()
	r.vectorLimits = append(r.vectorLimits, limit)
	err := r.vectorErr
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r.Store.VectorSearch(ctx, q, limit, f)
}

func (r *recordingStore) LexicalSearch(
	ctx context.Context, q string, limit int, f domain.ChunkFilter,
) ([]driven.LexicalHit, error) {
	r.mu.Lock()
	r.lexicalLimits = append(r.lexicalLimits, limit)
	err := r.lexicalErr
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r.Store.LexicalSearch(ctx, q, limit, f)
}

// GetDocuments drops hidden documents, as if deleted after retrieval.
func (r *recordingStore) GetDocuments(ctx context.Context, ids []int64) (map[int64]*domain.Document, error) {
	docs, err := r.Store.GetDocuments(ctx, ids)
	if err != nil {
		return nil, err
	}
	for id := range r.hidden {
		delete(docs, id)
	}
	return docs, nil
}

// addDocument stores a document and its chunks with embeddings from emb.
func addDocument(
	t *testing.T, store *recordingStore, emb *fakeEmbedder, doc *domain.Document, chunks ...string,
) int64 {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.SaveDocument(ctx, doc))

	inputs := make([]domain.ChunkInput, len(chunks))
	for i, c := range chunks {
		inputs[i] = domain.ChunkInput{Content: c, Embedding: emb.vector(c)}
	}
	if len(inputs) > 0 {
		require.NoError(t, store.UpsertChunks(ctx, doc.ID, inputs))
	}
	return doc.ID
}

func testMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

func int64Ptr(v int64) *int64 { return &v }
