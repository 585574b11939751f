package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/paperdex/internal/core/domain"
	"github.com/custodia-labs/paperdex/internal/core/ports/driven"
	"github.com/custodia-labs/paperdex/internal/core/ports/driving"
	"github.com/custodia-labs/paperdex/internal/logger"
	"github.com/custodia-labs/paperdex/internal/metrics"
)

// Ensure SearchService implements the interface.
var _ driving.SearchService = (*SearchService)(nil)

// candidateFactor is how many chunk candidates each retrieval mode returns per requested result.
const candidateFactor = 3

// similarConcurrency bounds the parallel vector queries of a similar-to request.
const similarConcurrency = 4

// SearchService plans queries over the chunk store and ranks documents.
type SearchService struct {
	docStore         driven.DocumentStore
	chunkStore       driven.ChunkStore
	embeddingService driven.EmbeddingService
	metrics          *metrics.Metrics
}

// NewSearchService creates a new search service.
// The embeddingService parameter is optional (can be nil); without it hybrid
// queries run full-text retrieval only.
func NewSearchService(
	docStore driven.DocumentStore,
	chunkStore driven.ChunkStore,
	embeddingService driven.EmbeddingService,
) *SearchService {
	return &SearchService{
		docStore:         docStore,
		chunkStore:       chunkStore,
		embeddingService: embeddingService,
		metrics:          metrics.Get(),
	}
}

// SetMetrics replaces the metrics collectors.
func (s *SearchService) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Search blends vector and full-text retrieval into a ranked list of documents.
func (s *SearchService) Search(
	ctx context.Context, query string, opts domain.SearchOptions,
) (*domain.RankedResult, error) {
	started := time.Now()
	logger.Section("Search Execution")
	logger.Debug("Query: %q", query)

	query = strings.TrimSpace(query)
	if query == "" {
		s.metrics.ObserveSearch(string(opts.Mode), metrics.OutcomeInvalid, started)
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}

	limit, err := effectiveLimit(opts.Limit)
	if err != nil {
		s.metrics.ObserveSearch(string(opts.Mode), metrics.OutcomeInvalid, started)
		return nil, err
	}

	mode, err := s.effectiveMode(opts.Mode)
	if err != nil {
		s.metrics.ObserveSearch(string(opts.Mode), metrics.OutcomeInvalid, started)
		return nil, err
	}
	logger.Info("Effective search mode: %s", mode.Description())

	internalLimit := limit * candidateFactor
	filter := domain.ChunkFilter{SearchSpaceID: opts.SearchSpaceID}
	logger.Debug("Limit: %d, internal limit: %d, search space: %v", limit, internalLimit, opts.SearchSpaceID)

	var vectorHits []driven.VectorHit
	var lexicalHits []driven.LexicalHit

	g, gctx := errgroup.WithContext(ctx)
	if mode == domain.SearchModeHybrid || mode == domain.SearchModeSemantic {
		g.Go(func() error {
			hits, err := s.vectorSearch(gctx, query, internalLimit, filter)
			vectorHits = hits
			return err
		})
	}
	if mode == domain.SearchModeHybrid || mode == domain.SearchModeKeyword {
		g.Go(func() error {
			hits, err := s.lexicalSearch(gctx, query, internalLimit, filter)
			lexicalHits = hits
			return err
		})
	}
	if err := g.Wait(); err != nil {
		logger.Warn("Search failed: %v", err)
		s.metrics.ObserveSearch(string(mode), metrics.OutcomeError, started)
		return nil, fmt.Errorf("search: %w", err)
	}

	s.metrics.ObserveCandidates(sourceVector, len(vectorHits))
	s.metrics.ObserveCandidates(sourceLexical, len(lexicalHits))
	logger.Debug("Raw results: %d vector + %d lexical chunks", len(vectorHits), len(lexicalHits))

	ranked := rankDocuments(mergeCandidates(vectorHits, lexicalHits), nil)
	items, err := s.hydrateResults(ctx, ranked, limit, opts.MinScore)
	if err != nil {
		s.metrics.ObserveSearch(string(mode), metrics.OutcomeError, started)
		return nil, fmt.Errorf("hydrate results: %w", err)
	}

	outcome := metrics.OutcomeOK
	if len(items) == 0 {
		outcome = metrics.OutcomeEmpty
	}
	s.metrics.ObserveSearch(string(mode), outcome, started)
	logger.Info("Final results: %d", len(items))

	return &domain.RankedResult{Query: query, Mode: mode, Items: items}, nil
}

// SimilarTo ranks documents by the similarity of their chunks to the chunks of documentID.
func (s *SearchService) SimilarTo(
	ctx context.Context, documentID int64, limit int,
) (*domain.RankedResult, error) {
	started := time.Now()
	mode := domain.SearchModeSimilar
	logger.Section("Similar Documents")
	logger.Debug("Anchor document: %d", documentID)

	limit, err := effectiveLimit(limit)
	if err != nil {
		s.metrics.ObserveSearch(string(mode), metrics.OutcomeInvalid, started)
		return nil, err
	}

	if _, err := s.docStore.GetDocument(ctx, documentID); err != nil {
		s.metrics.ObserveSearch(string(mode), metrics.OutcomeError, started)
		return nil, fmt.Errorf("get anchor document %d: %w", documentID, err)
	}

	anchors, err := s.chunkStore.GetChunks(ctx, documentID)
	if err != nil {
		s.metrics.ObserveSearch(string(mode), metrics.OutcomeError, started)
		return nil, fmt.Errorf("get anchor chunks: %w", err)
	}
	if len(anchors) == 0 {
		logger.Warn("Document %d has no chunks and is unsearchable by vector; it needs re-processing", documentID)
		s.metrics.ObserveSearch(string(mode), metrics.OutcomeEmpty, started)
		return &domain.RankedResult{Mode: mode, Items: []domain.ResultItem{}}, nil
	}

	internalLimit := limit * candidateFactor
	filter := domain.ChunkFilter{ExcludeDocumentID: &documentID}
	perAnchor := make([][]driven.VectorHit, len(anchors))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(similarConcurrency)
	for i := range anchors {
		if len(anchors[i].Embedding) == 0 {
			continue
		}
		vec := anchors[i].Embedding
		g.Go(func() error {
			hits, err := s.chunkStore.VectorSearch(gctx, vec, internalLimit, filter)
			if err != nil {
				return fmt.Errorf("vector search for anchor chunk %d: %w", i, err)
			}
			perAnchor[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.metrics.ObserveSearch(string(mode), metrics.OutcomeError, started)
		return nil, fmt.Errorf("similar to %d: %w", documentID, err)
	}

	var all []driven.VectorHit
	for _, hits := range perAnchor {
		all = append(all, hits...)
	}
	s.metrics.ObserveCandidates(sourceVector, len(all))
	logger.Debug("Similar: %d anchor chunks produced %d vector hits", len(anchors), len(all))

	ranked := rankDocuments(mergeCandidates(all, nil), &documentID)
	items, err := s.hydrateResults(ctx, ranked, limit, 0)
	if err != nil {
		s.metrics.ObserveSearch(string(mode), metrics.OutcomeError, started)
		return nil, fmt.Errorf("hydrate results: %w", err)
	}

	outcome := metrics.OutcomeOK
	if len(items) == 0 {
		outcome = metrics.OutcomeEmpty
	}
	s.metrics.ObserveSearch(string(mode), outcome, started)

	return &domain.RankedResult{Mode: mode, Items: items}, nil
}

// Suggest returns titles of papers containing partial, case-insensitively.
// Prefix matches come first, then other matches, each alphabetically.
func (s *SearchService) Suggest(
	ctx context.Context, partial string, searchSpaceID *int64, limit int,
) ([]string, error) {
	partial = strings.ToLower(strings.TrimSpace(partial))
	if utf8.RuneCountInString(partial) < domain.MinSuggestRunes {
		return []string{}, nil
	}
	if limit <= 0 {
		limit = domain.DefaultSuggestLimit
	}
	limit = min(limit, domain.MaxSearchLimit)

	docs, err := s.docStore.ListDocuments(ctx, searchSpaceID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	type suggestion struct {
		title  string
		prefix bool
	}
	seen := make(map[string]bool)
	var matches []suggestion
	for i := range docs {
		title := strings.TrimSpace(docs[i].Title)
		lower := strings.ToLower(title)
		if title == "" || seen[title] || !strings.Contains(lower, partial) {
			continue
		}
		seen[title] = true
		matches = append(matches, suggestion{title: title, prefix: strings.HasPrefix(lower, partial)})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].prefix != matches[j].prefix {
			return matches[i].prefix
		}
		return strings.ToLower(matches[i].title) < strings.ToLower(matches[j].title)
	})

	out := make([]string, 0, min(limit, len(matches)))
	for _, m := range matches[:min(limit, len(matches))] {
		out = append(out, m.title)
	}
	logger.Debug("Suggestions for %q: %d", partial, len(out))
	return out, nil
}

// effectiveMode determines the search mode based on options and available services.
// Hybrid degrades to keyword search when no embedding service is configured.
func (s *SearchService) effectiveMode(requested domain.SearchMode) (domain.SearchMode, error) {
	if requested == "" {
		requested = domain.SearchModeHybrid
	}
	if !requested.IsValid() {
		return "", fmt.Errorf("%w: unknown search mode %q", domain.ErrInvalidInput, requested)
	}

	canDoVector := s.embeddingService != nil
	switch {
	case requested == domain.SearchModeSemantic && !canDoVector:
		return "", domain.ErrEmbeddingUnavailable
	case requested == domain.SearchModeHybrid && !canDoVector:
		logger.Warn("Embedding service not configured, using keyword search only")
		return domain.SearchModeKeyword, nil
	default:
		return requested, nil
	}
}

// effectiveLimit rejects non-positive limits and clamps to the hard cap.
func effectiveLimit(limit int) (int, error) {
	if limit <= 0 {
		return 0, fmt.Errorf("%w: limit must be positive, got %d", domain.ErrInvalidInput, limit)
	}
	if limit > domain.MaxSearchLimit {
		logger.Debug("Limit %d clamped to %d", limit, domain.MaxSearchLimit)
		return domain.MaxSearchLimit, nil
	}
	return limit, nil
}

// vectorSearch embeds the query and runs nearest-neighbour search.
func (s *SearchService) vectorSearch(
	ctx context.Context, query string, limit int, filter domain.ChunkFilter,
) ([]driven.VectorHit, error) {
	logger.Debug("Vector search: query=%q, limit=%d", query, limit)

	embedding, err := s.embeddingService.Embed(ctx, query)
	if err != nil {
		logger.Warn("Query embedding failed: %v", err)
		return nil, fmt.Errorf("generate query embedding: %w", err)
	}

	hits, err := s.chunkStore.VectorSearch(ctx, embedding, limit, filter)
	if err != nil {
		logger.Warn("Vector search failed: %v", err)
		return nil, fmt.Errorf("vector search: %w", err)
	}

	logger.Debug("Vector search: %d hits", len(hits))
	return hits, nil
}

// lexicalSearch runs full-text search over chunk content.
func (s *SearchService) lexicalSearch(
	ctx context.Context, query string, limit int, filter domain.ChunkFilter,
) ([]driven.LexicalHit, error) {
	logger.Debug("Lexical search: query=%q, limit=%d", query, limit)

	hits, err := s.chunkStore.LexicalSearch(ctx, query, limit, filter)
	if err != nil {
		logger.Warn("Lexical search failed: %v", err)
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	logger.Debug("Lexical search: %d hits", len(hits))
	return hits, nil
}

// hydrateResults attaches documents to ranked IDs, applies minScore and
// truncates to limit. Documents deleted since retrieval are skipped.
// Result documents carry no full text; the snippet serves as preview.
func (s *SearchService) hydrateResults(
	ctx context.Context, ranked []rankedDocument, limit int, minScore float64,
) ([]domain.ResultItem, error) {
	items := make([]domain.ResultItem, 0, min(limit, len(ranked)))
	if len(ranked) == 0 {
		return items, nil
	}

	ids := make([]int64, 0, len(ranked))
	for _, r := range ranked {
		if r.best.score < minScore {
			break
		}
		ids = append(ids, r.documentID)
	}
	if len(ids) == 0 {
		return items, nil
	}

	docs, err := s.docStore.GetDocuments(ctx, ids)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	for _, r := range ranked[:len(ids)] {
		doc, ok := docs[r.documentID]
		if !ok {
			logger.Debug("Document %d vanished before hydration, skipping", r.documentID)
			continue
		}
		d := *doc
		d.Content = ""
		items = append(items, domain.ResultItem{
			Document: d,
			Score:    r.best.score,
			Snippet:  r.best.content,
			ChunkID:  r.best.chunkID,
			Sources:  r.best.sources,
		})
		if len(items) == limit {
			break
		}
	}

	return items, nil
}
