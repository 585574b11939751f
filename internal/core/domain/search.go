package domain

// Result limits.
const (
	// DefaultSearchLimit is the number of results returned when a caller does not choose.
	DefaultSearchLimit = 20

	// DefaultSimilarLimit is the default number of results for similar-to queries.
	DefaultSimilarLimit = 10

	// MaxSearchLimit is the hard cap on results; larger requests are clamped.
	MaxSearchLimit = 100

	// DefaultSuggestLimit is the default number of title suggestions.
	DefaultSuggestLimit = 5

	// MinSuggestRunes is the shortest partial query that gets suggestions.
	MinSuggestRunes = 2
)

// SearchMode selects which retrieval modes a query runs.
type SearchMode string

// Available search modes.
const (
	// SearchModeHybrid runs vector and lexical retrieval and blends the scores.
	SearchModeHybrid SearchMode = "hybrid"

	// SearchModeSemantic runs vector retrieval only.
	SearchModeSemantic SearchMode = "semantic"

	// SearchModeKeyword runs lexical (full-text) retrieval only.
	SearchModeKeyword SearchMode = "keyword"

	// SearchModeSimilar is reported on results of similar-to queries.
	SearchModeSimilar SearchMode = "similar"
)

// IsValid returns true if the mode can be requested by a caller.
func (m SearchMode) IsValid() bool {
	switch m {
	case SearchModeHybrid, SearchModeSemantic, SearchModeKeyword:
		return true
	default:
		return false
	}
}

// RequiresEmbedding returns true if this mode needs an embedding provider.
func (m SearchMode) RequiresEmbedding() bool {
	return m == SearchModeSemantic || m == SearchModeSimilar
}

// String returns the string representation.
func (m SearchMode) String() string {
	return string(m)
}

// Description returns a human-readable description of the mode.
func (m SearchMode) Description() string {
	switch m {
	case SearchModeHybrid:
		return "Hybrid (vector + full-text)"
	case SearchModeSemantic:
		return "Semantic (vector only)"
	case SearchModeKeyword:
		return "Keyword (full-text only)"
	case SearchModeSimilar:
		return "Similar to document"
	default:
		return unknownDescription
	}
}

// SearchOptions configures a search query.
type SearchOptions struct {
	// Limit is the maximum number of results. Must be positive.
	Limit int

	// SearchSpaceID restricts results to one collection when set.
	SearchSpaceID *int64

	// Mode selects the retrieval modes. Empty means hybrid.
	Mode SearchMode

	// MinScore drops results scoring below it.
	MinScore float64
}

// DefaultSearchOptions returns options for an unfiltered hybrid search.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		Limit: DefaultSearchLimit,
		Mode:  SearchModeHybrid,
	}
}

// ChunkFilter narrows chunk-level retrieval.
type ChunkFilter struct {
	// SearchSpaceID restricts chunks to documents in one collection.
	SearchSpaceID *int64

	// ExcludeDocumentID drops chunks of one document (similar-to anchors).
	ExcludeDocumentID *int64
}

// ResultItem is one ranked document.
type ResultItem struct {
	// Document is the matched paper.
	Document Document

	// Score is the normalised relevance in [0,1].
	Score float64

	// Snippet is the text of the chunk that produced Score.
	Snippet string

	// ChunkID identifies the winning chunk.
	ChunkID string

	// Sources lists the retrieval modes that matched the winning chunk.
	Sources []string
}

// RankedResult is an ordered sequence of documents, descending by score,
// ties broken by ascending document ID.
type RankedResult struct {
	Query string
	Mode  SearchMode
	Items []ResultItem
}

// Len returns the number of ranked items.
func (r *RankedResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Items)
}

// DocumentIDs returns the ranked document IDs in order.
func (r *RankedResult) DocumentIDs() []int64 {
	if r == nil {
		return nil
	}
	ids := make([]int64, len(r.Items))
	for i := range r.Items {
		ids[i] = r.Items[i].Document.ID
	}
	return ids
}

// SearchInsights summarises a ranked result.
type SearchInsights struct {
	// Total is the number of ranked documents.
	Total int

	// AverageScore is the mean score, 0 for an empty result.
	AverageScore float64

	// LiteratureTypes counts documents per literature type; untagged
	// documents are not counted.
	LiteratureTypes map[string]int
}

// Insights computes summary figures over the ranked items.
func (r *RankedResult) Insights() SearchInsights {
	out := SearchInsights{LiteratureTypes: make(map[string]int)}
	if r.Len() == 0 {
		return out
	}
	var sum float64
	for i := range r.Items {
		sum += r.Items[i].Score
		if t := r.Items[i].Document.LiteratureType; t != "" {
			out.LiteratureTypes[t]++
		}
	}
	out.Total = len(r.Items)
	out.AverageScore = sum / float64(out.Total)
	return out
}
