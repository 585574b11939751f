package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/paperdex/internal/core/domain"
)

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query    string  `json:"query" jsonschema:"free-text query"`
	Limit    int     `json:"limit,omitempty" jsonschema:"maximum number of papers to return (default 20, max 100)"`
	Mode     string  `json:"mode,omitempty" jsonschema:"hybrid, semantic or keyword (default hybrid)"`
	Space    *int64  `json:"space,omitempty" jsonschema:"restrict results to one search space"`
	MinScore float64 `json:"min_score,omitempty" jsonschema:"drop papers scoring below this value in [0,1]"`
}

// SimilarInput is the input schema for the similar tool.
type SimilarInput struct {
	DocumentID int64 `json:"document_id" jsonschema:"the paper to find neighbours of"`
	Limit      int   `json:"limit,omitempty" jsonschema:"maximum number of papers to return (default 10)"`
}

// SuggestInput is the input schema for the suggest tool.
type SuggestInput struct {
	Partial string `json:"partial" jsonschema:"the beginning or a fragment of a paper title (at least 2 characters)"`
	Space   *int64 `json:"space,omitempty" jsonschema:"restrict suggestions to one search space"`
	Limit   int    `json:"limit,omitempty" jsonschema:"maximum number of titles to return (default 5)"`
}

// SuggestOutput is the output schema of the suggest tool.
type SuggestOutput struct {
	Suggestions []string `json:"suggestions"`
}

// ResultsOutput is the output schema of the search and similar tools.
type ResultsOutput struct {
	Mode            string         `json:"mode"`
	Results         []ResultOutput `json:"results"`
	Count           int            `json:"count"`
	AverageScore    float64        `json:"average_score"`
	LiteratureTypes map[string]int `json:"literature_types,omitempty"`
}

// ResultOutput is one ranked paper.
type ResultOutput struct {
	DocumentID int64    `json:"document_id"`
	Title      string   `json:"title"`
	URI        string   `json:"uri"`
	Score      float64  `json:"score"`
	Snippet    string   `json:"snippet,omitempty"`
	Sources    []string `json:"sources,omitempty"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Find indexed papers matching a free-text query",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "similar",
		Description: "Find papers whose content is close to a given paper",
	}, s.handleSimilar)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "suggest",
		Description: "Complete a partial paper title from the indexed papers",
	}, s.handleSuggest)
}

func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, ResultsOutput, error) {
	opts := domain.DefaultSearchOptions()
	if input.Limit > 0 {
		opts.Limit = input.Limit
	}
	if input.Mode != "" {
		opts.Mode = domain.SearchMode(input.Mode)
	}
	opts.SearchSpaceID = input.Space
	opts.MinScore = input.MinScore

	result, err := s.ports.Search.Search(ctx, input.Query, opts)
	if err != nil {
		return nil, ResultsOutput{}, err
	}
	return nil, toOutput(result), nil
}

func (s *Server) handleSimilar(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SimilarInput,
) (*mcp.CallToolResult, ResultsOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = domain.DefaultSimilarLimit
	}

	result, err := s.ports.Search.SimilarTo(ctx, input.DocumentID, limit)
	if err != nil {
		return nil, ResultsOutput{}, err
	}
	return nil, toOutput(result), nil
}

func (s *Server) handleSuggest(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SuggestInput,
) (*mcp.CallToolResult, SuggestOutput, error) {
	titles, err := s.ports.Search.Suggest(ctx, input.Partial, input.Space, input.Limit)
	if err != nil {
		return nil, SuggestOutput{}, err
	}
	if titles == nil {
		titles = []string{}
	}
	return nil, SuggestOutput{Suggestions: titles}, nil
}

func toOutput(result *domain.RankedResult) ResultsOutput {
	out := ResultsOutput{Results: make([]ResultOutput, 0, result.Len())}
	if result == nil {
		return out
	}
	out.Mode = string(result.Mode)
	for i := range result.Items {
		item := &result.Items[i]
		out.Results = append(out.Results, ResultOutput{
			DocumentID: item.Document.ID,
			Title:      item.Document.Title,
			URI:        paperURI(item.Document.ID),
			Score:      item.Score,
			Snippet:    item.Snippet,
			Sources:    item.Sources,
		})
	}
	out.Count = len(out.Results)
	insights := result.Insights()
	out.AverageScore = insights.AverageScore
	if len(insights.LiteratureTypes) > 0 {
		out.LiteratureTypes = insights.LiteratureTypes
	}
	return out
}
