package mcp

import (
	"context"

	"github.com/custodia-labs/paperdex/internal/core/domain"
	"github.com/custodia-labs/paperdex/internal/core/ports/driving"
)

// mockSearchService records the last call and returns a fixed result.
type mockSearchService struct {
	result *domain.RankedResult
	err    error

	query     string
	opts      domain.SearchOptions
	anchorID  int64
	anchorLim int

	suggestions  []string
	partial      string
	suggestSpace *int64
	suggestLim   int
}

func (m *mockSearchService) Search(_ context.Context, query string, opts domain.SearchOptions) (*domain.RankedResult, error) {
	m.query, m.opts = query, opts
	return m.result, m.err
}

func (m *mockSearchService) SimilarTo(_ context.Context, documentID int64, limit int) (*domain.RankedResult, error) {
	m.anchorID, m.anchorLim = documentID, limit
	return m.result, m.err
}

func (m *mockSearchService) Suggest(_ context.Context, partial string, space *int64, limit int) ([]string, error) {
	m.partial, m.suggestSpace, m.suggestLim = partial, space, limit
	return m.suggestions, m.err
}

// mockDocumentService serves a fixed set of papers.
type mockDocumentService struct {
	docs []domain.Document
	err  error

	listSpace *int64
}

func (m *mockDocumentService) Add(context.Context, *domain.Document) error { return m.err }

func (m *mockDocumentService) UpdateContent(context.Context, int64, string) error { return m.err }

func (m *mockDocumentService) Get(_ context.Context, id int64) (*domain.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.docs {
		if m.docs[i].ID == id {
			doc := m.docs[i]
			return &doc, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockDocumentService) GetDetails(context.Context, int64) (*driving.DocumentDetails, error) {
	return nil, m.err
}

func (m *mockDocumentService) List(_ context.Context, space *int64) ([]domain.Document, error) {
	m.listSpace = space
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.Document
	for _, d := range m.docs {
		if space == nil || d.SearchSpaceID == *space {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockDocumentService) Delete(context.Context, int64) error { return m.err }
