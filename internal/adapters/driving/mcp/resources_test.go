package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/paperdex/internal/core/domain"
)

func makeReadResourceRequest(uri string) *mcp.ReadResourceRequest {
	return &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{URI: uri},
	}
}

func paperFixtures() *mockDocumentService {
	return &mockDocumentService{docs: []domain.Document{
		{ID: 1, Title: "Dwarf Galaxies", Content: "Dark matter halos.", SearchSpaceID: 1, LiteratureType: "article"},
		{ID: 2, Title: "Cluster Lensing", Content: "Weak lensing maps.", SearchSpaceID: 2},
	}}
}

func TestExtractDocumentID(t *testing.T) {
	tests := []struct {
		uri    string
		want   int64
		wantOK bool
	}{
		{"paperdex://papers/42", 42, true},
		{"paperdex://papers/0", 0, false},
		{"paperdex://papers/abc", 0, false},
		{"file://papers/42", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			got, ok := extractDocumentID(tt.uri)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractSpaceID(t *testing.T) {
	id, ok := extractSpaceID("paperdex://spaces/3/papers")
	assert.True(t, ok)
	assert.Equal(t, int64(3), id)

	_, ok = extractSpaceID("paperdex://spaces/3")
	assert.False(t, ok)
	_, ok = extractSpaceID("paperdex://spaces/x/papers")
	assert.False(t, ok)
}

func TestServer_handlePapersResource(t *testing.T) {
	ctx := context.Background()

	t.Run("lists all papers", func(t *testing.T) {
		docs := paperFixtures()
		server := newTestServer(t, &mockSearchService{}, docs)

		res, err := server.handlePapersResource(ctx, makeReadResourceRequest("paperdex://papers"))

		require.NoError(t, err)
		require.Len(t, res.Contents, 1)
		assert.Equal(t, "application/json", res.Contents[0].MIMEType)
		var infos []paperInfo
		require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &infos))
		assert.Len(t, infos, 2)
		assert.Equal(t, "paperdex://papers/1", infos[0].URI)
		assert.Nil(t, docs.listSpace)
	})

	t.Run("filters by space", func(t *testing.T) {
		docs := paperFixtures()
		server := newTestServer(t, &mockSearchService{}, docs)

		res, err := server.handlePapersResource(ctx, makeReadResourceRequest("paperdex://spaces/2/papers"))

		require.NoError(t, err)
		var infos []paperInfo
		require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &infos))
		require.Len(t, infos, 1)
		assert.Equal(t, "Cluster Lensing", infos[0].Title)
		require.NotNil(t, docs.listSpace)
		assert.Equal(t, int64(2), *docs.listSpace)
	})

	t.Run("no document service", func(t *testing.T) {
		server := newTestServer(t, &mockSearchService{}, nil)

		res, err := server.handlePapersResource(ctx, makeReadResourceRequest("paperdex://papers"))

		require.NoError(t, err)
		assert.Equal(t, "[]", res.Contents[0].Text)
	})

	t.Run("bad space URI", func(t *testing.T) {
		server := newTestServer(t, &mockSearchService{}, paperFixtures())

		_, err := server.handlePapersResource(ctx, makeReadResourceRequest("paperdex://spaces/x/papers"))

		assert.Error(t, err)
	})

	t.Run("list failure", func(t *testing.T) {
		docs := &mockDocumentService{err: errors.New("db down")}
		server := newTestServer(t, &mockSearchService{}, docs)

		_, err := server.handlePapersResource(ctx, makeReadResourceRequest("paperdex://papers"))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "db down")
	})
}

func TestServer_handlePaperContentResource(t *testing.T) {
	ctx := context.Background()
	server := newTestServer(t, &mockSearchService{}, paperFixtures())

	res, err := server.handlePaperContentResource(ctx, makeReadResourceRequest("paperdex://papers/2"))
	require.NoError(t, err)
	assert.Equal(t, "text/plain", res.Contents[0].MIMEType)
	assert.Equal(t, "Weak lensing maps.", res.Contents[0].Text)

	_, err = server.handlePaperContentResource(ctx, makeReadResourceRequest("paperdex://papers/99"))
	assert.Error(t, err)

	_, err = server.handlePaperContentResource(ctx, makeReadResourceRequest("paperdex://papers/x"))
	assert.Error(t, err)
}
