package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/paperdex/internal/core/domain"
)

const uriScheme = "paperdex://"

func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "papers",
		Name:        "papers",
		Description: "All indexed papers",
		MIMEType:    "application/json",
	}, s.handlePapersResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "spaces/{spaceId}/papers",
		Name:        "space-papers",
		Description: "Papers in one search space",
		MIMEType:    "application/json",
	}, s.handlePapersResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "papers/{documentId}",
		Name:        "paper-content",
		Description: "Full text of a paper",
		MIMEType:    "text/plain",
	}, s.handlePaperContentResource)
}

// paperInfo is the listing entry of a paper.
type paperInfo struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Type  string `json:"type,omitempty"`
	Space int64  `json:"space"`
	URI   string `json:"uri"`
}

func (s *Server) handlePapersResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	if s.ports.Document == nil {
		return jsonContents(uri, []paperInfo{})
	}

	var space *int64
	if uri != uriScheme+"papers" {
		id, ok := extractSpaceID(uri)
		if !ok {
			return nil, mcp.ResourceNotFoundError(uri)
		}
		space = &id
	}

	docs, err := s.ports.Document.List(ctx, space)
	if err != nil {
		return nil, fmt.Errorf("listing papers: %w", err)
	}

	infos := make([]paperInfo, len(docs))
	for i := range docs {
		infos[i] = paperInfo{
			ID:    docs[i].ID,
			Title: docs[i].Title,
			Type:  docs[i].LiteratureType,
			Space: docs[i].SearchSpaceID,
			URI:   paperURI(docs[i].ID),
		}
	}
	return jsonContents(uri, infos)
}

func (s *Server) handlePaperContentResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	if s.ports.Document == nil {
		return nil, mcp.ResourceNotFoundError(uri)
	}

	id, ok := extractDocumentID(uri)
	if !ok {
		return nil, mcp.ResourceNotFoundError(uri)
	}

	doc, err := s.ports.Document.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(uri)
	}
	if err != nil {
		return nil, fmt.Errorf("getting paper: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     doc.Content,
		}},
	}, nil
}

func jsonContents(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

func paperURI(id int64) string {
	return uriScheme + "papers/" + strconv.FormatInt(id, 10)
}

// extractDocumentID parses paperdex://papers/{documentId}.
func extractDocumentID(uri string) (int64, bool) {
	rest, ok := strings.CutPrefix(uri, uriScheme+"papers/")
	if !ok {
		return 0, false
	}
	return parsePositive(rest)
}

// extractSpaceID parses paperdex://spaces/{spaceId}/papers.
func extractSpaceID(uri string) (int64, bool) {
	rest, ok := strings.CutPrefix(uri, uriScheme+"spaces/")
	if !ok {
		return 0, false
	}
	rest, ok = strings.CutSuffix(rest, "/papers")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

func parsePositive(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
