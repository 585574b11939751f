package mcp

import (
	"github.com/custodia-labs/paperdex/internal/core/ports/driving"
)

// Ports aggregates the driving ports the MCP server calls.
type Ports struct {
	// Search provides ranked retrieval.
	Search driving.SearchService

	// Document lists papers and serves their text. Optional.
	Document driving.DocumentService
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Search == nil {
		return ErrMissingSearchService
	}
	return nil
}
