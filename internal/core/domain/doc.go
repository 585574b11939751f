// Package domain defines the core entities for paperdex.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: One ingested scientific paper
//   - Chunk: A contiguous slice of a document's text plus its embedding
//   - EmbeddingState: The re-embedding state machine record of a document
//   - SearchOptions / RankedResult: Query inputs and ranked outputs
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
