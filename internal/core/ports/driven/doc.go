// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - DocumentStore / DocumentSource: paper text and metadata (owned by the ingestion side)
//   - ChunkStore: chunk persistence with vector and lexical retrieval over the same rows
//   - EmbeddingStatusStore: per-document re-embedding state with compare-and-swap claims
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - EmbeddingService: Generates vector embeddings. Without it, hybrid search
//     runs lexical retrieval only and re-embedding is disabled.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
