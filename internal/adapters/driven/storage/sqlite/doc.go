// Package sqlite provides a SQLite-based implementation of the storage ports.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. A single database file holds:
//
//   - DocumentStore: papers and their metadata
//   - ChunkStore: chunk text, embedding vectors and an FTS5 index over the text
//   - EmbeddingStatusStore: the per-document re-embedding state machine
//
// # Search
//
// Lexical search uses FTS5 with the porter stemmer and bm25 ranking. Vector
// search decodes the stored float32 blobs and computes cosine distance in
// process; it is exact and linear in the number of chunks that pass the filter.
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory, applied in order on open.
//
// # Data Location
//
// By default, the database is stored at ~/.paperdex/data/index.db
//
// # Thread Safety
//
// All operations are thread-safe. Transactions take the write lock up front
// (immediate mode) so read-modify-write state transitions never interleave.
package sqlite
