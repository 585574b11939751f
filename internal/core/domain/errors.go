package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input: an empty query,
	// a non-positive limit, or text the embedding model cannot accept.
	// Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrProviderUnavailable indicates a transient embedding provider fault
	// (transport error, timeout, overload). Retried with bounded attempts.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")

	// ErrEmbeddingFailed indicates embedding could not be produced after
	// all retry attempts were exhausted.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	// Vector/semantic search is disabled without embeddings.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrDimensionMismatch indicates a vector whose length differs from the
	// dimensionality fixed for the index.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrUnsupportedType indicates an unknown provider or storage backend.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrCoordinatorClosed indicates the re-embedding coordinator no longer accepts work.
	ErrCoordinatorClosed = errors.New("re-embedding coordinator closed")
)
