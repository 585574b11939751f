// Package embedding holds helpers shared by the embedding provider adapters.
//
// Provider adapters live in subpackages (ollama, openai, hashing). The
// resilient subpackage wraps any of them with validation, retries, a
// per-call timeout, rate limiting and a query cache.
package embedding
