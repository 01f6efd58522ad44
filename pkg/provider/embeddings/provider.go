// Package embeddings defines the Provider interface for vector embedding backends.
//
// An embeddings provider wraps a service that maps text strings to dense
// float32 vectors (e.g., OpenAI text-embedding-3 or a local Ollama model).
// The semantic relevance scorer embeds the question and the learner's answer
// and compares them by cosine similarity; when no provider is configured the
// scorer falls back to a lexical heuristic, so a nil Provider is a supported
// deployment mode, not an error.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
//
// All vectors returned by a single Provider instance share the same
// dimensionality. Vectors from different Provider instances must not be mixed
// in one similarity computation.
type Provider interface {
	// Embed computes the embedding vector for a single text string. The input
	// is passed through verbatim; any model-specific prompt formatting is the
	// caller's responsibility.
	Embed(ctx context.Context, text string) ([]float32, error)

	// ModelID returns the provider-specific model identifier (e.g.,
	// "text-embedding-3-small", "nomic-embed-text"). Used for logging.
	ModelID() string
}
