// Package embedder provides the embedding backends: Gemini for production,
// Ollama for local models, and a deterministic token-hash embedder that needs
// no external service. A rate-limiting decorator wraps any of them.
package embedder

import "context"

// Embedder converts text into a vector. All implementations in this package
// return vectors of the dimension they were constructed with.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// DefaultDimension matches the vector store default.
const DefaultDimension = 1536
