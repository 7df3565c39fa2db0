package core

import "context"

// EmbeddingProvider maps chunk text to a fixed-length vector.
// An empty model selects the provider's default model.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string, model string) ([]float32, error)
	ModelName() string
}

// LLMProvider produces a completion for a prompt. Used only for best-effort enrichment.
type LLMProvider interface {
	Complete(ctx context.Context, prompt string, model string) (string, error)
	ModelName() string
}
