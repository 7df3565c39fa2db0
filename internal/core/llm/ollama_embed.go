package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/markdave123-py/docvault/internal/core"
)

var _ core.EmbeddingProvider = (*OllamaEmbedder)(nil)

// OllamaEmbedder calls POST /api/embeddings.
type OllamaEmbedder struct {
	client  *http.Client
	baseURL string
	model   string
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

func NewOllamaEmbedder(cfg OllamaConfig) *OllamaEmbedder {
	cfg = cfg.withDefaults(DefaultOllamaEmbedModel)
	return &OllamaEmbedder{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
	}
}

func (e *OllamaEmbedder) ModelName() string { return e.model }

// Embed returns the vector for text. Every failure, including an empty
// vector, is reported as core.ErrEmbeddingService.
func (e *OllamaEmbedder) Embed(ctx context.Context, text, model string) ([]float32, error) {
	if model == "" {
		model = e.model
	}

	var out embedResponse
	if err := postJSON(ctx, e.client, e.baseURL+"/api/embeddings", embedRequest{Model: model, Prompt: text}, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrEmbeddingService, err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("%w: ollama returned an empty embedding for model %s", core.ErrEmbeddingService, model)
	}

	vec := make([]float32, len(out.Embedding))
	for i, v := range out.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}
