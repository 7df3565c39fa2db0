package llm

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/markdave123-py/docvault/internal/core"
)

const DefaultGeminiEmbedModel = "text-embedding-004"

type GeminiEmbedder struct {
	client    *genai.Client
	modelName string

	// embedContent calls the API; tests replace it.
	embedContent func(ctx context.Context, model, text string) (*genai.EmbedContentResponse, error)
}

func NewGeminiEmbedder(ctx context.Context, apiKey, modelName string) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini api key is empty", core.ErrInvalidInput)
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = DefaultGeminiEmbedModel
	}
	g := &GeminiEmbedder{client: cl, modelName: modelName}
	g.embedContent = func(ctx context.Context, model, text string) (*genai.EmbedContentResponse, error) {
		return cl.EmbeddingModel(model).EmbedContent(ctx, genai.Text(text))
	}
	return g, nil
}

func (g *GeminiEmbedder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiEmbedder) ModelName() string { return g.modelName }

// Embed embeds a single chunk. An empty model uses the embedder's default.
func (g *GeminiEmbedder) Embed(ctx context.Context, text, model string) ([]float32, error) {
	if model == "" {
		model = g.modelName
	}
	res, err := g.embedContent(ctx, model, text)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini embed: %w", core.ErrEmbeddingService, err)
	}
	if res == nil || res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("%w: gemini returned an empty embedding", core.ErrEmbeddingService)
	}
	return res.Embedding.Values, nil
}

var _ core.EmbeddingProvider = (*GeminiEmbedder)(nil)
