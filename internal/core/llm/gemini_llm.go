package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/markdave123-py/docvault/internal/core"
)

const DefaultGeminiModel = "gemini-1.5-flash"

type GeminiLLM struct {
	client    *genai.Client
	modelName string

	// generate calls the API; tests replace it.
	generate func(ctx context.Context, model, prompt string) (*genai.GenerateContentResponse, error)
}

func NewGeminiLLM(ctx context.Context, apiKey, modelName string) (*GeminiLLM, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini api key is empty", core.ErrInvalidInput)
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}
	g := &GeminiLLM{client: cl, modelName: modelName}
	g.generate = func(ctx context.Context, model, prompt string) (*genai.GenerateContentResponse, error) {
		return cl.GenerativeModel(model).GenerateContent(ctx, genai.Text(prompt))
	}
	return g, nil
}

func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiLLM) ModelName() string { return g.modelName }

func (g *GeminiLLM) Complete(ctx context.Context, prompt, model string) (string, error) {
	if model == "" {
		model = g.modelName
	}
	resp, err := g.generate(ctx, model, prompt)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}

var _ core.LLMProvider = (*GeminiLLM)(nil)
