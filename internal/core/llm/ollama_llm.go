package llm

import (
	"context"
	"net/http"

	"github.com/markdave123-py/docvault/internal/core"
)

var _ core.LLMProvider = (*OllamaLLM)(nil)

// OllamaLLM sends a single-turn chat to POST /api/chat.
type OllamaLLM struct {
	client  *http.Client
	baseURL string
	model   string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

func NewOllamaLLM(cfg OllamaConfig) *OllamaLLM {
	cfg = cfg.withDefaults(DefaultOllamaChatModel)
	return &OllamaLLM{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
	}
}

func (l *OllamaLLM) ModelName() string { return l.model }

func (l *OllamaLLM) Complete(ctx context.Context, prompt, model string) (string, error) {
	if model == "" {
		model = l.model
	}
	req := chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	}
	var out chatResponse
	if err := postJSON(ctx, l.client, l.baseURL+"/api/chat", req, &out); err != nil {
		return "", err
	}
	return out.Message.Content, nil
}
