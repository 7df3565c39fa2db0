package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Ollama defaults.
const (
	DefaultOllamaURL        = "http://localhost:11434"
	DefaultOllamaEmbedModel = "nomic-embed-text"
	DefaultOllamaChatModel  = "gemma3:1b"
	DefaultOllamaTimeout    = 60 * time.Second
)

// OllamaConfig configures both Ollama adapters.
type OllamaConfig struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434).
	BaseURL string

	// Model is the default model when a call passes none.
	Model string

	// Timeout bounds each request.
	Timeout time.Duration
}

func (c OllamaConfig) withDefaults(model string) OllamaConfig {
	if c.BaseURL == "" {
		c.BaseURL = DefaultOllamaURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Model == "" {
		c.Model = model
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultOllamaTimeout
	}
	return c
}

// postJSON sends body to path and decodes a 200 response into out.
func postJSON(ctx context.Context, client *http.Client, url string, body, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err != nil {
			return fmt.Errorf("ollama error (status %d): failed to read response", resp.StatusCode)
		}
		return fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
