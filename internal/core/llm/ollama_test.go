package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/docvault/internal/core"
)

func TestOllamaEmbedder_Defaults(t *testing.T) {
	e := NewOllamaEmbedder(OllamaConfig{})
	assert.Equal(t, DefaultOllamaURL, e.baseURL)
	assert.Equal(t, DefaultOllamaEmbedModel, e.ModelName())
	assert.Equal(t, DefaultOllamaTimeout, e.client.Timeout)
}

func TestOllamaEmbedder_Embed(t *testing.T) {
	var got embedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float64{0.5, -1, 2.25}})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL + "/"})

	vec, err := e.Embed(context.Background(), "photosynthesis", "")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -1, 2.25}, vec)
	assert.Equal(t, embedRequest{Model: DefaultOllamaEmbedModel, Prompt: "photosynthesis"}, got)

	_, err = e.Embed(context.Background(), "x", "mxbai-embed-large")
	require.NoError(t, err)
	assert.Equal(t, "mxbai-embed-large", got.Model)
}

func TestOllamaEmbedder_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}},
		{"bad json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("{not json"))
		}},
		{"empty vector", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"embedding":[]}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL}).Embed(context.Background(), "x", "")
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrEmbeddingService)
		})
	}
}

func TestOllamaEmbedder_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewOllamaEmbedder(OllamaConfig{BaseURL: url, Timeout: time.Second}).Embed(context.Background(), "x", "")
	assert.ErrorIs(t, err, core.ErrEmbeddingService)
}

func TestOllamaLLM_Complete(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(chatResponse{
			Message: chatMessage{Role: "assistant", Content: "a summary"},
			Done:    true,
		})
	}))
	defer srv.Close()

	l := NewOllamaLLM(OllamaConfig{BaseURL: srv.URL})
	assert.Equal(t, DefaultOllamaChatModel, l.ModelName())

	out, err := l.Complete(context.Background(), "summarise this", "")
	require.NoError(t, err)
	assert.Equal(t, "a summary", out)
	assert.Equal(t, DefaultOllamaChatModel, got.Model)
	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, chatMessage{Role: "user", Content: "summarise this"}, got.Messages[0])
}

func TestOllamaLLM_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewOllamaLLM(OllamaConfig{BaseURL: srv.URL}).Complete(context.Background(), "x", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}
