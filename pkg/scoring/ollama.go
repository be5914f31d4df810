package scoring

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

// OllamaEmbedder generates embeddings through a local Ollama server, for
// deployments that keep message content off third-party APIs.
type OllamaEmbedder struct {
	client *api.Client
	model  string
}

// NewOllamaEmbedder creates an embedder against the given Ollama host
// (e.g. "http://localhost:11434") and model (e.g. "nomic-embed-text").
func NewOllamaEmbedder(hostURL, model string) *OllamaEmbedder {
	parsedURL, err := url.Parse(hostURL)
	if err != nil {
		// Fall back to the default if the URL is invalid.
		parsedURL, _ = url.Parse("http://localhost:11434")
	}
	return &OllamaEmbedder{
		client: api.NewClient(parsedURL, http.DefaultClient),
		model:  model,
	}
}

// Embed implements the Embedder interface.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{
		Model: e.model,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embedding request failed: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama embedding response contained no data")
	}
	return resp.Embeddings[0], nil
}
