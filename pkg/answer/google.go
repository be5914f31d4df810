package answer

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GoogleResponder generates replies through the Gemini API.
type GoogleResponder struct {
	client      *genai.Client
	apiKey      string
	model       string
	temperature float32
	maxTokens   int32
}

// NewGoogleResponder creates a responder for the given Gemini model name.
// Client creation requires a context, so it is deferred to the first call.
func NewGoogleResponder(apiKey, model string) *GoogleResponder {
	return &GoogleResponder{
		apiKey:      apiKey,
		model:       model,
		temperature: 0.7,
		maxTokens:   1024,
	}
}

// Respond implements the Responder interface.
func (r *GoogleResponder) Respond(ctx context.Context, req *Request) (string, error) {
	if r.client == nil {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  r.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return "", fmt.Errorf("failed to create Gemini client: %w", err)
		}
		r.client = client
	}

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: req.Message}},
		},
	}
	config := &genai.GenerateContentConfig{
		Temperature:     &r.temperature,
		MaxOutputTokens: r.maxTokens,
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt(req)}},
		},
	}

	result, err := r.client.Models.GenerateContent(ctx, r.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	if result == nil || result.Text() == "" {
		return "", fmt.Errorf("received empty response from Gemini API")
	}

	return result.Text(), nil
}
