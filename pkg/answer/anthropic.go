package answer

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicResponder generates replies through the Anthropic Messages API.
type AnthropicResponder struct {
	client      anthropic.Client
	model       anthropic.Model
	maxTokens   int64
	temperature float64
}

// NewAnthropicResponder creates a responder for the given model name.
func NewAnthropicResponder(apiKey, model string) *AnthropicResponder {
	return &AnthropicResponder{
		client:      anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:       anthropic.Model(model),
		maxTokens:   1024,
		temperature: 0.7,
	}
}

// Respond implements the Responder interface.
func (r *AnthropicResponder) Respond(ctx context.Context, req *Request) (string, error) {
	params := anthropic.MessageNewParams{
		Model: r.model,
		Messages: []anthropic.MessageParam{
			{
				Role:    anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(req.Message)},
			},
		},
		MaxTokens:   r.maxTokens,
		Temperature: anthropic.Float(r.temperature),
		System: []anthropic.TextBlockParam{{
			Text: systemPrompt(req),
			Type: "text",
		}},
	}

	resp, err := r.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return "", fmt.Errorf("received empty response from Anthropic API")
	}

	var text string
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			text += block.AsText().Text
		}
	}
	if text == "" {
		return "", fmt.Errorf("anthropic response contained no text content")
	}
	return text, nil
}
