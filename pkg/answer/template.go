package answer

import "context"

// TemplateResponder returns fixed reply templates. It is the default when no
// LLM provider is configured, and the fallback the engine uses when a
// provider call fails: routing must still produce a reply on every path.
type TemplateResponder struct{}

// NewTemplateResponder creates the static fallback responder.
func NewTemplateResponder() *TemplateResponder {
	return &TemplateResponder{}
}

// Respond implements the Responder interface.
func (r *TemplateResponder) Respond(_ context.Context, req *Request) (string, error) {
	if req.Mode == ModeClarify {
		return "I want to make sure I understand you right. Could you tell me a bit more about what you mean?", nil
	}
	return "Great question! Let me get back to you with a proper answer soon.", nil
}
