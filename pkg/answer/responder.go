// Package answer generates the user-facing reply text for auto-answers and
// clarification prompts. Routing decides the path; this package only puts
// words on it.
package answer

import "context"

// Mode selects what kind of reply to generate.
type Mode string

// Generation modes.
const (
	// ModeAnswer produces a direct reply in the agent's voice.
	ModeAnswer Mode = "answer"
	// ModeClarify produces a short follow-up question for ambiguous messages.
	ModeClarify Mode = "clarify"
)

// Request carries the context a responder needs for one reply.
//
//nolint:govet // struct alignment optimization not critical for this type
type Request struct {
	Mode    Mode
	AgentID string
	// Persona is the agent's voice description, prepended as the system
	// prompt by LLM-backed responders.
	Persona string
	Message string
	// ContextSummary is optional recent-conversation context.
	ContextSummary string
}

// Responder generates reply text. Implementations must be safe for
// concurrent use.
type Responder interface {
	Respond(ctx context.Context, req *Request) (string, error)
}

const answerInstruction = "Reply to the user's message directly and concisely, staying in character."

const clarifyInstruction = "The user's message is ambiguous. Ask one short clarifying question, staying in character. Do not answer the question itself."

func systemPrompt(req *Request) string {
	prompt := req.Persona
	if prompt == "" {
		prompt = "You are a helpful conversational agent."
	}
	switch req.Mode {
	case ModeClarify:
		prompt += "\n\n" + clarifyInstruction
	default:
		prompt += "\n\n" + answerInstruction
	}
	if req.ContextSummary != "" {
		prompt += "\n\nRecent conversation context: " + req.ContextSummary
	}
	return prompt
}
