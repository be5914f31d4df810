package answer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemPromptIncludesPersona(t *testing.T) {
	req := &Request{
		Mode:    ModeAnswer,
		Persona: "You are Luna, a cheerful musician.",
		Message: "What instruments do you play?",
	}

	prompt := systemPrompt(req)
	assert.Contains(t, prompt, "Luna")
	assert.Contains(t, prompt, answerInstruction)
}

func TestSystemPromptClarifyMode(t *testing.T) {
	req := &Request{Mode: ModeClarify, Message: "it?"}

	prompt := systemPrompt(req)
	assert.Contains(t, prompt, clarifyInstruction)
	assert.NotContains(t, prompt, answerInstruction)
}

func TestSystemPromptDefaultPersona(t *testing.T) {
	prompt := systemPrompt(&Request{Mode: ModeAnswer})
	assert.True(t, strings.HasPrefix(prompt, "You are a helpful conversational agent."))
}

func TestSystemPromptAppendsContext(t *testing.T) {
	req := &Request{
		Mode:           ModeAnswer,
		ContextSummary: "The user asked about touring earlier.",
	}
	assert.Contains(t, systemPrompt(req), "touring")
}

func TestTemplateResponder(t *testing.T) {
	responder := NewTemplateResponder()

	reply, err := responder.Respond(context.Background(), &Request{Mode: ModeAnswer, Message: "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, reply)

	clarify, err := responder.Respond(context.Background(), &Request{Mode: ModeClarify, Message: "it?"})
	require.NoError(t, err)
	assert.Contains(t, clarify, "?")
	assert.NotEqual(t, reply, clarify)
}
