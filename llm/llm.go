// Package llm abstracts text generation so the assistant can run against a
// hosted Gemini model or a local OpenAI-compatible server interchangeably.
package llm

import "context"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one turn of a chat exchange in OpenAI message format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is implemented by every LLM backend.
type Client interface {
	// Generate produces the assistant reply for the given conversation.
	Generate(ctx context.Context, messages []Message) (string, error)

	// Description identifies the backend and model for logging.
	Description() string
}

// TokenUsage tracks prompt/completion token counts of an exchange.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
}

func (u TokenUsage) TotalTokens() int {
	return u.PromptTokens + u.CompletionTokens
}

// GenerateSingle is a shorthand for generating a response to one user message.
func GenerateSingle(ctx context.Context, client Client, message string) (string, error) {
	return client.Generate(ctx, []Message{{Role: RoleUser, Content: message}})
}
