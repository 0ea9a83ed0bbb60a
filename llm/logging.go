package llm

import (
	"context"
	"log/slog"
	"sync"
)

// LoggingClient wraps another Client and records every exchange. Token counts
// are approximated at ~4 characters per token since not every backend reports
// usage.
type LoggingClient struct {
	inner Client

	mu    sync.Mutex
	calls int
	usage TokenUsage
}

func NewLoggingClient(inner Client) *LoggingClient {
	return &LoggingClient{inner: inner}
}

func (l *LoggingClient) Generate(ctx context.Context, messages []Message) (string, error) {
	promptChars := 0
	for _, msg := range messages {
		promptChars += len(msg.Content)
	}

	response, err := l.inner.Generate(ctx, messages)
	if err != nil {
		slog.Error("LLM generation failed", "backend", l.inner.Description(), "turns", len(messages), "error", err)
		return "", err
	}

	l.mu.Lock()
	l.calls++
	l.usage.PromptTokens += (promptChars + 3) / 4
	l.usage.CompletionTokens += (len(response) + 3) / 4
	l.mu.Unlock()

	slog.Info("LLM exchange",
		"backend", l.inner.Description(),
		"turns", len(messages),
		"prompt_chars", promptChars,
		"response_chars", len(response))

	return response, nil
}

func (l *LoggingClient) Description() string {
	return l.inner.Description()
}

// Usage returns the accumulated approximate token usage and call count.
func (l *LoggingClient) Usage() (TokenUsage, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.usage, l.calls
}
