package llm

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiClient generates text through the hosted Gemini API.
type GeminiClient struct {
	genaiClient *genai.Client
	model       string
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if model == "" {
		model = DefaultGeminiModel
	}

	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiClient{
		genaiClient: genaiClient,
		model:       model,
	}, nil
}

func (g *GeminiClient) Generate(ctx context.Context, messages []Message) (string, error) {
	if g.genaiClient == nil {
		return "", fmt.Errorf("genai client not initialized")
	}

	var config *genai.GenerateContentConfig
	var contents []*genai.Content

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			config = &genai.GenerateContentConfig{
				SystemInstruction: genai.NewContentFromText(msg.Content, genai.RoleUser),
			}
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}

	if len(contents) == 0 {
		return "", fmt.Errorf("no user content to generate from")
	}

	result, err := g.genaiClient.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}

	response := result.Text()
	slog.Info("Generated Gemini response", "model", g.model, "turns", len(messages), "response_length", len(response))

	return response, nil
}

func (g *GeminiClient) Description() string {
	return fmt.Sprintf("Gemini API (%s)", g.model)
}
