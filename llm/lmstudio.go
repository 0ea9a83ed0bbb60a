package llm

import (
	"context"
	"fmt"
	"log/slog"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

const (
	DefaultLMStudioBaseURL = "http://localhost:1234/v1"
	DefaultLMStudioModel   = "meta-llama-3.1-8b-instruct"

	lmStudioTemperature = 0.7
	lmStudioMaxTokens   = 2048
)

// LMStudioClient generates text through a locally running LM Studio server
// speaking the OpenAI chat completions protocol.
type LMStudioClient struct {
	client oai.Client
	model  string
}

func NewLMStudioClient(baseURL, model string) *LMStudioClient {
	if baseURL == "" {
		baseURL = DefaultLMStudioBaseURL
	}
	if model == "" {
		model = DefaultLMStudioModel
	}

	client := oai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey("lm-studio"), // LM Studio accepts any key
	)

	return &LMStudioClient{
		client: client,
		model:  model,
	}
}

func (l *LMStudioClient) Generate(ctx context.Context, messages []Message) (string, error) {
	var oaiMessages []oai.ChatCompletionMessageParamUnion
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			oaiMessages = append(oaiMessages, oai.SystemMessage(msg.Content))
		case RoleAssistant:
			oaiMessages = append(oaiMessages, oai.AssistantMessage(msg.Content))
		case RoleUser:
			oaiMessages = append(oaiMessages, oai.UserMessage(msg.Content))
		default:
			return "", fmt.Errorf("unknown message role %q", msg.Role)
		}
	}

	params := oai.ChatCompletionNewParams{
		Model:       shared.ChatModel(l.model),
		Messages:    oaiMessages,
		Temperature: param.NewOpt(lmStudioTemperature),
		MaxTokens:   param.NewOpt(int64(lmStudioMaxTokens)),
	}

	resp, err := l.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to generate completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty choices in completion response")
	}

	response := resp.Choices[0].Message.Content
	slog.Info("Generated LM Studio response",
		"model", l.model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	return response, nil
}

func (l *LMStudioClient) Description() string {
	return fmt.Sprintf("LM Studio (%s)", l.model)
}
