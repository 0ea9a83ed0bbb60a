package asr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.5-flash"

const transcriptionPrompt = "Transcribe this audio to text. Provide only the transcript, no additional commentary. " +
	"If the audio contains no clear speech, respond with an empty message."

// GeminiTranscriber transcribes audio batches through the Gemini API using
// inline audio data.
type GeminiTranscriber struct {
	genaiClient *genai.Client
	model       string
}

func NewGeminiTranscriber(ctx context.Context, apiKey, model string) (*GeminiTranscriber, error) {
	if model == "" {
		model = DefaultGeminiModel
	}

	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiTranscriber{
		genaiClient: genaiClient,
		model:       model,
	}, nil
}

func (g *GeminiTranscriber) TranscribePCM(ctx context.Context, pcm []byte) (string, error) {
	if g.genaiClient == nil {
		return "", fmt.Errorf("genai client not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	parts := []*genai.Part{
		genai.NewPartFromText(transcriptionPrompt),
		{
			InlineData: &genai.Blob{
				MIMEType: "audio/wav",
				Data:     EncodeWAV(pcm, SampleRate),
			},
		},
	}

	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	result, err := g.genaiClient.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate transcript: %w", err)
	}

	transcript := strings.TrimSpace(result.Text())
	slog.Info("Audio transcribed", "model", g.model, "pcm_bytes", len(pcm), "transcript_length", len(transcript))

	return transcript, nil
}

func (g *GeminiTranscriber) Description() string {
	return fmt.Sprintf("Gemini ASR (%s)", g.model)
}
