package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/curatorlabs/curator/asr"
	"github.com/curatorlabs/curator/assistant"
	"github.com/curatorlabs/curator/llm"
	"github.com/curatorlabs/curator/models"
	"github.com/curatorlabs/curator/repository"
	"github.com/curatorlabs/curator/srs"
)

// ActionService runs user requests through the assistant: it persists the
// conversation, builds the command environment and reports the outcome.
type ActionService struct {
	convRepo       *repository.ConversationRepository
	store          *srs.Store
	client         llm.Client
	transcriber    asr.Transcriber
	fuzzyThreshold float64
	historyLimit   int
}

func NewActionService(
	convRepo *repository.ConversationRepository,
	store *srs.Store,
	client llm.Client,
	transcriber asr.Transcriber,
	fuzzyThreshold float64,
	historyLimit int,
) *ActionService {
	return &ActionService{
		convRepo:       convRepo,
		store:          store,
		client:         client,
		transcriber:    transcriber,
		fuzzyThreshold: fuzzyThreshold,
		historyLimit:   historyLimit,
	}
}

// HandleTask executes one transcribed user request.
func (a *ActionService) HandleTask(ctx context.Context, user *models.User, transcription string, progress assistant.ProgressFunc) (*assistant.Result, error) {
	transcription = strings.TrimSpace(transcription)
	if transcription == "" {
		return nil, fmt.Errorf("empty task")
	}

	if err := a.convRepo.SaveMessage(ctx, &models.ChatMessage{
		UserID:  user.ID,
		Sender:  "user",
		Content: transcription,
	}); err != nil {
		return nil, err
	}

	env := &assistant.Env{
		UserID:         user.ID,
		Store:          a.store,
		Judge:          a.client,
		FuzzyThreshold: a.fuzzyThreshold,
		Progress:       progress,
		LogAction: func(description string) {
			if err := a.convRepo.SaveSRSAction(ctx, &models.SRSAction{
				UserID:      user.ID,
				Description: description,
			}); err != nil {
				slog.Error("Failed to log SRS action", "error", err, "user_id", user.ID)
			}
		},
	}

	task, err := a.buildTask(ctx, user.ID, transcription)
	if err != nil {
		return nil, err
	}

	executor := assistant.NewExecutor(env, a.client)
	result, err := executor.Execute(ctx, task)
	if err != nil {
		return nil, err
	}

	if reply := a.replyText(result); reply != "" {
		if err := a.convRepo.SaveMessage(ctx, &models.ChatMessage{
			UserID:  user.ID,
			Sender:  "assistant",
			Content: reply,
		}); err != nil {
			slog.Error("Failed to save assistant reply", "error", err, "user_id", user.ID)
		}
	}

	return result, nil
}

// HandleAudioTask transcribes an audio recording and executes it as a task.
func (a *ActionService) HandleAudioTask(ctx context.Context, user *models.User, audio []byte, progress assistant.ProgressFunc) (*assistant.Result, string, error) {
	if a.transcriber == nil {
		return nil, "", fmt.Errorf("no transcriber configured")
	}

	transcription, err := a.transcriber.TranscribePCM(ctx, audio)
	if err != nil {
		return nil, "", fmt.Errorf("failed to transcribe audio: %w", err)
	}
	if strings.TrimSpace(transcription) == "" {
		return nil, "", fmt.Errorf("no speech recognized in audio")
	}

	result, err := a.HandleTask(ctx, user, transcription, progress)
	return result, transcription, err
}

// NewConversation clears the user's chat history so the next task starts
// from a blank context.
func (a *ActionService) NewConversation(ctx context.Context, userID string) error {
	return a.convRepo.DeleteUserMessages(ctx, userID)
}

// buildTask prefixes the request with recent conversation context so the
// model can resolve references like "that deck".
func (a *ActionService) buildTask(ctx context.Context, userID, transcription string) (string, error) {
	history, err := a.convRepo.GetConversationHistory(ctx, userID, a.historyLimit)
	if err != nil {
		return "", err
	}

	// The current request is already persisted; keep only what preceded it.
	if len(history) > 0 {
		history = history[:len(history)-1]
	}
	actions, err := a.convRepo.GetRecentSRSActions(ctx, userID, 5)
	if err != nil {
		return "", err
	}

	if len(history) == 0 && len(actions) == 0 {
		return transcription, nil
	}

	var sb strings.Builder
	if len(history) > 0 {
		sb.WriteString("Recent conversation for context:\n")
		for _, msg := range history {
			fmt.Fprintf(&sb, "%s: %s\n", msg.Sender, msg.Content)
		}
		sb.WriteString("\n")
	}
	if len(actions) > 0 {
		sb.WriteString("Recent collection changes:\n")
		for _, action := range actions {
			fmt.Fprintf(&sb, "- %s\n", action.Description)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Current request: ")
	sb.WriteString(transcription)
	return sb.String(), nil
}

func (a *ActionService) replyText(result *assistant.Result) string {
	switch {
	case result.QuestionAnswer != "" && result.TaskFinishMessage != "":
		return result.QuestionAnswer + "\n" + result.TaskFinishMessage
	case result.QuestionAnswer != "":
		return result.QuestionAnswer
	default:
		return result.TaskFinishMessage
	}
}
