package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/curatorlabs/curator/models"
	"gorm.io/gorm"
)

type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// SaveMessage saves a conversation turn to the database using GORM
func (r *ConversationRepository) SaveMessage(ctx context.Context, message *models.ChatMessage) error {
	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		slog.Error("Failed to save chat message", "error", err, "user_id", message.UserID)
		return fmt.Errorf("failed to save chat message: %w", err)
	}

	slog.Info("Chat message saved", "message_id", message.ID, "user_id", message.UserID, "sender", message.Sender)
	return nil
}

// GetConversationHistory retrieves the most recent conversation turns,
// oldest first.
func (r *ConversationRepository) GetConversationHistory(ctx context.Context, userID string, limit int) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage

	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit)

	if err := query.Find(&messages).Error; err != nil {
		slog.Error("Failed to get conversation history", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}

	// Reverse into chronological order for prompt building.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// DeleteUserMessages deletes the conversation history of a user
func (r *ConversationRepository) DeleteUserMessages(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.ChatMessage{}).Error; err != nil {
		slog.Error("Failed to delete user messages", "error", err, "user_id", userID)
		return fmt.Errorf("failed to delete user messages: %w", err)
	}

	slog.Info("User messages deleted", "user_id", userID)
	return nil
}

// SaveSRSAction appends one line to the user's flashcard action log
func (r *ConversationRepository) SaveSRSAction(ctx context.Context, action *models.SRSAction) error {
	if err := r.db.WithContext(ctx).Create(action).Error; err != nil {
		slog.Error("Failed to save SRS action", "error", err, "user_id", action.UserID)
		return fmt.Errorf("failed to save SRS action: %w", err)
	}
	return nil
}

// GetRecentSRSActions returns the latest action log lines, newest first.
func (r *ConversationRepository) GetRecentSRSActions(ctx context.Context, userID string, limit int) ([]models.SRSAction, error) {
	var actions []models.SRSAction

	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&actions).Error; err != nil {
		slog.Error("Failed to get SRS actions", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to get SRS actions: %w", err)
	}

	return actions, nil
}

// Stats returns conversation statistics for a user
func (r *ConversationRepository) Stats(ctx context.Context, userID string) (map[string]interface{}, error) {
	var totalMessages int64
	if err := r.db.WithContext(ctx).
		Model(&models.ChatMessage{}).
		Where("user_id = ?", userID).
		Count(&totalMessages).Error; err != nil {
		slog.Error("Failed to count chat messages", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to count chat messages: %w", err)
	}

	var totalActions int64
	if err := r.db.WithContext(ctx).
		Model(&models.SRSAction{}).
		Where("user_id = ?", userID).
		Count(&totalActions).Error; err != nil {
		slog.Error("Failed to count SRS actions", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to count SRS actions: %w", err)
	}

	var lastMessage models.ChatMessage
	var lastActivity interface{}
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		First(&lastMessage).Error; err != nil {
		if err != gorm.ErrRecordNotFound {
			slog.Error("Failed to get last activity", "error", err, "user_id", userID)
			return nil, fmt.Errorf("failed to get last activity: %w", err)
		}
	} else {
		lastActivity = lastMessage.CreatedAt
	}

	return map[string]interface{}{
		"total_messages": totalMessages,
		"total_actions":  totalActions,
		"last_activity":  lastActivity,
	}, nil
}
