package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/curatorlabs/curator/models"
	"gorm.io/gorm"
)

// SRSRepository holds the deck and card tables behind the flashcard store.
type SRSRepository struct {
	db *gorm.DB
}

func NewSRSRepository(db *gorm.DB) *SRSRepository {
	return &SRSRepository{db: db}
}

// Deck operations

func (r *SRSRepository) CreateDeck(ctx context.Context, deck *models.Deck) error {
	if err := r.db.WithContext(ctx).Create(deck).Error; err != nil {
		slog.Error("Failed to create deck", "error", err, "name", deck.Name)
		return fmt.Errorf("failed to create deck: %w", err)
	}
	slog.Info("Deck created", "deck_id", deck.ID, "name", deck.Name, "user_id", deck.UserID)
	return nil
}

func (r *SRSRepository) GetDeckByID(ctx context.Context, userID, deckID string) (*models.Deck, error) {
	var deck models.Deck
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", deckID, userID).First(&deck).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get deck by ID", "error", err, "deck_id", deckID)
		return nil, fmt.Errorf("failed to get deck by ID: %w", err)
	}
	return &deck, nil
}

func (r *SRSRepository) GetDeckByName(ctx context.Context, userID, name string) (*models.Deck, error) {
	var deck models.Deck
	err := r.db.WithContext(ctx).Where("user_id = ? AND name = ?", userID, name).First(&deck).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get deck by name", "error", err, "name", name)
		return nil, fmt.Errorf("failed to get deck by name: %w", err)
	}
	return &deck, nil
}

func (r *SRSRepository) GetDecks(ctx context.Context, userID string) ([]models.Deck, error) {
	var decks []models.Deck
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("name").Find(&decks).Error; err != nil {
		slog.Error("Failed to get decks", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to get decks: %w", err)
	}
	return decks, nil
}

func (r *SRSRepository) UpdateDeck(ctx context.Context, deck *models.Deck) error {
	if err := r.db.WithContext(ctx).Save(deck).Error; err != nil {
		slog.Error("Failed to update deck", "error", err, "deck_id", deck.ID)
		return fmt.Errorf("failed to update deck: %w", err)
	}
	return nil
}

// DeleteDeck removes the deck and every card in it.
func (r *SRSRepository) DeleteDeck(ctx context.Context, deckID string) error {
	if err := r.db.WithContext(ctx).Where("deck_id = ?", deckID).Delete(&models.Card{}).Error; err != nil {
		slog.Error("Failed to delete cards of deck", "error", err, "deck_id", deckID)
		return fmt.Errorf("failed to delete cards of deck: %w", err)
	}
	if err := r.db.WithContext(ctx).Where("id = ?", deckID).Delete(&models.Deck{}).Error; err != nil {
		slog.Error("Failed to delete deck", "error", err, "deck_id", deckID)
		return fmt.Errorf("failed to delete deck: %w", err)
	}
	slog.Info("Deck deleted", "deck_id", deckID)
	return nil
}

// DeleteAllDecks removes every deck and card owned by the user.
func (r *SRSRepository) DeleteAllDecks(ctx context.Context, userID string) error {
	decks, err := r.GetDecks(ctx, userID)
	if err != nil {
		return err
	}
	for _, deck := range decks {
		if err := r.DeleteDeck(ctx, deck.ID); err != nil {
			return err
		}
	}
	slog.Info("All decks deleted", "user_id", userID, "count", len(decks))
	return nil
}

// Card operations

func (r *SRSRepository) CreateCard(ctx context.Context, card *models.Card) error {
	if err := r.db.WithContext(ctx).Create(card).Error; err != nil {
		slog.Error("Failed to create card", "error", err, "deck_id", card.DeckID)
		return fmt.Errorf("failed to create card: %w", err)
	}
	slog.Info("Card created", "card_id", card.ID, "deck_id", card.DeckID)
	return nil
}

// GetCardByID resolves a card and verifies ownership through its deck.
func (r *SRSRepository) GetCardByID(ctx context.Context, userID, cardID string) (*models.Card, error) {
	var card models.Card
	err := r.db.WithContext(ctx).
		Joins("JOIN decks ON decks.id = cards.deck_id").
		Where("cards.id = ? AND decks.user_id = ?", cardID, userID).
		First(&card).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get card by ID", "error", err, "card_id", cardID)
		return nil, fmt.Errorf("failed to get card by ID: %w", err)
	}
	return &card, nil
}

func (r *SRSRepository) GetCardsInDeck(ctx context.Context, deckID string) ([]models.Card, error) {
	var cards []models.Card
	err := r.db.WithContext(ctx).Where("deck_id = ?", deckID).Order("created_at").Find(&cards).Error
	if err != nil {
		slog.Error("Failed to get cards in deck", "error", err, "deck_id", deckID)
		return nil, fmt.Errorf("failed to get cards in deck: %w", err)
	}
	return cards, nil
}

// GetAllCards returns every card of the user across all decks.
func (r *SRSRepository) GetAllCards(ctx context.Context, userID string) ([]models.Card, error) {
	var cards []models.Card
	err := r.db.WithContext(ctx).
		Joins("JOIN decks ON decks.id = cards.deck_id").
		Where("decks.user_id = ?", userID).
		Order("cards.created_at").
		Find(&cards).Error
	if err != nil {
		slog.Error("Failed to get all cards", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to get all cards: %w", err)
	}
	return cards, nil
}

func (r *SRSRepository) UpdateCard(ctx context.Context, card *models.Card) error {
	if err := r.db.WithContext(ctx).Save(card).Error; err != nil {
		slog.Error("Failed to update card", "error", err, "card_id", card.ID)
		return fmt.Errorf("failed to update card: %w", err)
	}
	return nil
}

func (r *SRSRepository) DeleteCard(ctx context.Context, cardID string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", cardID).Delete(&models.Card{}).Error; err != nil {
		slog.Error("Failed to delete card", "error", err, "card_id", cardID)
		return fmt.Errorf("failed to delete card: %w", err)
	}
	slog.Info("Card deleted", "card_id", cardID)
	return nil
}

func (r *SRSRepository) CountCardsInDeck(ctx context.Context, deckID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Card{}).Where("deck_id = ?", deckID).Count(&count).Error
	if err != nil {
		slog.Error("Failed to count cards in deck", "error", err, "deck_id", deckID)
		return 0, fmt.Errorf("failed to count cards in deck: %w", err)
	}
	return count, nil
}
