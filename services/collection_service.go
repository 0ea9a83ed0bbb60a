package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/curatorlabs/curator/models"
	"github.com/curatorlabs/curator/srs"
)

// CollectionService handles whole-collection operations: export and import
// of .apkg packages and full resets.
type CollectionService struct {
	store *srs.Store
	files *FileStore
}

func NewCollectionService(store *srs.Store, files *FileStore) *CollectionService {
	return &CollectionService{store: store, files: files}
}

// Export packages the user's collection and stores it for download. When
// deckName is set only that deck is exported.
func (c *CollectionService) Export(ctx context.Context, userID, deckName string) (*models.PackageFile, error) {
	var buf bytes.Buffer
	name := fmt.Sprintf("collection-%s.apkg", time.Now().Format("2006-01-02"))

	if deckName != "" {
		if err := srs.ExportDeck(ctx, c.store, userID, deckName, &buf); err != nil {
			return nil, fmt.Errorf("failed to export deck: %w", err)
		}
		name = fmt.Sprintf("%s-%s.apkg", deckName, time.Now().Format("2006-01-02"))
	} else if err := srs.ExportCollection(ctx, c.store, userID, &buf); err != nil {
		return nil, fmt.Errorf("failed to export collection: %w", err)
	}

	file, err := c.files.Save(ctx, userID, name, buf.Bytes())
	if err != nil {
		return nil, err
	}

	slog.Info("Collection exported", "user_id", userID, "deck", deckName, "file_id", file.ID, "size", file.Size)
	return file, nil
}

// Import merges a raw .apkg payload into the user's collection.
func (c *CollectionService) Import(ctx context.Context, userID string, data []byte) (int, int, error) {
	decks, cards, err := srs.ImportCollection(ctx, c.store, userID, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to import collection: %w", err)
	}

	slog.Info("Collection imported", "user_id", userID, "decks", decks, "cards", cards)
	return decks, cards, nil
}

// ImportFile imports a previously uploaded package by its file id.
func (c *CollectionService) ImportFile(ctx context.Context, userID, fileID string) (int, int, error) {
	_, f, err := c.files.Open(ctx, userID, fileID)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read package file: %w", err)
	}
	return c.Import(ctx, userID, data)
}

// Reset deletes every deck and card of the user.
func (c *CollectionService) Reset(ctx context.Context, userID string) error {
	if err := c.store.Reset(ctx, userID); err != nil {
		return err
	}
	slog.Info("Collection reset", "user_id", userID)
	return nil
}

// DeckSummary is the deck listing payload for clients.
type DeckSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CardCount int64  `json:"card_count"`
}

// Decks returns every deck of the user with card counts.
func (c *CollectionService) Decks(ctx context.Context, userID string) ([]DeckSummary, error) {
	decks, err := c.store.ListDecks(ctx, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]DeckSummary, 0, len(decks))
	for i := range decks {
		count, err := c.store.CountCardsInDeck(ctx, decks[i].ID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, DeckSummary{
			ID:        decks[i].ID,
			Name:      decks[i].Name,
			CardCount: count,
		})
	}
	return summaries, nil
}
