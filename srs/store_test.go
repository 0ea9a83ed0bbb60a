package srs

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/curatorlabs/curator/models"
	"github.com/curatorlabs/curator/repository"
)

func newTestStore(t *testing.T) (*Store, *gorm.DB, string) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "curator.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Deck{}, &models.Card{}))

	user := &models.User{Name: "tester"}
	require.NoError(t, db.Create(user).Error)

	return NewStore(repository.NewSRSRepository(db)), db, user.ID
}

func TestAddDeckEnforcesUniqueName(t *testing.T) {
	ctx := context.Background()
	store, _, userID := newTestStore(t)

	_, err := store.AddDeck(ctx, userID, "Biology")
	require.NoError(t, err)

	_, err = store.AddDeck(ctx, userID, "Biology")
	assert.ErrorIs(t, err, ErrDeckExists)
}

func TestDeleteDeckFreesName(t *testing.T) {
	ctx := context.Background()
	store, _, userID := newTestStore(t)

	deck, err := store.AddDeck(ctx, userID, "Biology")
	require.NoError(t, err)
	_, err = store.AddCard(ctx, userID, deck.ID, "Q", "A", StateNew, FlagNone)
	require.NoError(t, err)

	require.NoError(t, store.DeleteDeck(ctx, userID, deck.ID))

	// The name must be reusable right away.
	fresh, err := store.AddDeck(ctx, userID, "Biology")
	require.NoError(t, err)
	assert.NotEqual(t, deck.ID, fresh.ID)

	count, err := store.CountCardsInDeck(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestResetFreesDeckNames(t *testing.T) {
	ctx := context.Background()
	store, _, userID := newTestStore(t)

	for _, name := range []string{"Biology", "History"} {
		deck, err := store.AddDeck(ctx, userID, name)
		require.NoError(t, err)
		_, err = store.AddCard(ctx, userID, deck.ID, "Q "+name, "A "+name, StateNew, FlagNone)
		require.NoError(t, err)
	}

	require.NoError(t, store.Reset(ctx, userID))

	cards, err := store.AllCards(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, cards)

	// A reset followed by recreating the same decks, as a re-import does.
	for _, name := range []string{"Biology", "History"} {
		_, err := store.AddDeck(ctx, userID, name)
		require.NoError(t, err, name)
	}
}

func TestRenameDeckConflict(t *testing.T) {
	ctx := context.Background()
	store, _, userID := newTestStore(t)

	_, err := store.AddDeck(ctx, userID, "Biology")
	require.NoError(t, err)
	history, err := store.AddDeck(ctx, userID, "History")
	require.NoError(t, err)

	_, err = store.RenameDeck(ctx, userID, history.ID, "Biology")
	assert.ErrorIs(t, err, ErrDeckExists)

	renamed, err := store.RenameDeck(ctx, userID, history.ID, "World History")
	require.NoError(t, err)
	assert.Equal(t, "World History", renamed.Name)
}

func TestMoveCard(t *testing.T) {
	ctx := context.Background()
	store, _, userID := newTestStore(t)

	src, err := store.AddDeck(ctx, userID, "Inbox")
	require.NoError(t, err)
	dst, err := store.AddDeck(ctx, userID, "Biology")
	require.NoError(t, err)
	card, err := store.AddCard(ctx, userID, src.ID, "Q", "A", StateReview, FlagRed)
	require.NoError(t, err)

	moved, err := store.MoveCard(ctx, userID, card.ID, dst.ID)
	require.NoError(t, err)
	assert.Equal(t, card.ID, moved.ID)
	assert.Equal(t, dst.ID, moved.DeckID)

	srcCount, err := store.CountCardsInDeck(ctx, src.ID)
	require.NoError(t, err)
	assert.Zero(t, srcCount)
	dstCount, err := store.CountCardsInDeck(ctx, dst.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, dstCount)
}

func TestCopyCard(t *testing.T) {
	ctx := context.Background()
	store, _, userID := newTestStore(t)

	src, err := store.AddDeck(ctx, userID, "Inbox")
	require.NoError(t, err)
	dst, err := store.AddDeck(ctx, userID, "Biology")
	require.NoError(t, err)
	card, err := store.AddCard(ctx, userID, src.ID, "Q", "A", StateReview, FlagRed)
	require.NoError(t, err)

	copied, err := store.CopyCard(ctx, userID, card.ID, dst.ID)
	require.NoError(t, err)
	assert.NotEqual(t, card.ID, copied.ID)
	assert.Equal(t, dst.ID, copied.DeckID)
	assert.Equal(t, card.Question, copied.Question)
	assert.Equal(t, card.State, copied.State)
	assert.Equal(t, card.Flag, copied.Flag)

	srcCount, err := store.CountCardsInDeck(ctx, src.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, srcCount)
}

func TestDeleteCard(t *testing.T) {
	ctx := context.Background()
	store, _, userID := newTestStore(t)

	deck, err := store.AddDeck(ctx, userID, "Biology")
	require.NoError(t, err)
	card, err := store.AddCard(ctx, userID, deck.ID, "Q", "A", StateNew, FlagNone)
	require.NoError(t, err)

	require.NoError(t, store.DeleteCard(ctx, userID, card.ID))

	_, err = store.GetCard(ctx, userID, card.ID)
	assert.ErrorIs(t, err, ErrCardNotFound)
}

func TestAddCardValidation(t *testing.T) {
	ctx := context.Background()
	store, _, userID := newTestStore(t)

	deck, err := store.AddDeck(ctx, userID, "Biology")
	require.NoError(t, err)

	_, err = store.AddCard(ctx, userID, deck.ID, "Q", "A", "snoozed", FlagNone)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = store.AddCard(ctx, userID, deck.ID, "Q", "A", StateNew, "magenta")
	assert.ErrorIs(t, err, ErrInvalidFlag)

	// Empty state and flag fall back to defaults.
	card, err := store.AddCard(ctx, userID, deck.ID, "Q", "A", "", "")
	require.NoError(t, err)
	assert.Equal(t, StateNew, card.State)
	assert.Equal(t, FlagNone, card.Flag)
}

func TestDecksAreScopedPerUser(t *testing.T) {
	ctx := context.Background()
	store, db, userID := newTestStore(t)

	other := &models.User{Name: "someone-else"}
	require.NoError(t, db.Create(other).Error)

	deck, err := store.AddDeck(ctx, userID, "Biology")
	require.NoError(t, err)

	// Another user can hold the same deck name and cannot see this one.
	_, err = store.AddDeck(ctx, other.ID, "Biology")
	require.NoError(t, err)

	_, err = store.GetDeck(ctx, other.ID, deck.ID)
	assert.ErrorIs(t, err, ErrDeckNotFound)
}
