package srs

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curatorlabs/curator/models"
)

func TestStateToAnkiRoundTrip(t *testing.T) {
	for state := range validStates {
		cardType, queue := stateToAnki(state)
		assert.Equal(t, state, ankiToState(cardType, queue), "state %s", state)
	}
}

func TestStateToAnki(t *testing.T) {
	tests := []struct {
		state    string
		cardType int
		queue    int
	}{
		{StateNew, 0, 0},
		{StateLearning, 1, 1},
		{StateReview, 2, 2},
		{StateBuried, 2, -2},
		{StateSuspended, 2, -1},
		{"bogus", 0, 0},
	}

	for _, tt := range tests {
		cardType, queue := stateToAnki(tt.state)
		assert.Equal(t, tt.cardType, cardType, "state %s", tt.state)
		assert.Equal(t, tt.queue, queue, "state %s", tt.state)
	}
}

func TestAnkiToState(t *testing.T) {
	tests := []struct {
		name     string
		cardType int
		queue    int
		expected string
	}{
		{"New card", 0, 0, StateNew},
		{"Learning", 1, 1, StateLearning},
		{"Relearning", 3, 1, StateLearning},
		{"Review", 2, 2, StateReview},
		{"Suspended wins over type", 2, -1, StateSuspended},
		{"User buried", 2, -2, StateBuried},
		{"Scheduler buried", 2, -3, StateBuried},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ankiToState(tt.cardType, tt.queue))
		})
	}
}

func TestFlagMappingsRoundTrip(t *testing.T) {
	assert.Len(t, flagToAnki, len(validFlags))
	for flag, n := range flagToAnki {
		assert.Equal(t, flag, ankiToFlag[n], "flag %s", flag)
	}
}

func TestNoteGUIDStable(t *testing.T) {
	id := "0b7e2f4a-1d52-4c1e-9f0a-6a2b3c4d5e6f"
	guid := noteGUID(id)

	assert.Len(t, guid, 10)
	assert.NotContains(t, guid, "-")
	assert.Equal(t, guid, noteGUID(id))
	assert.NotEqual(t, guid, noteGUID("1c8f3a5b-2e63-4d2f-8a1b-7b3c4d5e6f70"))
}

func TestFieldChecksum(t *testing.T) {
	assert.Equal(t, fieldChecksum("hello"), fieldChecksum("hello"))
	assert.NotEqual(t, fieldChecksum("hello"), fieldChecksum("world"))
	assert.GreaterOrEqual(t, fieldChecksum(""), int64(0))
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _, userID := newTestStore(t)

	biology, err := store.AddDeck(ctx, userID, "Biology")
	require.NoError(t, err)
	history, err := store.AddDeck(ctx, userID, "History")
	require.NoError(t, err)

	_, err = store.AddCard(ctx, userID, biology.ID, "What does ATP stand for?", "Adenosine triphosphate", StateNew, FlagNone)
	require.NoError(t, err)
	_, err = store.AddCard(ctx, userID, biology.ID, "Powerhouse of the cell?", "Mitochondria", StateReview, FlagRed)
	require.NoError(t, err)
	_, err = store.AddCard(ctx, userID, history.ID, "Year of the moon landing?", "1969", StateSuspended, FlagBlue)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, ExportCollection(ctx, store, userID, &buf))

	// Reset then re-import, as a restore-from-backup does.
	require.NoError(t, store.Reset(ctx, userID))

	decks, cards, err := ImportCollection(ctx, store, userID, bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Equal(t, 2, decks)
	assert.Equal(t, 3, cards)

	importedBio, err := store.GetDeckByName(ctx, userID, "Biology")
	require.NoError(t, err)
	bioCards, err := store.CardsInDeck(ctx, userID, importedBio.ID)
	require.NoError(t, err)
	require.Len(t, bioCards, 2)

	states := map[string]string{}
	flags := map[string]string{}
	answers := map[string]string{}
	for i := range bioCards {
		states[bioCards[i].Question] = bioCards[i].State
		flags[bioCards[i].Question] = bioCards[i].Flag
		answers[bioCards[i].Question] = bioCards[i].Answer
	}
	assert.Equal(t, "Adenosine triphosphate", answers["What does ATP stand for?"])
	assert.Equal(t, StateNew, states["What does ATP stand for?"])
	assert.Equal(t, StateReview, states["Powerhouse of the cell?"])
	assert.Equal(t, FlagRed, flags["Powerhouse of the cell?"])

	importedHist, err := store.GetDeckByName(ctx, userID, "History")
	require.NoError(t, err)
	histCards, err := store.CardsInDeck(ctx, userID, importedHist.ID)
	require.NoError(t, err)
	require.Len(t, histCards, 1)
	assert.Equal(t, StateSuspended, histCards[0].State)
	assert.Equal(t, FlagBlue, histCards[0].Flag)
}

func TestExportDeckOnlyPackagesThatDeck(t *testing.T) {
	ctx := context.Background()
	store, db, userID := newTestStore(t)

	biology, err := store.AddDeck(ctx, userID, "Biology")
	require.NoError(t, err)
	history, err := store.AddDeck(ctx, userID, "History")
	require.NoError(t, err)
	_, err = store.AddCard(ctx, userID, biology.ID, "Q1", "A1", StateNew, FlagNone)
	require.NoError(t, err)
	_, err = store.AddCard(ctx, userID, history.ID, "Q2", "A2", StateNew, FlagNone)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, ExportDeck(ctx, store, userID, "Biology", &buf))

	other := &models.User{Name: "importer"}
	require.NoError(t, db.Create(other).Error)

	decks, cards, err := ImportCollection(ctx, store, other.ID, bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Equal(t, 1, decks)
	assert.Equal(t, 1, cards)

	_, err = store.GetDeckByName(ctx, other.ID, "History")
	assert.ErrorIs(t, err, ErrDeckNotFound)
}

func TestImportMergesIntoExistingDeck(t *testing.T) {
	ctx := context.Background()
	store, _, userID := newTestStore(t)

	biology, err := store.AddDeck(ctx, userID, "Biology")
	require.NoError(t, err)
	_, err = store.AddCard(ctx, userID, biology.ID, "Q1", "A1", StateNew, FlagNone)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, ExportCollection(ctx, store, userID, &buf))

	// Importing without a reset appends into the deck of the same name.
	_, cards, err := ImportCollection(ctx, store, userID, bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Equal(t, 1, cards)

	count, err := store.CountCardsInDeck(ctx, biology.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestSplitNoteFields(t *testing.T) {
	q, a := splitNoteFields("front\x1fback")
	assert.Equal(t, "front", q)
	assert.Equal(t, "back", a)

	q, a = splitNoteFields("only front")
	assert.Equal(t, "only front", q)
	assert.Equal(t, "", a)

	q, a = splitNoteFields("a\x1fb\x1fc")
	assert.Equal(t, "a", q)
	assert.Equal(t, "b", a)
}
