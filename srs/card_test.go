package srs

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/curatorlabs/curator/models"
)

func TestValidState(t *testing.T) {
	for _, state := range []string{StateNew, StateLearning, StateReview, StateBuried, StateSuspended} {
		assert.True(t, ValidState(state), state)
	}
	assert.False(t, ValidState("due"))
	assert.False(t, ValidState(""))
	assert.False(t, ValidState("New"))
}

func TestValidFlag(t *testing.T) {
	for _, flag := range []string{FlagNone, FlagRed, FlagOrange, FlagGreen, FlagBlue, FlagPink, FlagTurquoise, FlagPurple} {
		assert.True(t, ValidFlag(flag), flag)
	}
	assert.False(t, ValidFlag("yellow"))
	assert.False(t, ValidFlag(""))
}

func TestFormatCard(t *testing.T) {
	card := &models.Card{
		ID:       "card-1",
		DeckID:   "deck-1",
		Question: "What is ATP?",
		Answer:   "Adenosine triphosphate.",
		State:    StateNew,
		Flag:     FlagNone,
	}

	formatted := FormatCard(card)
	assert.Contains(t, formatted, "card-1")
	assert.Contains(t, formatted, "deck-1")
	assert.Contains(t, formatted, "Q: What is ATP?")
	assert.Contains(t, formatted, "A: Adenosine triphosphate.")
	assert.Contains(t, formatted, "state: new")
}

func TestFormatDeck(t *testing.T) {
	deck := &models.Deck{ID: "deck-1", Name: "Biology"}
	assert.Equal(t, "Deck 'Biology' (id: deck-1, cards: 4)", FormatDeck(deck, 4))
}
