package srs

import (
	"fmt"

	"github.com/curatorlabs/curator/models"
)

// Card scheduling states, mirroring the Anki queue buckets.
const (
	StateNew       = "new"
	StateLearning  = "learning"
	StateReview    = "review"
	StateBuried    = "buried"
	StateSuspended = "suspended"
)

// Card color flags as used by Anki.
const (
	FlagNone      = "none"
	FlagRed       = "red"
	FlagOrange    = "orange"
	FlagGreen     = "green"
	FlagBlue      = "blue"
	FlagPink      = "pink"
	FlagTurquoise = "turquoise"
	FlagPurple    = "purple"
)

var validStates = map[string]bool{
	StateNew:       true,
	StateLearning:  true,
	StateReview:    true,
	StateBuried:    true,
	StateSuspended: true,
}

var validFlags = map[string]bool{
	FlagNone:      true,
	FlagRed:       true,
	FlagOrange:    true,
	FlagGreen:     true,
	FlagBlue:      true,
	FlagPink:      true,
	FlagTurquoise: true,
	FlagPurple:    true,
}

// ValidState reports whether s names a known card state.
func ValidState(s string) bool {
	return validStates[s]
}

// ValidFlag reports whether f names a known card flag.
func ValidFlag(f string) bool {
	return validFlags[f]
}

// FormatCard renders a card the way it is shown to the assistant model.
func FormatCard(card *models.Card) string {
	return fmt.Sprintf("Card (id: %s, deck: %s, state: %s, flag: %s)\nQ: %s\nA: %s",
		card.ID, card.DeckID, card.State, card.Flag, card.Question, card.Answer)
}

// FormatDeck renders a deck the way it is shown to the assistant model.
func FormatDeck(deck *models.Deck, cardCount int64) string {
	return fmt.Sprintf("Deck '%s' (id: %s, cards: %d)", deck.Name, deck.ID, cardCount)
}
