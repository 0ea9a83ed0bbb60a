package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Deck is a named collection of flashcards owned by a single user. Decks are
// hard-deleted: the unique (user_id, name) index must stay free for a deck of
// the same name to be recreated after a delete or reset.
type Deck struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    string    `gorm:"type:uuid;not null;index:idx_decks_user_name,unique" json:"user_id"`
	Name      string    `gorm:"not null;index:idx_decks_user_name,unique" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relationships
	User  User   `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Cards []Card `gorm:"foreignKey:DeckID" json:"cards,omitempty"`
}

func (d *Deck) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

// Card is a single question/answer flashcard. State mirrors the scheduling
// buckets of the Anki data model, flag the color markers. Like decks, cards
// are hard-deleted.
type Card struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	DeckID    string    `gorm:"type:uuid;not null;index" json:"deck_id"`
	Question  string    `gorm:"type:text;not null" json:"question"`
	Answer    string    `gorm:"type:text;not null" json:"answer"`
	State     string    `gorm:"not null;default:'new';check:state IN ('new', 'learning', 'review', 'buried', 'suspended')" json:"state"`
	Flag      string    `gorm:"not null;default:'none';check:flag IN ('none', 'red', 'orange', 'green', 'blue', 'pink', 'turquoise', 'purple')" json:"flag"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relationships
	Deck Deck `gorm:"foreignKey:DeckID" json:"deck,omitempty"`
}

func (c *Card) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
