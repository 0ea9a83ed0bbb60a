package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/curatorlabs/curator/models"
	"github.com/curatorlabs/curator/repository"
	"github.com/curatorlabs/curator/srs"
)

// DatabaseSeeder populates a fresh database with a demo user and a starter
// deck so a new deployment has something to show.
type DatabaseSeeder struct {
	repo  *repository.GORMRepository
	store *srs.Store
}

func NewDatabaseSeeder(repo *repository.GORMRepository, store *srs.Store) *DatabaseSeeder {
	return &DatabaseSeeder{repo: repo, store: store}
}

type starterCard struct {
	question string
	answer   string
}

var starterCards = []starterCard{
	{
		question: "How do I create a new deck?",
		answer:   "Say or type something like \"create a deck called Biology\".",
	},
	{
		question: "How do I add a flashcard?",
		answer:   "Ask for it in plain language, for example \"add a card to Biology asking what mitochondria do\".",
	},
	{
		question: "How do I get my cards into Anki?",
		answer:   "Export your collection as an .apkg package and import it in Anki.",
	},
	{
		question: "Can I make cards from a PDF?",
		answer:   "Yes, upload a PDF and cards are generated from its pages.",
	},
}

// SeedDatabase creates the demo account and starter deck. It is idempotent
// and safe to run on every startup.
func (s *DatabaseSeeder) SeedDatabase(ctx context.Context) error {
	existing, err := s.repo.GetUserByName(ctx, "demo")
	if err != nil {
		return fmt.Errorf("failed to check demo user: %w", err)
	}
	if existing != nil {
		slog.Info("Database seeding already completed, skipping")
		return nil
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("demo"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Name:     "demo",
		Email:    "demo@example.com",
		Password: string(hashedPassword),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("failed to create demo user: %w", err)
	}
	slog.Info("Created demo user", "user_id", user.ID)

	deck, err := s.store.AddDeck(ctx, user.ID, "Getting Started")
	if err != nil {
		if errors.Is(err, srs.ErrDeckExists) {
			return nil
		}
		return fmt.Errorf("failed to create starter deck: %w", err)
	}

	for _, card := range starterCards {
		if _, err := s.store.AddCard(ctx, user.ID, deck.ID, card.question, card.answer, srs.StateNew, srs.FlagNone); err != nil {
			slog.Error("Failed to seed starter card", "error", err, "question", card.question)
		}
	}

	slog.Info("Database seeding completed", "deck_id", deck.ID, "cards", len(starterCards))
	return nil
}
