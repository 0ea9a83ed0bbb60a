package srs

import (
	"context"
	"fmt"
	"sync"

	"github.com/curatorlabs/curator/models"
	"github.com/curatorlabs/curator/repository"
)

var (
	ErrDeckExists         = fmt.Errorf("deck already exists")
	ErrDeckNotFound       = fmt.Errorf("deck not found")
	ErrCardNotFound       = fmt.Errorf("card not found")
	ErrInvalidState       = fmt.Errorf("invalid card state")
	ErrInvalidFlag        = fmt.Errorf("invalid card flag")
	ErrCollectionNotFound = fmt.Errorf("temporary collection not found")
)

// TempCollection is a named, in-memory snapshot of card IDs. The assistant
// uses these to stage subsets of a collection, e.g. search results, without
// writing anything to the database.
type TempCollection struct {
	ID          string
	UserID      string
	Description string
	CardIDs     []string
}

// Store wraps the SRS repository with per-user deck and card operations and
// holds temporary collections. Temp collections do not survive a restart.
type Store struct {
	repo *repository.SRSRepository

	mu      sync.Mutex
	temps   map[string]*TempCollection
	tempSeq int
}

func NewStore(repo *repository.SRSRepository) *Store {
	return &Store{
		repo:  repo,
		temps: make(map[string]*TempCollection),
	}
}

// AddDeck creates a new deck for the user. Deck names are unique per user.
func (s *Store) AddDeck(ctx context.Context, userID, name string) (*models.Deck, error) {
	existing, err := s.repo.GetDeckByName(ctx, userID, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrDeckExists, name)
	}

	deck := &models.Deck{UserID: userID, Name: name}
	if err := s.repo.CreateDeck(ctx, deck); err != nil {
		return nil, err
	}
	return deck, nil
}

func (s *Store) GetDeck(ctx context.Context, userID, deckID string) (*models.Deck, error) {
	deck, err := s.repo.GetDeckByID(ctx, userID, deckID)
	if err != nil {
		return nil, err
	}
	if deck == nil {
		return nil, fmt.Errorf("%w: %s", ErrDeckNotFound, deckID)
	}
	return deck, nil
}

func (s *Store) GetDeckByName(ctx context.Context, userID, name string) (*models.Deck, error) {
	deck, err := s.repo.GetDeckByName(ctx, userID, name)
	if err != nil {
		return nil, err
	}
	if deck == nil {
		return nil, fmt.Errorf("%w: %s", ErrDeckNotFound, name)
	}
	return deck, nil
}

func (s *Store) ListDecks(ctx context.Context, userID string) ([]models.Deck, error) {
	return s.repo.GetDecks(ctx, userID)
}

// RenameDeck changes a deck's name, enforcing per-user uniqueness.
func (s *Store) RenameDeck(ctx context.Context, userID, deckID, newName string) (*models.Deck, error) {
	deck, err := s.GetDeck(ctx, userID, deckID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.GetDeckByName(ctx, userID, newName)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.ID != deck.ID {
		return nil, fmt.Errorf("%w: %s", ErrDeckExists, newName)
	}

	deck.Name = newName
	if err := s.repo.UpdateDeck(ctx, deck); err != nil {
		return nil, err
	}
	return deck, nil
}

// DeleteDeck removes a deck and all of its cards.
func (s *Store) DeleteDeck(ctx context.Context, userID, deckID string) error {
	if _, err := s.GetDeck(ctx, userID, deckID); err != nil {
		return err
	}
	return s.repo.DeleteDeck(ctx, deckID)
}

// Reset deletes every deck and card of the user and drops their temporary
// collections.
func (s *Store) Reset(ctx context.Context, userID string) error {
	if err := s.repo.DeleteAllDecks(ctx, userID); err != nil {
		return err
	}

	s.mu.Lock()
	for id, tc := range s.temps {
		if tc.UserID == userID {
			delete(s.temps, id)
		}
	}
	s.mu.Unlock()
	return nil
}

// AddCard creates a card in the given deck. Empty state or flag fall back to
// the defaults.
func (s *Store) AddCard(ctx context.Context, userID, deckID, question, answer, state, flag string) (*models.Card, error) {
	if _, err := s.GetDeck(ctx, userID, deckID); err != nil {
		return nil, err
	}

	if state == "" {
		state = StateNew
	}
	if flag == "" {
		flag = FlagNone
	}
	if !ValidState(state) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, state)
	}
	if !ValidFlag(flag) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFlag, flag)
	}

	card := &models.Card{
		DeckID:   deckID,
		Question: question,
		Answer:   answer,
		State:    state,
		Flag:     flag,
	}
	if err := s.repo.CreateCard(ctx, card); err != nil {
		return nil, err
	}
	return card, nil
}

func (s *Store) GetCard(ctx context.Context, userID, cardID string) (*models.Card, error) {
	card, err := s.repo.GetCardByID(ctx, userID, cardID)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, fmt.Errorf("%w: %s", ErrCardNotFound, cardID)
	}
	return card, nil
}

func (s *Store) CardsInDeck(ctx context.Context, userID, deckID string) ([]models.Card, error) {
	if _, err := s.GetDeck(ctx, userID, deckID); err != nil {
		return nil, err
	}
	return s.repo.GetCardsInDeck(ctx, deckID)
}

func (s *Store) AllCards(ctx context.Context, userID string) ([]models.Card, error) {
	return s.repo.GetAllCards(ctx, userID)
}

func (s *Store) EditCardQuestion(ctx context.Context, userID, cardID, question string) (*models.Card, error) {
	return s.editCard(ctx, userID, cardID, func(c *models.Card) error {
		c.Question = question
		return nil
	})
}

func (s *Store) EditCardAnswer(ctx context.Context, userID, cardID, answer string) (*models.Card, error) {
	return s.editCard(ctx, userID, cardID, func(c *models.Card) error {
		c.Answer = answer
		return nil
	})
}

func (s *Store) EditCardState(ctx context.Context, userID, cardID, state string) (*models.Card, error) {
	return s.editCard(ctx, userID, cardID, func(c *models.Card) error {
		if !ValidState(state) {
			return fmt.Errorf("%w: %s", ErrInvalidState, state)
		}
		c.State = state
		return nil
	})
}

func (s *Store) EditCardFlag(ctx context.Context, userID, cardID, flag string) (*models.Card, error) {
	return s.editCard(ctx, userID, cardID, func(c *models.Card) error {
		if !ValidFlag(flag) {
			return fmt.Errorf("%w: %s", ErrInvalidFlag, flag)
		}
		c.Flag = flag
		return nil
	})
}

func (s *Store) editCard(ctx context.Context, userID, cardID string, mutate func(*models.Card) error) (*models.Card, error) {
	card, err := s.GetCard(ctx, userID, cardID)
	if err != nil {
		return nil, err
	}
	if err := mutate(card); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateCard(ctx, card); err != nil {
		return nil, err
	}
	return card, nil
}

func (s *Store) DeleteCard(ctx context.Context, userID, cardID string) error {
	if _, err := s.GetCard(ctx, userID, cardID); err != nil {
		return err
	}
	return s.repo.DeleteCard(ctx, cardID)
}

// MoveCard moves a card into another deck owned by the same user.
func (s *Store) MoveCard(ctx context.Context, userID, cardID, targetDeckID string) (*models.Card, error) {
	if _, err := s.GetDeck(ctx, userID, targetDeckID); err != nil {
		return nil, err
	}
	return s.editCard(ctx, userID, cardID, func(c *models.Card) error {
		c.DeckID = targetDeckID
		return nil
	})
}

// CopyCard duplicates a card into another deck. The copy starts fresh with
// its own ID but keeps question, answer, state and flag.
func (s *Store) CopyCard(ctx context.Context, userID, cardID, targetDeckID string) (*models.Card, error) {
	card, err := s.GetCard(ctx, userID, cardID)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetDeck(ctx, userID, targetDeckID); err != nil {
		return nil, err
	}

	copied := &models.Card{
		DeckID:   targetDeckID,
		Question: card.Question,
		Answer:   card.Answer,
		State:    card.State,
		Flag:     card.Flag,
	}
	if err := s.repo.CreateCard(ctx, copied); err != nil {
		return nil, err
	}
	return copied, nil
}

func (s *Store) CountCardsInDeck(ctx context.Context, deckID string) (int64, error) {
	return s.repo.CountCardsInDeck(ctx, deckID)
}

// CreateTempCollection stages a set of card IDs under a generated name.
func (s *Store) CreateTempCollection(userID, description string, cardIDs []string) *TempCollection {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tempSeq++
	tc := &TempCollection{
		ID:          fmt.Sprintf("tmp_%d", s.tempSeq),
		UserID:      userID,
		Description: description,
		CardIDs:     cardIDs,
	}
	s.temps[tc.ID] = tc
	return tc
}

func (s *Store) GetTempCollection(userID, id string) (*TempCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tc, ok := s.temps[id]
	if !ok || tc.UserID != userID {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, id)
	}
	return tc, nil
}

func (s *Store) DeleteTempCollection(userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tc, ok := s.temps[id]
	if !ok || tc.UserID != userID {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, id)
	}
	delete(s.temps, id)
	return nil
}
