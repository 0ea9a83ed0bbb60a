package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/curatorlabs/curator/llm"
	"github.com/curatorlabs/curator/models"
	"github.com/curatorlabs/curator/srs"
)

// ProgressFunc receives human-readable progress updates while a task runs.
// srsAction marks updates that changed the user's collection.
type ProgressFunc func(message string, srsAction bool)

// Env carries everything command handlers need for one user. FuzzyThreshold
// is a similarity ratio in (0, 1]; zero falls back to the default.
type Env struct {
	UserID         string
	Store          *srs.Store
	Judge          llm.Client
	FuzzyThreshold float64
	Progress       ProgressFunc
	LogAction      func(description string)
}

func (e *Env) progress(message string, srsAction bool) {
	if e.Progress != nil {
		e.Progress(message, srsAction)
	}
	if srsAction && e.LogAction != nil {
		e.LogAction(message)
	}
}

// CardStream is the payload of commands that return too many cards to show
// at once. The executor feeds it to the model in chunks.
type CardStream struct {
	Description string
	Cards       []string
}

// Invocation is one parsed call bound to its environment.
type Invocation struct {
	Env  *Env
	Call Call
}

func (inv *Invocation) arg(pos int, name string) (any, bool) {
	if pos < len(inv.Call.Args) {
		return inv.Call.Args[pos], true
	}
	value, ok := inv.Call.Kwargs[name]
	return value, ok
}

// String fetches a required string argument by position or keyword.
func (inv *Invocation) String(pos int, name string) (string, error) {
	value, ok := inv.arg(pos, name)
	if !ok {
		return "", fmt.Errorf("%s: missing required argument %q", inv.Call.Name, name)
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%s: argument %q must be a string", inv.Call.Name, name)
	}
	return s, nil
}

// OptString fetches an optional string argument, falling back to def.
func (inv *Invocation) OptString(pos int, name, def string) (string, error) {
	value, ok := inv.arg(pos, name)
	if !ok {
		return def, nil
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%s: argument %q must be a string", inv.Call.Name, name)
	}
	return s, nil
}

// OptBool fetches an optional boolean argument, falling back to def.
func (inv *Invocation) OptBool(pos int, name string, def bool) (bool, error) {
	value, ok := inv.arg(pos, name)
	if !ok {
		return def, nil
	}
	b, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("%s: argument %q must be true or false", inv.Call.Name, name)
	}
	return b, nil
}

// resolveDeck accepts either a deck ID or a deck name.
func (inv *Invocation) resolveDeck(ctx context.Context, ref string) (*models.Deck, error) {
	if _, err := uuid.Parse(ref); err == nil {
		return inv.Env.Store.GetDeck(ctx, inv.Env.UserID, ref)
	}
	return inv.Env.Store.GetDeckByName(ctx, inv.Env.UserID, ref)
}

func (inv *Invocation) resolveCardID(ref string) (string, error) {
	if _, err := uuid.Parse(ref); err != nil {
		return "", fmt.Errorf("%s: %q is not a card id", inv.Call.Name, ref)
	}
	return ref, nil
}

// Command is one operation the model may invoke. Exactly one of Run and
// Stream is set.
type Command struct {
	Name      string
	Signature string
	Doc       string
	SRSAction bool

	Run    func(ctx context.Context, inv *Invocation) (string, error)
	Stream func(ctx context.Context, inv *Invocation) (*CardStream, error)
}

// Registry holds the commands available to the model, in a stable order for
// the system prompt.
type Registry struct {
	commands map[string]*Command
	order    []string
}

func (r *Registry) register(cmd *Command) {
	r.commands[cmd.Name] = cmd
	r.order = append(r.order, cmd.Name)
}

// Lookup returns the named command, if registered.
func (r *Registry) Lookup(name string) (*Command, bool) {
	cmd, ok := r.commands[name]
	return cmd, ok
}

// Describe renders the command list for the system prompt.
func (r *Registry) Describe() string {
	var sb strings.Builder
	for _, name := range r.order {
		cmd := r.commands[name]
		fmt.Fprintf(&sb, "- %s\n  %s\n", cmd.Signature, cmd.Doc)
	}
	return sb.String()
}

// runState carries the terminal outcome of a single task run.
type runState struct {
	finished       bool
	finishMessage  string
	questionAnswer string
}

// NewRegistry builds the command set for one task run.
func NewRegistry(env *Env, state *runState) *Registry {
	r := &Registry{commands: make(map[string]*Command)}

	r.register(&Command{
		Name:      "list_decks",
		Signature: "list_decks()",
		Doc:       "List every deck with its id and card count.",
		Run: func(ctx context.Context, inv *Invocation) (string, error) {
			decks, err := env.Store.ListDecks(ctx, env.UserID)
			if err != nil {
				return "", err
			}
			if len(decks) == 0 {
				return "The collection has no decks.", nil
			}
			lines := make([]string, 0, len(decks))
			for i := range decks {
				count, err := env.Store.CountCardsInDeck(ctx, decks[i].ID)
				if err != nil {
					return "", err
				}
				lines = append(lines, srs.FormatDeck(&decks[i], count))
			}
			return strings.Join(lines, "\n"), nil
		},
	})

	r.register(&Command{
		Name:      "create_deck",
		Signature: `create_deck(name)`,
		Doc:       "Create a new empty deck.",
		SRSAction: true,
		Run: func(ctx context.Context, inv *Invocation) (string, error) {
			name, err := inv.String(0, "name")
			if err != nil {
				return "", err
			}
			deck, err := env.Store.AddDeck(ctx, env.UserID, name)
			if err != nil {
				return "", err
			}
			env.progress(fmt.Sprintf("Created deck '%s'", deck.Name), true)
			return fmt.Sprintf("Created deck '%s' with id %s.", deck.Name, deck.ID), nil
		},
	})

	r.register(&Command{
		Name:      "rename_deck",
		Signature: `rename_deck(deck, new_name)`,
		Doc:       "Rename a deck. The deck can be given by id or by name.",
		SRSAction: true,
		Run: func(ctx context.Context, inv *Invocation) (string, error) {
			ref, err := inv.String(0, "deck")
			if err != nil {
				return "", err
			}
			newName, err := inv.String(1, "new_name")
			if err != nil {
				return "", err
			}
			deck, err := inv.resolveDeck(ctx, ref)
			if err != nil {
				return "", err
			}
			oldName := deck.Name
			if _, err := env.Store.RenameDeck(ctx, env.UserID, deck.ID, newName); err != nil {
				return "", err
			}
			env.progress(fmt.Sprintf("Renamed deck '%s' to '%s'", oldName, newName), true)
			return fmt.Sprintf("Renamed deck '%s' to '%s'.", oldName, newName), nil
		},
	})

	r.register(&Command{
		Name:      "delete_deck",
		Signature: `delete_deck(deck)`,
		Doc:       "Delete a deck and all of its cards.",
		SRSAction: true,
		Run: func(ctx context.Context, inv *Invocation) (string, error) {
			ref, err := inv.String(0, "deck")
			if err != nil {
				return "", err
			}
			deck, err := inv.resolveDeck(ctx, ref)
			if err != nil {
				return "", err
			}
			if err := env.Store.DeleteDeck(ctx, env.UserID, deck.ID); err != nil {
				return "", err
			}
			env.progress(fmt.Sprintf("Deleted deck '%s'", deck.Name), true)
			return fmt.Sprintf("Deleted deck '%s'.", deck.Name), nil
		},
	})

	r.register(&Command{
		Name:      "add_card",
		Signature: `add_card(deck, question, answer, state="new", flag="none")`,
		Doc:       "Add a card to a deck. States: new, learning, review, buried, suspended. Flags: none, red, orange, green, blue, pink, turquoise, purple.",
		SRSAction: true,
		Run: func(ctx context.Context, inv *Invocation) (string, error) {
			ref, err := inv.String(0, "deck")
			if err != nil {
				return "", err
			}
			question, err := inv.String(1, "question")
			if err != nil {
				return "", err
			}
			answer, err := inv.String(2, "answer")
			if err != nil {
				return "", err
			}
			state, err := inv.OptString(3, "state", srs.StateNew)
			if err != nil {
				return "", err
			}
			flag, err := inv.OptString(4, "flag", srs.FlagNone)
			if err != nil {
				return "", err
			}
			deck, err := inv.resolveDeck(ctx, ref)
			if err != nil {
				return "", err
			}
			card, err := env.Store.AddCard(ctx, env.UserID, deck.ID, question, answer, state, flag)
			if err != nil {
				return "", err
			}
			env.progress(fmt.Sprintf("Added a card to deck '%s'", deck.Name), true)
			return fmt.Sprintf("Added card %s to deck '%s'.", card.ID, deck.Name), nil
		},
	})

	r.register(&Command{
		Name:      "edit_card_question",
		Signature: `edit_card_question(card_id, question)`,
		Doc:       "Replace a card's question text.",
		SRSAction: true,
		Run: func(ctx context.Context, inv *Invocation) (string, error) {
			return editCard(ctx, inv, "question", env.Store.EditCardQuestion)
		},
	})

	r.register(&Command{
		Name:      "edit_card_answer",
		Signature: `edit_card_answer(card_id, answer)`,
		Doc:       "Replace a card's answer text.",
		SRSAction: true,
		Run: func(ctx context.Context, inv *Invocation) (string, error) {
			return editCard(ctx, inv, "answer", env.Store.EditCardAnswer)
		},
	})

	r.register(&Command{
		Name:      "edit_card_state",
		Signature: `edit_card_state(card_id, state)`,
		Doc:       "Change a card's scheduling state.",
		SRSAction: true,
		Run: func(ctx context.Context, inv *Invocation) (string, error) {
			return editCard(ctx, inv, "state", env.Store.EditCardState)
		},
	})

	r.register(&Command{
		Name:      "edit_card_flag",
		Signature: `edit_card_flag(card_id, flag)`,
		Doc:       "Change a card's color flag.",
		SRSAction: true,
		Run: func(ctx context.Context, inv *Invocation) (string, error) {
			return editCard(ctx, inv, "flag", env.Store.EditCardFlag)
		},
	})

	r.register(&Command{
		Name:      "delete_card",
		Signature: `delete_card(card_id)`,
		Doc:       "Delete a single card.",
		SRSAction: true,
		Run: func(ctx context.Context, inv *Invocation) (string, error) {
			ref, err := inv.String(0, "card_id")
			if err != nil {
				return "", err
			}
			cardID, err := inv.resolveCardID(ref)
			if err != nil {
				return "", err
			}
			if err := env.Store.DeleteCard(ctx, env.UserID, cardID); err != nil {
				return "", err
			}
			env.progress("Deleted a card", true)
			return fmt.Sprintf("Deleted card %s.", cardID), nil
		},
	})

	r.register(&Command{
		Name:      "move_card_to_deck",
		Signature: `move_card_to_deck(card_id, deck)`,
		Doc:       "Move a card into another deck.",
		SRSAction: true,
		Run: func(ctx context.Context, inv *Invocation) (string, error) {
			return transferCard(ctx, inv, env, "Moved", env.Store.MoveCard)
		},
	})

	r.register(&Command{
		Name:      "copy_card_to_deck",
		Signature: `copy_card_to_deck(card_id, deck)`,
		Doc:       "Copy a card into another deck, keeping the original.",
		SRSAction: true,
		Run: func(ctx context.Context, inv *Invocation) (string, error) {
			return transferCard(ctx, inv, env, "Copied", env.Store.CopyCard)
		},
	})

	r.register(&Command{
		Name:      "get_cards_in_deck",
		Signature: `get_cards_in_deck(deck)`,
		Doc:       "Show every card in a deck. Large decks are shown in chunks.",
		Stream: func(ctx context.Context, inv *Invocation) (*CardStream, error) {
			ref, err := inv.String(0, "deck")
			if err != nil {
				return nil, err
			}
			deck, err := inv.resolveDeck(ctx, ref)
			if err != nil {
				return nil, err
			}
			cards, err := env.Store.CardsInDeck(ctx, env.UserID, deck.ID)
			if err != nil {
				return nil, err
			}
			return &CardStream{
				Description: fmt.Sprintf("cards in deck '%s'", deck.Name),
				Cards:       formatCards(cards),
			}, nil
		},
	})

	r.register(&Command{
		Name:      "list_collection_cards",
		Signature: `list_collection_cards(collection_id="")`,
		Doc:       "Show every card in the whole collection, or only the cards of a saved search result when a collection id like tmp_1 is given. Large listings are shown in chunks.",
		Stream: func(ctx context.Context, inv *Invocation) (*CardStream, error) {
			id, err := inv.OptString(0, "collection_id", "")
			if err != nil {
				return nil, err
			}
			if id == "" {
				cards, err := env.Store.AllCards(ctx, env.UserID)
				if err != nil {
					return nil, err
				}
				return &CardStream{
					Description: "all cards in the collection",
					Cards:       formatCards(cards),
				}, nil
			}

			tc, err := env.Store.GetTempCollection(env.UserID, id)
			if err != nil {
				return nil, err
			}
			cards := collectionCards(ctx, env, tc)
			return &CardStream{
				Description: fmt.Sprintf("cards in %s (%s)", tc.ID, tc.Description),
				Cards:       formatCards(cards),
			}, nil
		},
	})

	r.register(&Command{
		Name:      "add_collection_to_deck",
		Signature: `add_collection_to_deck(collection_id, deck)`,
		Doc:       "Move every card of a saved search result (a collection id like tmp_1) into a deck.",
		SRSAction: true,
		Run: func(ctx context.Context, inv *Invocation) (string, error) {
			id, err := inv.String(0, "collection_id")
			if err != nil {
				return "", err
			}
			deckRef, err := inv.String(1, "deck")
			if err != nil {
				return "", err
			}
			tc, err := env.Store.GetTempCollection(env.UserID, id)
			if err != nil {
				return "", err
			}
			deck, err := inv.resolveDeck(ctx, deckRef)
			if err != nil {
				return "", err
			}

			moved := 0
			for _, cardID := range tc.CardIDs {
				// Cards staged earlier may have been deleted since.
				if _, err := env.Store.MoveCard(ctx, env.UserID, cardID, deck.ID); err != nil {
					continue
				}
				moved++
			}
			env.progress(fmt.Sprintf("Moved %d cards to deck '%s'", moved, deck.Name), true)
			return fmt.Sprintf("Moved %d of %d cards from %s to deck '%s'.", moved, len(tc.CardIDs), tc.ID, deck.Name), nil
		},
	})

	r.register(&Command{
		Name:      "search_by_substring",
		Signature: `search_by_substring(query, fuzzy=false, case_sensitive=false, search_in_question=true, search_in_answer=true)`,
		Doc:       "Find cards whose question or answer contains the query. With fuzzy=true, near matches count too. The search_in flags narrow which side is searched.",
		Run: func(ctx context.Context, inv *Invocation) (string, error) {
			query, err := inv.String(0, "query")
			if err != nil {
				return "", err
			}
			fuzzy, err := inv.OptBool(1, "fuzzy", false)
			if err != nil {
				return "", err
			}
			caseSensitive, err := inv.OptBool(2, "case_sensitive", false)
			if err != nil {
				return "", err
			}
			inQuestion, err := inv.OptBool(3, "search_in_question", true)
			if err != nil {
				return "", err
			}
			inAnswer, err := inv.OptBool(4, "search_in_answer", true)
			if err != nil {
				return "", err
			}
			if !inQuestion && !inAnswer {
				return "", fmt.Errorf("search_by_substring: search_in_question and search_in_answer cannot both be false")
			}

			cards, err := env.Store.AllCards(ctx, env.UserID)
			if err != nil {
				return "", err
			}

			opts := SearchOptions{
				CaseSensitive: caseSensitive,
				InQuestion:    inQuestion,
				InAnswer:      inAnswer,
			}
			var matched []models.Card
			if fuzzy {
				threshold := env.FuzzyThreshold
				if threshold <= 0 || threshold > 1 {
					threshold = DefaultFuzzyThreshold
				}
				matched = SearchFuzzy(cards, query, threshold, opts)
			} else {
				matched = SearchBySubstring(cards, query, opts)
			}
			return describeSearchResults(env, matched, fmt.Sprintf("substring search for %q", query)), nil
		},
	})

	r.register(&Command{
		Name:      "search_by_content",
		Signature: `search_by_content(description)`,
		Doc:       "Find cards matching a free-form description of their content. Slower than substring search.",
		Run: func(ctx context.Context, inv *Invocation) (string, error) {
			description, err := inv.String(0, "description")
			if err != nil {
				return "", err
			}
			if env.Judge == nil {
				return "", fmt.Errorf("content search is not available without a judge model")
			}
			cards, err := env.Store.AllCards(ctx, env.UserID)
			if err != nil {
				return "", err
			}
			matched, err := SearchByContent(ctx, env.Judge, cards, description)
			if err != nil {
				return "", err
			}
			return describeSearchResults(env, matched, fmt.Sprintf("content search for %q", description)), nil
		},
	})

	r.register(&Command{
		Name:      "answer_question",
		Signature: `answer_question(answer)`,
		Doc:       "Record the answer to the user's question. Use this when the task asks something rather than requests changes.",
		Run: func(ctx context.Context, inv *Invocation) (string, error) {
			answer, err := inv.String(0, "answer")
			if err != nil {
				return "", err
			}
			state.questionAnswer = answer
			return "Answer recorded.", nil
		},
	})

	r.register(&Command{
		Name:      "finish_task",
		Signature: `finish_task(message)`,
		Doc:       "Finish the task with a short closing message for the user. Always call this last.",
		Run: func(ctx context.Context, inv *Invocation) (string, error) {
			message, err := inv.String(0, "message")
			if err != nil {
				return "", err
			}
			state.finished = true
			state.finishMessage = message
			return "Task finished.", nil
		},
	})

	r.register(&Command{
		Name:      "abort_card_stream",
		Signature: `abort_card_stream(reason)`,
		Doc:       "Stop an ongoing card listing early. Only valid while cards are being streamed.",
		Run: func(ctx context.Context, inv *Invocation) (string, error) {
			return "", fmt.Errorf("abort_card_stream is only valid while cards are being streamed")
		},
	})

	return r
}

func editCard(ctx context.Context, inv *Invocation, field string,
	edit func(ctx context.Context, userID, cardID, value string) (*models.Card, error)) (string, error) {

	ref, err := inv.String(0, "card_id")
	if err != nil {
		return "", err
	}
	value, err := inv.String(1, field)
	if err != nil {
		return "", err
	}
	cardID, err := inv.resolveCardID(ref)
	if err != nil {
		return "", err
	}
	card, err := edit(ctx, inv.Env.UserID, cardID, value)
	if err != nil {
		return "", err
	}
	inv.Env.progress(fmt.Sprintf("Updated the %s of a card", field), true)
	return fmt.Sprintf("Updated card:\n%s", srs.FormatCard(card)), nil
}

func transferCard(ctx context.Context, inv *Invocation, env *Env, verb string,
	transfer func(ctx context.Context, userID, cardID, deckID string) (*models.Card, error)) (string, error) {

	ref, err := inv.String(0, "card_id")
	if err != nil {
		return "", err
	}
	deckRef, err := inv.String(1, "deck")
	if err != nil {
		return "", err
	}
	cardID, err := inv.resolveCardID(ref)
	if err != nil {
		return "", err
	}
	deck, err := inv.resolveDeck(ctx, deckRef)
	if err != nil {
		return "", err
	}
	card, err := transfer(ctx, env.UserID, cardID, deck.ID)
	if err != nil {
		return "", err
	}
	env.progress(fmt.Sprintf("%s a card to deck '%s'", verb, deck.Name), true)
	return fmt.Sprintf("%s card %s to deck '%s'.", verb, card.ID, deck.Name), nil
}

// collectionCards resolves the staged card IDs of a temp collection. IDs
// whose cards were deleted after staging are skipped.
func collectionCards(ctx context.Context, env *Env, tc *srs.TempCollection) []models.Card {
	cards := make([]models.Card, 0, len(tc.CardIDs))
	for _, cardID := range tc.CardIDs {
		card, err := env.Store.GetCard(ctx, env.UserID, cardID)
		if err != nil {
			continue
		}
		cards = append(cards, *card)
	}
	return cards
}

func formatCards(cards []models.Card) []string {
	out := make([]string, 0, len(cards))
	for i := range cards {
		out = append(out, srs.FormatCard(&cards[i]))
	}
	return out
}

// describeSearchResults stages matches in a temporary collection so later
// commands can refer to the result set by id.
func describeSearchResults(env *Env, matched []models.Card, what string) string {
	if len(matched) == 0 {
		return "No cards matched."
	}

	ids := make([]string, 0, len(matched))
	for i := range matched {
		ids = append(ids, matched[i].ID)
	}
	tc := env.Store.CreateTempCollection(env.UserID, what, ids)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d matching cards (saved as %s):\n", len(matched), tc.ID)
	sb.WriteString(strings.Join(formatCards(matched), "\n"))
	return sb.String()
}
