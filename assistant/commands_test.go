package assistant

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
	"github.com/curatorlabs/curator/srs"
)

func invocationFor(t *testing.T, block string) *Invocation {
	t.Helper()
	calls, err := ParseCalls(block)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	return &Invocation{Call: calls[0]}
}

func newStoreEnv(t *testing.T) (*Env, *srs.Store, string) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "assistant.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Deck{}, &models.Card{}))

	user := &models.User{Name: "tester"}
	require.NoError(t, db.Create(user).Error)

	store := srs.NewStore(repository.NewSRSRepository(db))
	return &Env{UserID: user.ID, Store: store}, store, user.ID
}

// runNamed parses a single command line and runs it through the registry.
func runNamed(t *testing.T, env *Env, registry *Registry, line string) (string, error) {
	t.Helper()
	calls, err := ParseCalls(line)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	cmd, ok := registry.Lookup(calls[0].Name)
	require.True(t, ok, calls[0].Name)
	return cmd.Run(context.Background(), &Invocation{Env: env, Call: calls[0]})
}

func TestInvocationString(t *testing.T) {
	inv := invocationFor(t, `add_card("Biology", question="What is ATP?")`)

	deck, err := inv.String(0, "deck")
	require.NoError(t, err)
	assert.Equal(t, "Biology", deck)

	question, err := inv.String(1, "question")
	require.NoError(t, err)
	assert.Equal(t, "What is ATP?", question)

	_, err = inv.String(2, "answer")
	assert.Error(t, err)
}

func TestInvocationStringTypeMismatch(t *testing.T) {
	inv := invocationFor(t, `create_deck(42)`)

	_, err := inv.String(0, "name")
	assert.Error(t, err)
}

func TestInvocationOptString(t *testing.T) {
	inv := invocationFor(t, `add_card("Biology")`)

	state, err := inv.OptString(3, "state", "new")
	require.NoError(t, err)
	assert.Equal(t, "new", state)

	inv = invocationFor(t, `add_card("Biology", state="review")`)
	state, err = inv.OptString(3, "state", "new")
	require.NoError(t, err)
	assert.Equal(t, "review", state)
}

func TestInvocationOptBool(t *testing.T) {
	inv := invocationFor(t, `search_by_substring("atp")`)

	fuzzy, err := inv.OptBool(1, "fuzzy", false)
	require.NoError(t, err)
	assert.False(t, fuzzy)

	inv = invocationFor(t, `search_by_substring("atp", fuzzy=true)`)
	fuzzy, err = inv.OptBool(1, "fuzzy", false)
	require.NoError(t, err)
	assert.True(t, fuzzy)

	inv = invocationFor(t, `search_by_substring("atp", fuzzy="yes")`)
	_, err = inv.OptBool(1, "fuzzy", false)
	assert.Error(t, err)
}

func TestRegistryDescribeListsCommands(t *testing.T) {
	registry := NewRegistry(&Env{}, &runState{})

	described := registry.Describe()
	for _, name := range []string{
		"list_decks", "create_deck", "rename_deck", "delete_deck",
		"add_card", "edit_card_question", "edit_card_answer",
		"edit_card_state", "edit_card_flag", "delete_card",
		"move_card_to_deck", "copy_card_to_deck",
		"get_cards_in_deck", "list_collection_cards",
		"add_collection_to_deck",
		"search_by_substring", "search_by_content",
		"answer_question", "finish_task", "abort_card_stream",
	} {
		assert.Contains(t, described, name)

		_, ok := registry.Lookup(name)
		assert.True(t, ok, name)
	}

	_, ok := registry.Lookup("summon_dragon")
	assert.False(t, ok)
}

func TestSearchSavesCollectionForLaterUse(t *testing.T) {
	ctx := context.Background()
	env, store, userID := newStoreEnv(t)
	registry := NewRegistry(env, &runState{})

	inbox, err := store.AddDeck(ctx, userID, "Inbox")
	require.NoError(t, err)
	_, err = store.AddDeck(ctx, userID, "Biology")
	require.NoError(t, err)

	_, err = store.AddCard(ctx, userID, inbox.ID, "What is a cell?", "The basic unit of life.", srs.StateNew, srs.FlagNone)
	require.NoError(t, err)
	_, err = store.AddCard(ctx, userID, inbox.ID, "Parts of the cell membrane?", "Lipids and proteins.", srs.StateNew, srs.FlagNone)
	require.NoError(t, err)
	_, err = store.AddCard(ctx, userID, inbox.ID, "When was Rome founded?", "753 BC, by tradition.", srs.StateNew, srs.FlagNone)
	require.NoError(t, err)

	out, err := runNamed(t, env, registry, `search_by_substring("cell")`)
	require.NoError(t, err)
	assert.Contains(t, out, "Found 2 matching cards")
	assert.Contains(t, out, "tmp_1")

	// The saved result can be listed by its collection id.
	cmd, ok := registry.Lookup("list_collection_cards")
	require.True(t, ok)
	calls, err := ParseCalls(`list_collection_cards("tmp_1")`)
	require.NoError(t, err)
	stream, err := cmd.Stream(ctx, &Invocation{Env: env, Call: calls[0]})
	require.NoError(t, err)
	assert.Len(t, stream.Cards, 2)
	assert.Contains(t, stream.Description, "tmp_1")

	// And moved wholesale into a deck.
	out, err = runNamed(t, env, registry, `add_collection_to_deck("tmp_1", "Biology")`)
	require.NoError(t, err)
	assert.Contains(t, out, "Moved 2 of 2 cards")

	bio, err := store.GetDeckByName(ctx, userID, "Biology")
	require.NoError(t, err)
	bioCount, err := store.CountCardsInDeck(ctx, bio.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, bioCount)
	inboxCount, err := store.CountCardsInDeck(ctx, inbox.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, inboxCount)
}

func TestListCollectionCardsUnknownID(t *testing.T) {
	env, _, _ := newStoreEnv(t)
	registry := NewRegistry(env, &runState{})

	cmd, ok := registry.Lookup("list_collection_cards")
	require.True(t, ok)
	calls, err := ParseCalls(`list_collection_cards("tmp_99")`)
	require.NoError(t, err)
	_, err = cmd.Stream(context.Background(), &Invocation{Env: env, Call: calls[0]})
	assert.Error(t, err)
}

func TestSearchRejectsSearchingNeitherSide(t *testing.T) {
	env, _, _ := newStoreEnv(t)
	registry := NewRegistry(env, &runState{})

	_, err := runNamed(t, env, registry, `search_by_substring("cell", search_in_question=false, search_in_answer=false)`)
	assert.Error(t, err)
}
