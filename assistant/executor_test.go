package assistant

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curatorlabs/curator/llm"
	"github.com/curatorlabs/curator/srs"
)

// scriptedClient replays canned responses and records what it was asked.
type scriptedClient struct {
	responses []string
	calls     int
	prompts   []string
}

func (c *scriptedClient) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	c.prompts = append(c.prompts, messages[len(messages)-1].Content)
	if c.calls >= len(c.responses) {
		return "<execute>finish_task(\"fallback\")</execute>", nil
	}
	response := c.responses[c.calls]
	c.calls++
	return response, nil
}

func (c *scriptedClient) Description() string { return "scripted" }

func TestExecuteFinishTask(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`<execute>finish_task("All done.")</execute>`,
	}}
	executor := NewExecutor(&Env{}, client)

	result, err := executor.Execute(context.Background(), "do nothing")
	require.NoError(t, err)
	assert.Equal(t, "All done.", result.TaskFinishMessage)
	assert.Empty(t, result.QuestionAnswer)
	assert.Equal(t, 1, client.calls)
}

func TestExecuteAnswerQuestion(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`<execute>answer_question("You have three decks.")</execute>`,
		`<execute></execute>`,
	}}
	executor := NewExecutor(&Env{}, client)

	result, err := executor.Execute(context.Background(), "how many decks do I have?")
	require.NoError(t, err)
	assert.Equal(t, "You have three decks.", result.QuestionAnswer)
	assert.Empty(t, result.TaskFinishMessage)
}

func TestExecuteFeedsResultsBack(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`<execute>answer_question("Answered.")</execute>`,
		`<execute>finish_task("Done.")</execute>`,
	}}
	executor := NewExecutor(&Env{}, client)

	_, err := executor.Execute(context.Background(), "a task")
	require.NoError(t, err)
	require.Len(t, client.prompts, 2)
	assert.Contains(t, client.prompts[0], "Task: a task")
	assert.Contains(t, client.prompts[1], "Results:")
	assert.Contains(t, client.prompts[1], "Answer recorded.")
}

func TestExecuteAbortsAfterRepeatedErrors(t *testing.T) {
	// The model never produces an execute block, so every turn counts as an
	// error until the cap aborts the task.
	client := &scriptedClient{responses: []string{
		"prose", "prose", "prose", "prose", "prose", "prose",
	}}
	executor := NewExecutor(&Env{}, client)

	_, err := executor.Execute(context.Background(), "a task")
	assert.Error(t, err)
}

func TestExecuteUnknownCommandReported(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`<execute>summon_dragon("please")</execute>`,
		`<execute>finish_task("Recovered.")</execute>`,
	}}
	executor := NewExecutor(&Env{}, client)

	result, err := executor.Execute(context.Background(), "a task")
	require.NoError(t, err)
	assert.Equal(t, "Recovered.", result.TaskFinishMessage)
	require.Len(t, client.prompts, 2)
	assert.Contains(t, client.prompts[1], "ERROR")
	assert.Contains(t, client.prompts[1], "summon_dragon")
}

// streamFixture wires a conversation, registry and run state around a
// scripted client so streamCards can be driven directly.
func streamFixture(client *scriptedClient) (*Executor, *llm.Conversation, *Registry, *runState) {
	executor := NewExecutor(&Env{}, client)
	state := &runState{}
	registry := NewRegistry(executor.env, state)
	return executor, llm.NewConversation(client), registry, state
}

func testStream(n int) *CardStream {
	cards := make([]string, 0, n)
	for i := 0; i < n; i++ {
		cards = append(cards, fmt.Sprintf("card %d", i+1))
	}
	return &CardStream{Description: "test cards", Cards: cards}
}

func TestStreamExecutesCommandsPerChunk(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`<execute>answer_question("card 2 is the one")</execute>`,
		`<execute></execute>`,
		`<execute></execute>`,
	}}
	executor, conv, registry, state := streamFixture(client)

	summary, err := executor.streamCards(context.Background(), conv, registry, state, testStream(4))
	require.NoError(t, err)
	assert.Equal(t, "Showed all 4 test cards.", summary)

	// The command ran and its result came back before the next chunk.
	assert.Equal(t, "card 2 is the one", state.questionAnswer)
	require.Len(t, client.prompts, 3)
	assert.Contains(t, client.prompts[0], "cards 1-3 of 4")
	assert.Contains(t, client.prompts[1], "Results:")
	assert.Contains(t, client.prompts[1], "Answer recorded.")
	assert.Contains(t, client.prompts[2], "cards 4-4 of 4")
}

func TestStreamAbortStopsEarly(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`<execute>abort_card_stream("found it")</execute>`,
	}}
	executor, conv, registry, state := streamFixture(client)

	summary, err := executor.streamCards(context.Background(), conv, registry, state, testStream(7))
	require.NoError(t, err)
	assert.Equal(t, "Showed 3 of 7 test cards before stopping: found it", summary)
	assert.Equal(t, 1, client.calls)
}

func TestStreamFinishDuringChunkEndsTask(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`<execute>finish_task("Saw enough.")</execute>`,
	}}
	executor, conv, registry, state := streamFixture(client)

	summary, err := executor.streamCards(context.Background(), conv, registry, state, testStream(7))
	require.NoError(t, err)
	assert.Contains(t, summary, "before the task finished")
	assert.True(t, state.finished)
	assert.Equal(t, "Saw enough.", state.finishMessage)
}

func TestStreamChunkMessageCap(t *testing.T) {
	// The model keeps issuing commands and never sends the empty block; the
	// per-chunk message cap still moves the stream forward.
	client := &scriptedClient{responses: []string{
		`<execute>answer_question("one")</execute>`,
		`<execute>answer_question("two")</execute>`,
		`<execute>answer_question("three")</execute>`,
		`<execute></execute>`,
	}}
	executor, conv, registry, state := streamFixture(client)

	summary, err := executor.streamCards(context.Background(), conv, registry, state, testStream(4))
	require.NoError(t, err)
	assert.Equal(t, "Showed all 4 test cards.", summary)
	assert.Equal(t, 4, client.calls)
}

func TestStreamChunkErrorFeedback(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`<execute>summon_dragon("please")</execute>`,
		`<execute></execute>`,
		`<execute>get_cards_in_deck("Biology")</execute>`,
		`<execute></execute>`,
	}}
	executor, conv, registry, state := streamFixture(client)

	summary, err := executor.streamCards(context.Background(), conv, registry, state, testStream(4))
	require.NoError(t, err)
	assert.Equal(t, "Showed all 4 test cards.", summary)

	require.Len(t, client.prompts, 4)
	assert.Contains(t, client.prompts[1], `unknown command "summon_dragon"`)
	// Nested card listings are refused inside a stream.
	assert.Contains(t, client.prompts[3], "cannot be nested")
}

func TestExecuteRunsCardEditsDuringStream(t *testing.T) {
	env, store, userID := newStoreEnv(t)
	ctx := context.Background()

	deck, err := store.AddDeck(ctx, userID, "Biology")
	require.NoError(t, err)
	var victimID string
	for i := 0; i < 4; i++ {
		card, err := store.AddCard(ctx, userID, deck.ID, fmt.Sprintf("Q%d", i+1), fmt.Sprintf("A%d", i+1), srs.StateNew, srs.FlagNone)
		require.NoError(t, err)
		if i == 1 {
			victimID = card.ID
		}
	}

	client := &scriptedClient{responses: []string{
		`<execute>get_cards_in_deck("Biology")</execute>`,
		fmt.Sprintf(`<execute>delete_card(%q)</execute>`, victimID),
		`<execute></execute>`,
		`<execute>abort_card_stream("done cleaning up")</execute>`,
		`<execute>finish_task("Removed the duplicate.")</execute>`,
	}}
	executor := NewExecutor(env, client)

	result, err := executor.Execute(ctx, "remove the duplicate card from Biology")
	require.NoError(t, err)
	assert.Equal(t, "Removed the duplicate.", result.TaskFinishMessage)

	// The delete issued mid-stream actually happened.
	_, err = store.GetCard(ctx, userID, victimID)
	assert.ErrorIs(t, err, srs.ErrCardNotFound)
	remaining, err := store.CardsInDeck(ctx, userID, deck.ID)
	require.NoError(t, err)
	assert.Len(t, remaining, 3)
}
