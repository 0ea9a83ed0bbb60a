package llm

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoClient replies with a canned response or error.
type echoClient struct {
	response string
	err      error
	seen     [][]Message
}

func (c *echoClient) Generate(ctx context.Context, messages []Message) (string, error) {
	copied := make([]Message, len(messages))
	copy(copied, messages)
	c.seen = append(c.seen, copied)
	return c.response, c.err
}

func (c *echoClient) Description() string { return "echo-test" }

func TestConversationSend(t *testing.T) {
	client := &echoClient{response: "hello back"}
	conv := NewConversation(client)

	require.NoError(t, conv.SetSystemPrompt("be helpful"))

	reply, err := conv.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello back", reply)

	messages := conv.Messages()
	require.Len(t, messages, 3)
	assert.Equal(t, Message{Role: RoleSystem, Content: "be helpful"}, messages[0])
	assert.Equal(t, Message{Role: RoleUser, Content: "hello"}, messages[1])
	assert.Equal(t, Message{Role: RoleAssistant, Content: "hello back"}, messages[2])
}

func TestConversationSystemPromptMustBeFirst(t *testing.T) {
	conv := NewConversation(&echoClient{response: "ok"})
	conv.AddMessage("hi")

	assert.Error(t, conv.SetSystemPrompt("too late"))
}

func TestConversationSendErrorDropsMessage(t *testing.T) {
	client := &echoClient{err: fmt.Errorf("backend down")}
	conv := NewConversation(client)

	_, err := conv.Send(context.Background(), "hello")
	require.Error(t, err)

	// The unanswered message is removed so a retry does not duplicate it.
	assert.Empty(t, conv.Messages())
}

func TestConversationVisibilityBlock(t *testing.T) {
	client := &echoClient{response: "ack"}
	conv := NewConversation(client)

	_, err := conv.Send(context.Background(), "keep this")
	require.NoError(t, err)
	kept := len(conv.Messages())

	conv.StartVisibilityBlock()
	_, err = conv.Send(context.Background(), "chunk 1")
	require.NoError(t, err)
	_, err = conv.Send(context.Background(), "chunk 2")
	require.NoError(t, err)
	assert.Len(t, conv.Messages(), kept+4)

	conv.EndVisibilityBlock()
	assert.Len(t, conv.Messages(), kept)

	// Ending again without an open block changes nothing.
	conv.EndVisibilityBlock()
	assert.Len(t, conv.Messages(), kept)
}

func TestGenerateSingle(t *testing.T) {
	client := &echoClient{response: "42"}

	reply, err := GenerateSingle(context.Background(), client, "what is the answer?")
	require.NoError(t, err)
	assert.Equal(t, "42", reply)

	require.Len(t, client.seen, 1)
	require.Len(t, client.seen[0], 1)
	assert.Equal(t, RoleUser, client.seen[0][0].Role)
}
