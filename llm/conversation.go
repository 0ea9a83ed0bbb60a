package llm

import (
	"context"
	"fmt"
)

// Conversation manages an ordered message history against a Client. It also
// supports visibility blocks: a marker after which all messages can be cut
// from the history again, used when streaming card chunks through the model
// without growing the context.
type Conversation struct {
	client              Client
	messages            []Message
	visibilityBlockFrom int // -1 when no block is open
}

func NewConversation(client Client) *Conversation {
	return &Conversation{
		client:              client,
		visibilityBlockFrom: -1,
	}
}

// SetSystemPrompt sets the system prompt. It must be the first message.
func (c *Conversation) SetSystemPrompt(prompt string) error {
	if len(c.messages) > 0 {
		return fmt.Errorf("system prompt can only be set as the first message")
	}
	c.messages = append(c.messages, Message{Role: RoleSystem, Content: prompt})
	return nil
}

// AddMessage appends a user message without sending it to the model yet.
func (c *Conversation) AddMessage(content string) {
	c.messages = append(c.messages, Message{Role: RoleUser, Content: content})
}

// Send appends a user message, asks the model for a reply, records the reply
// and returns it.
func (c *Conversation) Send(ctx context.Context, content string) (string, error) {
	c.messages = append(c.messages, Message{Role: RoleUser, Content: content})

	response, err := c.client.Generate(ctx, c.messages)
	if err != nil {
		// Drop the unanswered message so a retry does not duplicate it.
		c.messages = c.messages[:len(c.messages)-1]
		return "", err
	}

	c.messages = append(c.messages, Message{Role: RoleAssistant, Content: response})
	return response, nil
}

// Messages returns a copy of the current history.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// StartVisibilityBlock marks the current history position. An already open
// block is overwritten.
func (c *Conversation) StartVisibilityBlock() {
	c.visibilityBlockFrom = len(c.messages)
}

// EndVisibilityBlock removes all messages recorded since the last
// StartVisibilityBlock call. Without an open block it has no effect.
func (c *Conversation) EndVisibilityBlock() {
	if c.visibilityBlockFrom < 0 {
		return
	}
	c.messages = c.messages[:c.visibilityBlockFrom]
	c.visibilityBlockFrom = -1
}
