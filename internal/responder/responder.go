// Package responder turns a user's chat message into the bot's reply.
package responder

import (
	"context"

	"studentbot-web/internal/store"
)

// Responder maps an input message to a reply.
type Responder interface {
	Respond(ctx context.Context, message string) (string, error)
}

// Func adapts a plain function to the Responder interface.
type Func func(ctx context.Context, message string) (string, error)

func (f Func) Respond(ctx context.Context, message string) (string, error) {
	return f(ctx, message)
}

// Conversation carries the caller's session alongside a Respond call.
type Conversation struct {
	ID      string
	History []store.Message
}

// LastReply returns the most recent assistant message, or "".
func (c Conversation) LastReply() string {
	for i := len(c.History) - 1; i >= 0; i-- {
		if c.History[i].Role == store.RoleAssistant {
			return c.History[i].Content
		}
	}
	return ""
}

type conversationKey struct{}

func WithConversation(ctx context.Context, c Conversation) context.Context {
	return context.WithValue(ctx, conversationKey{}, c)
}

// ConversationFrom returns the conversation attached to ctx, if any.
func ConversationFrom(ctx context.Context) (Conversation, bool) {
	c, ok := ctx.Value(conversationKey{}).(Conversation)
	return c, ok
}
