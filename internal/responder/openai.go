package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"studentbot-web/internal/store"
)

// ChatCompleter is the part of *openai.Client the responder uses.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIResponder asks a chat completions model for the reply, sending the
// session history along with the message.
type OpenAIResponder struct {
	client ChatCompleter
	model  string
	system string
}

func NewOpenAIResponder(client ChatCompleter, model, botName string) *OpenAIResponder {
	system := fmt.Sprintf("You are %s, a friendly chat bot for students. Keep replies short and conversational.", botName)
	return &OpenAIResponder{client: client, model: model, system: system}
}

func (o *OpenAIResponder) Respond(ctx context.Context, message string) (string, error) {
	conv, _ := ConversationFrom(ctx)
	messages := make([]openai.ChatCompletionMessage, 0, len(conv.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: o.system})
	messages = append(messages, convertMessages(conv.History)...)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: message})

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func convertMessages(msgs []store.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		role := m.Role
		if role == "" {
			role = openai.ChatMessageRoleUser
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}
