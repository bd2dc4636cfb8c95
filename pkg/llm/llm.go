// Package llm holds the chat message types shared by the model clients.
package llm

import (
	"context"
	"errors"
)

// Roles understood by both Ollama and OpenAI-compatible chat endpoints.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ErrEmptyResponse is returned when a model answers with no content.
var ErrEmptyResponse = errors.New("llm: empty response")

// Chatter completes a conversation.
type Chatter interface {
	Chat(ctx context.Context, msgs []Message) (string, error)
	// Stream calls onToken for each content delta until the model is done.
	Stream(ctx context.Context, msgs []Message, onToken func(string)) error
	Model() string
}

// Tail returns the last n messages of history. n <= 0 returns nil.
func Tail(history []Message, n int) []Message {
	if n <= 0 || len(history) == 0 {
		return nil
	}
	if len(history) > n {
		history = history[len(history)-n:]
	}
	out := make([]Message, len(history))
	copy(out, history)
	return out
}
