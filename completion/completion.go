package completion

import (
	"context"
	"errors"
)

// ErrService covers transport, auth and server failures of the completion
// model. Answering fails, there is no fallback answer.
var ErrService = errors.New("completion service error")

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func SystemMessage(content string) Message {
	return Message{RoleSystem, content}
}

func UserMessage(content string) Message {
	return Message{RoleUser, content}
}

type Options struct {
	Temperature float64
	MaxTokens   int
}

// Completer turns a conversation into the model's next message.
type Completer interface {
	Complete(ctx context.Context, messages []Message, opts Options) (string, error)
	Name() string
}
