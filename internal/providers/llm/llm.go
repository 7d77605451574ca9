package llm

import (
	"context"
	"errors"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var ErrEmptyResponse = errors.New("llm: empty response")

type Message struct {
	Role    string
	Content string
}

type ChatRequest struct {
	Model       string // empty means provider default
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// ChatCompleter produces one completion for a chat request.
type ChatCompleter interface {
	CompleteChat(ctx context.Context, req ChatRequest) (string, error)
}

// Embedder turns text into a vector.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Gateway is the full AI capability the services depend on.
type Gateway interface {
	ChatCompleter
	Embedder
}

type composite struct {
	ChatCompleter
	Embedder
}

// Compose pairs a chat provider with an embedding provider.
func Compose(chat ChatCompleter, embed Embedder) Gateway {
	return composite{ChatCompleter: chat, Embedder: embed}
}
