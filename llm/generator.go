package llm

import "context"

// Chat roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a provider-agnostic chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generator sends a message list to a chat-completion service and returns
// the service's reply in whatever shape it produced. Callers turn the reply
// into text with ExtractAnswer.
type Generator interface {
	// Name is the human-readable provider name used in error answers.
	Name() string
	Chat(ctx context.Context, messages []Message) (Reply, error)
}
