package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIGenerator targets any OpenAI-compatible chat endpoint, including
// Ollama's /v1 compatibility layer.
type OpenAIGenerator struct {
	client openai.Client
	model  string
}

var _ Generator = (*OpenAIGenerator)(nil)

func NewOpenAIGenerator(baseURL, apiKey, model string, opts ...option.RequestOption) *OpenAIGenerator {
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &OpenAIGenerator{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (g *OpenAIGenerator) Name() string { return "OpenAI" }

func (g *OpenAIGenerator) Chat(ctx context.Context, messages []Message) (Reply, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(g.model),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
	}
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(msg.Content))
		case RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(msg.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(msg.Content))
		}
	}

	completion, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion failed: %w", err)
	}

	if len(completion.Choices) == 0 {
		return MessageReply{Raw: completion}, nil
	}
	choice := completion.Choices[0]
	return MessageReply{
		Message: &Message{Role: string(choice.Message.Role), Content: choice.Message.Content},
		Raw:     completion,
	}, nil
}
