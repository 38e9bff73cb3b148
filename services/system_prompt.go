package services

import (
	"fmt"

	"github/itish2003/medchat/llm"
)

const userPromptTemplate = "Context:\n%s\n\nQuestion: %s\n\nAnswer concisely and cite source if used."

// ComposeUserPrompt fills the user message template with the bounded context
// and the original question.
func ComposeUserPrompt(context, query string) string {
	return fmt.Sprintf(userPromptTemplate, context, query)
}

// BuildMessages returns the two-message exchange sent to the generator.
func BuildMessages(systemPrompt, context, query string) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: ComposeUserPrompt(context, query)},
	}
}
