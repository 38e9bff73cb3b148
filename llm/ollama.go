package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github/itish2003/medchat/models"
)

// OllamaGenerator talks to a local Ollama server through /api/chat.
type OllamaGenerator struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

var _ Generator = (*OllamaGenerator)(nil)

func NewOllamaGenerator(client *http.Client, baseURL, model string) *OllamaGenerator {
	if client == nil {
		client = http.DefaultClient
	}
	return &OllamaGenerator{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: client,
	}
}

func (o *OllamaGenerator) Name() string { return "Ollama" }

// Chat posts a non-streaming chat request. A JSON object body is returned as
// a MappingReply; any other 200 body is returned as an OpaqueReply.
func (o *OllamaGenerator) Chat(ctx context.Context, messages []Message) (Reply, error) {
	ollamaMessages := make([]models.OllamaMessage, len(messages))
	for i, msg := range messages {
		ollamaMessages[i] = models.OllamaMessage{Role: msg.Role, Content: msg.Content}
	}

	reqBody, err := json.Marshal(models.OllamaChatRequest{
		Model:    o.model,
		Messages: ollamaMessages,
		Stream:   false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call ollama chat api: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read ollama response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama api returned non-200 status: %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	var mapping map[string]interface{}
	if err := json.Unmarshal(bodyBytes, &mapping); err != nil || mapping == nil {
		return OpaqueReply{Value: string(bodyBytes)}, nil
	}
	return MappingReply(mapping), nil
}
