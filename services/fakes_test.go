package services

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github/itish2003/medchat/llm"
	"github/itish2003/medchat/models"
)

var nopLogger = zap.NewNop()

// fakeEmbedder returns a tiny deterministic vector per text.
type fakeEmbedder struct {
	queries []string
	err     error
}

func embedText(text string) []float32 {
	lower := strings.ToLower(text)
	return []float32{
		float32(len(text)),
		float32(strings.Count(lower, "a")),
		float32(strings.Count(lower, "e")) + 1,
	}
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = embedText(t)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.queries = append(f.queries, text)
	if f.err != nil {
		return nil, f.err
	}
	return embedText(text), nil
}

// fakeStore serves canned results and records what it was asked.
type fakeStore struct {
	results  []models.RetrievedChunk
	queryErr error
	queries  int
	lastK    int
}

func (f *fakeStore) Upsert(ctx context.Context, chunks []models.Chunk) error { return nil }

func (f *fakeStore) Query(ctx context.Context, embedding []float32, k int) ([]models.RetrievedChunk, error) {
	f.queries++
	f.lastK = k
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if k < len(f.results) {
		return f.results[:k], nil
	}
	return f.results, nil
}

func (f *fakeStore) Count(ctx context.Context) (int, error) { return len(f.results), nil }
func (f *fakeStore) Replace(ctx context.Context, chunks []models.Chunk) error {
	return nil
}
func (f *fakeStore) Close() error                           { return nil }

// fakeGenerator records the messages it receives and returns reply or err.
type fakeGenerator struct {
	name     string
	reply    llm.Reply
	err      error
	calls    int
	messages []llm.Message
}

func (f *fakeGenerator) Name() string {
	if f.name == "" {
		return "Ollama"
	}
	return f.name
}

func (f *fakeGenerator) Chat(ctx context.Context, messages []llm.Message) (llm.Reply, error) {
	f.calls++
	f.messages = messages
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

var errConnRefused = errors.New("dial tcp 127.0.0.1:11434: connect: connection refused")
