package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"go.uber.org/zap"

	"github/itish2003/medchat/llm"
	"github/itish2003/medchat/models"
	"github/itish2003/medchat/store"
)

// ErrEmptyQuery is returned before any retrieval when the question is empty.
var ErrEmptyQuery = errors.New("query must not be empty")

// RAGService answers questions from the indexed collection.
type RAGService interface {
	// Answer returns the generated answer for query. Generation failures are
	// folded into the returned text; only empty queries and retrieval
	// failures are returned as errors.
	Answer(ctx context.Context, query string) (string, error)
	GetTotalChunks(ctx context.Context) (int, error)
}

// RAGOptions holds the retrieval policy knobs.
type RAGOptions struct {
	TopK            int
	MaxContextChars int
	SystemPrompt    string
}

// ragServiceImpl holds the dependencies it needs to do its job
type ragServiceImpl struct {
	store     store.VectorStore
	embedder  embeddings.Embedder
	generator llm.Generator
	opts      RAGOptions
	log       *zap.Logger
}

// NewRAGService creates a new RAG service instance
func NewRAGService(vs store.VectorStore, embedder embeddings.Embedder, generator llm.Generator, opts RAGOptions, log *zap.Logger) RAGService {
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	if opts.MaxContextChars <= 0 {
		opts.MaxContextChars = DefaultMaxContextChars
	}
	return &ragServiceImpl{
		store:     vs,
		embedder:  embedder,
		generator: generator,
		opts:      opts,
		log:       log,
	}
}

func (r *ragServiceImpl) GetTotalChunks(ctx context.Context) (int, error) {
	return r.store.Count(ctx)
}

func (r *ragServiceImpl) Answer(ctx context.Context, query string) (string, error) {
	if query == "" {
		return "", ErrEmptyQuery
	}

	chunks, err := r.retrieveDocuments(ctx, query)
	if err != nil {
		return "", err
	}

	contextBlock := BuildContext(chunks, r.opts.MaxContextChars)
	messages := BuildMessages(r.opts.SystemPrompt, contextBlock, query)

	r.log.Debug("sending prompt to generator",
		zap.String("provider", r.generator.Name()),
		zap.Int("context_chars", len([]rune(contextBlock))),
	)

	reply, err := r.generator.Chat(ctx, messages)
	if err != nil {
		r.log.Warn("generation failed", zap.String("provider", r.generator.Name()), zap.Error(err))
		return fmt.Sprintf("Error from %s: %v", r.generator.Name(), err), nil
	}
	return llm.ExtractAnswer(reply), nil
}

// retrieveDocuments embeds the query and fetches the nearest chunks. No
// distance threshold is applied: the k nearest are always returned.
func (r *ragServiceImpl) retrieveDocuments(ctx context.Context, query string) ([]models.RetrievedChunk, error) {
	queryEmbedding, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query text: %w", err)
	}

	chunks, err := r.store.Query(ctx, queryEmbedding, r.opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("failed to query vector store: %w", err)
	}
	r.log.Debug("retrieved documents", zap.Int("count", len(chunks)))
	return chunks, nil
}
