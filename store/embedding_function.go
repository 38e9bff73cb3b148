package store

import (
	"context"
	"fmt"

	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	lcembeddings "github.com/tmc/langchaingo/embeddings"
)

// embeddingFunction lets Chroma embed text with the same langchaingo embedder
// the indexer and query service use.
type embeddingFunction struct {
	embedder lcembeddings.Embedder
}

var _ embeddings.EmbeddingFunction = (*embeddingFunction)(nil)

// NewEmbeddingFunction adapts a langchaingo embedder to Chroma's
// EmbeddingFunction.
func NewEmbeddingFunction(embedder lcembeddings.Embedder) embeddings.EmbeddingFunction {
	return &embeddingFunction{embedder: embedder}
}

func (e *embeddingFunction) EmbedDocuments(ctx context.Context, texts []string) ([]embeddings.Embedding, error) {
	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed documents: %w", err)
	}
	out := make([]embeddings.Embedding, len(vectors))
	for i, v := range vectors {
		out[i] = embeddings.NewEmbeddingFromFloat32(v)
	}
	return out, nil
}

func (e *embeddingFunction) EmbedQuery(ctx context.Context, text string) (embeddings.Embedding, error) {
	vector, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return embeddings.NewEmbeddingFromFloat32(vector), nil
}
