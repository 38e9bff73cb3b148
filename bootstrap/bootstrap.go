// Package bootstrap builds the shared collaborators of the query service and
// the indexer from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"go.uber.org/zap"

	"github/itish2003/medchat/config"
	"github/itish2003/medchat/llm"
	"github/itish2003/medchat/store"
)

// NewEmbedder returns the Ollama-backed embedder used at index and query time.
func NewEmbedder(cfg config.EmbeddingConfig) (embeddings.Embedder, error) {
	client, err := ollama.New(
		ollama.WithModel(cfg.Model),
		ollama.WithServerURL(cfg.OllamaBaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama embedding client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(cfg.BatchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}

// NewVectorStore opens the configured collection. embedder is handed to the
// chroma backend so server-side text embedding uses the same model.
func NewVectorStore(ctx context.Context, cfg config.StoreConfig, embedder embeddings.Embedder, log *zap.Logger) (store.VectorStore, error) {
	log.Info("opening vector store",
		zap.String("backend", cfg.Backend),
		zap.String("collection", cfg.Collection),
	)

	switch cfg.Backend {
	case "chroma", "":
		if cfg.PersistDir != config.DefaultPersistDir {
			log.Warn("CHROMA_PERSIST_DIR is ignored by the chroma backend; the Chroma server owns persistence",
				zap.String("persist_dir", cfg.PersistDir),
				zap.String("chroma_url", cfg.ChromaURL),
			)
		}
		return store.NewChromaStore(ctx, cfg.ChromaURL, cfg.Collection, embedder, log)
	case "local":
		log.Info("local collection file", zap.String("persist_dir", cfg.PersistDir))
		return store.OpenLocalStore(cfg.PersistDir, cfg.Collection)
	case "pgvector":
		return store.NewPgVectorStore(ctx, cfg.DatabaseURL, cfg.Collection)
	default:
		return nil, fmt.Errorf("unknown vector store backend: %s", cfg.Backend)
	}
}

// NewGenerator returns the chat-completion client for the configured provider.
func NewGenerator(ctx context.Context, cfg config.LLMConfig) (llm.Generator, error) {
	switch cfg.Provider {
	case "ollama", "":
		return llm.NewOllamaGenerator(&http.Client{Timeout: cfg.Timeout}, cfg.OllamaBaseURL, cfg.Model), nil
	case "openai":
		return llm.NewOpenAIGenerator(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel), nil
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY must be set for the gemini provider")
		}
		return llm.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}
