package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github/itish2003/medchat/bootstrap"
	"github/itish2003/medchat/config"
	"github/itish2003/medchat/controller"
	"github/itish2003/medchat/logger"
	"github/itish2003/medchat/services"
)

func main() {
	cfg := config.Load()

	zapLog, err := logger.New(cfg.Log.Level, cfg.Log.FilePath, cfg.IsProduction())
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer zapLog.Sync()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	embedder, err := bootstrap.NewEmbedder(cfg.Embedding)
	if err != nil {
		zapLog.Fatal("Failed to create embedder", zap.Error(err))
	}

	vectorStore, err := bootstrap.NewVectorStore(ctx, cfg.Store, embedder, zapLog)
	if err != nil {
		zapLog.Fatal("Failed to open vector store", zap.Error(err))
	}
	defer func() {
		if err := vectorStore.Close(); err != nil {
			zapLog.Warn("Failed to close vector store", zap.Error(err))
		}
	}()

	generator, err := bootstrap.NewGenerator(ctx, cfg.LLM)
	if err != nil {
		zapLog.Fatal("Failed to create generator", zap.Error(err))
	}
	zapLog.Info("Generation backend ready",
		zap.String("provider", generator.Name()),
		zap.String("embed_model", cfg.Embedding.Model),
	)

	ragService := services.NewRAGService(vectorStore, embedder, generator, services.RAGOptions{
		TopK:            cfg.Retrieval.TopK,
		MaxContextChars: cfg.Retrieval.MaxContextChars,
		SystemPrompt:    cfg.LLM.SystemPrompt,
	}, zapLog)
	ragController := controller.NewRAGController(ragService, zapLog)

	router := controller.SetupRouter(ragController, zapLog)

	port := cfg.App.Port
	zapLog.Info("Server starting",
		zap.String("url", "http://localhost:"+port),
		zap.String("chat", "POST /get"),
		zap.String("health", "GET /health"),
	)

	if err := router.Run(":" + port); err != nil {
		zapLog.Fatal("Failed to start server", zap.Error(err))
	}
}
