// Command indexer loads the documents under DATA_DIR, splits and embeds them
// and rebuilds the configured vector store collection.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github/itish2003/medchat/bootstrap"
	"github/itish2003/medchat/config"
	"github/itish2003/medchat/logger"
	"github/itish2003/medchat/services"
)

const watchDebounce = 2 * time.Second

var (
	info    = color.New(color.FgCyan).PrintfFunc()
	success = color.New(color.FgGreen, color.Bold).PrintfFunc()
	failure = color.New(color.FgRed, color.Bold).PrintfFunc()
)

func main() {
	if err := run(); err != nil {
		failure("Indexing failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	zapLog, err := logger.New(cfg.Log.Level, cfg.Log.FilePath, cfg.IsProduction())
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer zapLog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	extractor, err := services.NewPageExtractor(cfg.Index.UnidocLicenseKey)
	if err != nil {
		return err
	}

	embedder, err := bootstrap.NewEmbedder(cfg.Embedding)
	if err != nil {
		return err
	}

	vectorStore, err := bootstrap.NewVectorStore(ctx, cfg.Store, embedder, zapLog)
	if err != nil {
		return err
	}
	defer func() {
		if err := vectorStore.Close(); err != nil {
			zapLog.Warn("Failed to close vector store", zap.Error(err))
		}
	}()

	indexer := services.NewIndexingService(
		services.NewDocumentLoader(extractor),
		services.NewRecursiveSplitter(cfg.Index.ChunkSize, cfg.Index.ChunkOverlap),
		embedder,
		vectorStore,
		func(format string, args ...interface{}) { info(format+"\n", args...) },
		zapLog,
	)

	info("Using embedding model: %s\n", cfg.Embedding.Model)

	count, err := indexer.BuildIndex(ctx, cfg.Index.DataDir)
	if err != nil {
		return err
	}
	success("Done. %d chunks stored in: %s\n", count, storeLocation(cfg.Store))

	if !cfg.Index.Watch {
		return nil
	}

	info("Watching %s for changes (Ctrl+C to stop) ...\n", cfg.Index.DataDir)
	if err := indexer.WatchDirectory(ctx, cfg.Index.DataDir, watchDebounce); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func storeLocation(cfg config.StoreConfig) string {
	switch cfg.Backend {
	case "local":
		return fmt.Sprintf("%s (collection %s)", cfg.PersistDir, cfg.Collection)
	case "pgvector":
		return fmt.Sprintf("postgres (collection %s)", cfg.Collection)
	default:
		return fmt.Sprintf("%s (collection %s)", cfg.ChromaURL, cfg.Collection)
	}
}
