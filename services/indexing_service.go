package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
	"go.uber.org/zap"

	"github/itish2003/medchat/models"
	"github/itish2003/medchat/store"
)

// ErrNoChunks is returned when the data directory produced nothing to index.
var ErrNoChunks = errors.New("no text chunks produced from data directory")

// ProgressFunc receives human-readable progress lines.
type ProgressFunc func(format string, args ...interface{})

// IndexingService loads, chunks, embeds and persists documents.
type IndexingService struct {
	loader   *DocumentLoader
	splitter textsplitter.TextSplitter
	embedder embeddings.Embedder
	store    store.VectorStore
	progress ProgressFunc
	log      *zap.Logger
}

// NewIndexingService creates a new indexing service. progress may be nil.
func NewIndexingService(loader *DocumentLoader, splitter textsplitter.TextSplitter, embedder embeddings.Embedder, vs store.VectorStore, progress ProgressFunc, log *zap.Logger) *IndexingService {
	if progress == nil {
		progress = func(string, ...interface{}) {}
	}
	return &IndexingService{
		loader:   loader,
		splitter: splitter,
		embedder: embedder,
		store:    vs,
		progress: progress,
		log:      log,
	}
}

// NewRecursiveSplitter is the chunking strategy used by the indexer.
func NewRecursiveSplitter(chunkSize, chunkOverlap int) textsplitter.TextSplitter {
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)
}

// BuildIndex rebuilds the collection from dataDir and returns the number of
// chunks written. Any failure aborts the run. The collection is replaced in
// place only after every chunk has been embedded.
func (s *IndexingService) BuildIndex(ctx context.Context, dataDir string) (int, error) {
	s.progress("Loading documents from %s ...", dataDir)
	docs, err := s.loader.LoadDirectory(dataDir)
	if err != nil {
		return 0, fmt.Errorf("failed to load documents: %w", err)
	}
	s.log.Info("loaded documents", zap.String("dir", dataDir), zap.Int("documents", len(docs)))

	chunks, err := s.SplitDocuments(FilterToMinimalDocs(docs))
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, ErrNoChunks
	}
	s.progress("Split %d documents into %d chunks", len(docs), len(chunks))

	s.progress("Embedding %d chunks ...", len(chunks))
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}

	s.progress("Creating/updating collection and persisting embeddings ...")
	if err := s.store.Replace(ctx, chunks); err != nil {
		return 0, fmt.Errorf("failed to persist chunks: %w", err)
	}

	s.log.Info("index rebuilt", zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}

// SplitDocuments splits every document and assigns chunk_id as the position
// in the flattened chunk sequence. Blank chunks are skipped.
func (s *IndexingService) SplitDocuments(docs []schema.Document) ([]models.Chunk, error) {
	var chunks []models.Chunk
	for _, doc := range docs {
		if strings.TrimSpace(doc.PageContent) == "" {
			continue
		}
		texts, err := s.splitter.SplitText(doc.PageContent)
		if err != nil {
			return nil, fmt.Errorf("failed to split %v: %w", doc.Metadata["source"], err)
		}
		for _, text := range texts {
			if strings.TrimSpace(text) == "" {
				continue
			}
			chunkID := len(chunks)
			metadata := make(map[string]interface{}, len(doc.Metadata)+1)
			for k, v := range doc.Metadata {
				metadata[k] = v
			}
			metadata[models.MetadataChunkID] = chunkID
			chunks = append(chunks, models.Chunk{
				ID:       fmt.Sprintf("chunk-%d", chunkID),
				Text:     text,
				Metadata: metadata,
			})
		}
	}
	return chunks, nil
}

// WatchDirectory rebuilds the index whenever a supported file under dirPath
// (nested folders included) is created, written, removed or renamed. Events
// arriving within debounce of each other trigger a single rebuild. It blocks
// until ctx is cancelled.
func (s *IndexingService) WatchDirectory(ctx context.Context, dirPath string, debounce time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watchTree(watcher, dirPath); err != nil {
		return err
	}
	s.log.Info("watching directory", zap.String("dir", dirPath), zap.Int("folders", len(watcher.WatchList())))

	var pending <-chan time.Time
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) && isDir(event.Name) {
				if err := watchTree(watcher, event.Name); err != nil {
					s.log.Warn("could not watch new folder", zap.String("dir", event.Name), zap.Error(err))
				}
				pending = time.After(debounce)
				continue
			}
			if !isSupportedFile(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				s.log.Info("watcher event", zap.String("file", event.Name), zap.String("op", event.Op.String()))
				pending = time.After(debounce)
			}
		case <-pending:
			pending = nil
			s.progress("Change detected in %s, rebuilding index ...", dirPath)
			n, err := s.BuildIndex(ctx, dirPath)
			if err != nil {
				s.log.Error("re-index failed", zap.Error(err))
				continue
			}
			s.progress("Done. %d chunks stored.", n)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Error("watcher error", zap.Error(err))
		case <-ctx.Done():
			s.log.Info("watcher stopped")
			return nil
		}
	}
}

// watchTree adds root and every folder below it to watcher.
func watchTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		if !d.IsDir() {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
