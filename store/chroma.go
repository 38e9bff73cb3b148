package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	chhttp "github.com/amikos-tech/chroma-go/pkg/commons/http"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"go.uber.org/zap"

	"github/itish2003/medchat/models"
)

// chromaBatchSize keeps each upsert, get page and delete well under the
// server's max batch size.
const chromaBatchSize = 100

// ChromaStore is a collection on a Chroma server. The server owns the
// persist directory; this client only addresses the collection by name.
type ChromaStore struct {
	client chromago.Client
	name   string
	ef     embeddings.EmbeddingFunction
	log    *zap.Logger

	mu         sync.RWMutex
	collection chromago.Collection
}

var _ VectorStore = (*ChromaStore)(nil)

// NewChromaStore gets or creates the named collection. Text embedding on the
// Chroma side goes through embedder, the same model the indexer uses.
func NewChromaStore(ctx context.Context, baseURL, collectionName string, embedder lcembeddings.Embedder, log *zap.Logger) (*ChromaStore, error) {
	if embedder == nil {
		return nil, errors.New("chroma store needs an embedder")
	}
	client, err := chromago.NewHTTPClient(chromago.WithBaseURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create chroma client: %w", err)
	}

	s := &ChromaStore{
		client: client,
		name:   collectionName,
		ef:     NewEmbeddingFunction(embedder),
		log:    log,
	}
	if err := s.getOrCreateCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

func (s *ChromaStore) getOrCreateCollection(ctx context.Context) error {
	s.log.Info("getting or creating chroma collection", zap.String("collection", s.name))

	collection, err := s.client.GetOrCreateCollection(
		ctx,
		s.name,
		chromago.WithEmbeddingFunctionCreate(s.ef),
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("description", "medical chatbot knowledge base"),
				chromago.NewStringAttribute("created_by", "medchat-indexer"),
			),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to get or create collection %q: %w", s.name, err)
	}
	s.setCollection(collection)
	return nil
}

func (s *ChromaStore) current() chromago.Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collection
}

func (s *ChromaStore) setCollection(c chromago.Collection) {
	s.mu.Lock()
	s.collection = c
	s.mu.Unlock()
}

// withCollection runs fn against the cached collection handle. Chroma
// addresses collections by ID, so when another process drops and recreates
// the collection the handle goes stale; on a 404 the handle is looked up again
// by name and fn runs once more.
func (s *ChromaStore) withCollection(ctx context.Context, fn func(chromago.Collection) error) error {
	err := fn(s.current())
	if !isNotFound(err) {
		return err
	}

	s.log.Warn("chroma collection handle is stale, looking it up again",
		zap.String("collection", s.name), zap.Error(err))

	s.mu.Lock()
	collection, getErr := s.client.GetCollection(ctx, s.name, chromago.WithEmbeddingFunctionGet(s.ef))
	if getErr == nil {
		s.collection = collection
	}
	s.mu.Unlock()
	if getErr != nil {
		return fmt.Errorf("collection %q not found: %w", s.name, getErr)
	}
	return fn(collection)
}

func isNotFound(err error) bool {
	var chErr *chhttp.ChromaError
	return errors.As(err, &chErr) && chErr.ErrorCode == http.StatusNotFound
}

func (s *ChromaStore) Upsert(ctx context.Context, chunks []models.Chunk) error {
	for start := 0; start < len(chunks); start += chromaBatchSize {
		end := min(start+chromaBatchSize, len(chunks))
		batch := chunks[start:end]

		ids := make([]chromago.DocumentID, len(batch))
		texts := make([]string, len(batch))
		vectors := make([]embeddings.Embedding, len(batch))
		metadatas := make([]chromago.DocumentMetadata, len(batch))
		for i, ch := range batch {
			ids[i] = chromago.DocumentID(ch.ID)
			texts[i] = ch.Text
			vectors[i] = embeddings.NewEmbeddingFromFloat32(ch.Embedding)
			metadatas[i] = toDocumentMetadata(ch.Metadata)
		}

		err := s.withCollection(ctx, func(c chromago.Collection) error {
			return c.Upsert(ctx,
				chromago.WithIDs(ids...),
				chromago.WithTexts(texts...),
				chromago.WithEmbeddings(vectors...),
				chromago.WithMetadatas(metadatas...),
			)
		})
		if err != nil {
			return fmt.Errorf("failed to upsert chunks %d-%d to chromadb: %w", start, end-1, err)
		}
	}
	return nil
}

// Replace upserts chunks and then deletes every other ID in the collection.
// The collection itself is never dropped, so readers holding a handle keep
// working, and a failed upsert leaves the previous contents in place.
func (s *ChromaStore) Replace(ctx context.Context, chunks []models.Chunk) error {
	if err := s.Upsert(ctx, chunks); err != nil {
		return err
	}

	keep := make(map[chromago.DocumentID]struct{}, len(chunks))
	for _, ch := range chunks {
		keep[chromago.DocumentID(ch.ID)] = struct{}{}
	}
	stale, err := s.staleIDs(ctx, keep)
	if err != nil {
		return err
	}

	for start := 0; start < len(stale); start += chromaBatchSize {
		batch := stale[start:min(start+chromaBatchSize, len(stale))]
		err := s.withCollection(ctx, func(c chromago.Collection) error {
			return c.Delete(ctx, chromago.WithIDsDelete(batch...))
		})
		if err != nil {
			return fmt.Errorf("failed to delete stale chunks from chromadb: %w", err)
		}
	}

	s.log.Info("replaced chroma collection contents",
		zap.String("collection", s.name),
		zap.Int("chunks", len(chunks)),
		zap.Int("removed", len(stale)),
	)
	return nil
}

// staleIDs pages through the collection and returns the IDs not in keep.
func (s *ChromaStore) staleIDs(ctx context.Context, keep map[chromago.DocumentID]struct{}) ([]chromago.DocumentID, error) {
	var stale []chromago.DocumentID
	for offset := 0; ; offset += chromaBatchSize {
		var page chromago.GetResult
		err := s.withCollection(ctx, func(c chromago.Collection) error {
			var err error
			page, err = c.Get(ctx,
				chromago.WithIncludeGet(chromago.IncludeMetadatas),
				chromago.WithLimitGet(chromaBatchSize),
				chromago.WithOffsetGet(offset),
			)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list chromadb ids: %w", err)
		}

		ids := page.GetIDs()
		for _, id := range ids {
			if _, ok := keep[id]; !ok {
				stale = append(stale, id)
			}
		}
		if len(ids) < chromaBatchSize {
			return stale, nil
		}
	}
}

func (s *ChromaStore) Query(ctx context.Context, embedding []float32, k int) ([]models.RetrievedChunk, error) {
	var results chromago.QueryResult
	err := s.withCollection(ctx, func(c chromago.Collection) error {
		var err error
		results, err = c.Query(
			ctx,
			chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(embedding)),
			chromago.WithNResults(k),
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query chromadb: %w", err)
	}

	var chunks []models.RetrievedChunk
	documentGroups := results.GetDocumentsGroups()
	metadataGroups := results.GetMetadatasGroups()
	if len(documentGroups) == 0 {
		return chunks, nil
	}

	for i, doc := range documentGroups[0] {
		var metadataMap map[string]interface{}
		if len(metadataGroups) > 0 && len(metadataGroups[0]) > i && metadataGroups[0][i] != nil {
			metadataMap = fromDocumentMetadata(metadataGroups[0][i], s.log)
		}
		chunks = append(chunks, models.RetrievedChunk{
			Text:     doc.ContentString(),
			Metadata: metadataMap,
		})
	}
	return chunks, nil
}

func (s *ChromaStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.withCollection(ctx, func(c chromago.Collection) error {
		var err error
		count, err = c.Count(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count items in collection: %w", err)
	}
	return count, nil
}

func (s *ChromaStore) Close() error {
	return s.client.Close()
}

func toDocumentMetadata(meta map[string]interface{}) chromago.DocumentMetadata {
	attrs := make([]*chromago.MetaAttribute, 0, len(meta))
	for key, value := range meta {
		switch v := value.(type) {
		case string:
			attrs = append(attrs, chromago.NewStringAttribute(key, v))
		case int:
			attrs = append(attrs, chromago.NewIntAttribute(key, int64(v)))
		case int64:
			attrs = append(attrs, chromago.NewIntAttribute(key, v))
		case float64:
			attrs = append(attrs, chromago.NewFloatAttribute(key, v))
		case float32:
			attrs = append(attrs, chromago.NewFloatAttribute(key, float64(v)))
		case bool:
			attrs = append(attrs, chromago.NewBoolAttribute(key, v))
		default:
			attrs = append(attrs, chromago.NewStringAttribute(key, fmt.Sprint(v)))
		}
	}
	return chromago.NewDocumentMetadata(attrs...)
}

// fromDocumentMetadata converts through JSON; DocumentMetadata exposes no
// accessor for the whole attribute set.
func fromDocumentMetadata(meta chromago.DocumentMetadata, log *zap.Logger) map[string]interface{} {
	metadataMap := make(map[string]interface{})
	jsonBytes, err := json.Marshal(meta)
	if err != nil {
		log.Warn("could not marshal chroma metadata", zap.Error(err))
		return metadataMap
	}
	if err := json.Unmarshal(jsonBytes, &metadataMap); err != nil {
		log.Warn("could not unmarshal chroma metadata", zap.Error(err))
		return make(map[string]interface{})
	}
	return metadataMap
}
