package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github/itish2003/medchat/models"
)

// LocalStore keeps a collection in memory and persists it as one JSON file
// per collection under the persist directory.
type LocalStore struct {
	mu         sync.RWMutex
	collection string
	path       string
	chunks     []models.Chunk
	index      map[string]int
}

var _ VectorStore = (*LocalStore)(nil)

type localCollectionFile struct {
	Collection string         `json:"collection"`
	Chunks     []models.Chunk `json:"chunks"`
}

// OpenLocalStore loads persistDir/<collection>.json if it exists.
func OpenLocalStore(persistDir, collection string) (*LocalStore, error) {
	if collection == "" {
		return nil, errors.New("collection name must not be empty")
	}
	if err := os.MkdirAll(persistDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create persist directory: %w", err)
	}

	s := &LocalStore{
		collection: collection,
		path:       filepath.Join(persistDir, collection+".json"),
		index:      make(map[string]int),
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read collection file: %w", err)
	}

	var file localCollectionFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode collection file %s: %w", s.path, err)
	}
	for _, ch := range file.Chunks {
		s.put(ch)
	}
	return s, nil
}

func (s *LocalStore) put(ch models.Chunk) {
	if i, ok := s.index[ch.ID]; ok {
		s.chunks[i] = ch
		return
	}
	s.index[ch.ID] = len(s.chunks)
	s.chunks = append(s.chunks, ch)
}

func (s *LocalStore) Upsert(ctx context.Context, chunks []models.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range chunks {
		if ch.ID == "" {
			return errors.New("chunk id must not be empty")
		}
		s.put(ch)
	}
	return s.flush()
}

// flush writes the collection to a temp file and renames it into place so a
// crash never leaves a half-written collection behind.
func (s *LocalStore) flush() error {
	data, err := json.Marshal(localCollectionFile{
		Collection: s.collection,
		Chunks:     s.chunks,
	})
	if err != nil {
		return fmt.Errorf("failed to encode collection: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".collection-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write collection: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync collection: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *LocalStore) Query(ctx context.Context, embedding []float32, k int) ([]models.RetrievedChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		chunk models.Chunk
		score float64
	}
	results := make([]scored, 0, len(s.chunks))
	for _, ch := range s.chunks {
		if len(ch.Embedding) != len(embedding) {
			return nil, fmt.Errorf("%w: query has %d, chunk %s has %d", ErrDimensionMismatch, len(embedding), ch.ID, len(ch.Embedding))
		}
		results = append(results, scored{chunk: ch, score: cosine(embedding, ch.Embedding)})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })

	if k > len(results) {
		k = len(results)
	}
	if k < 0 {
		k = 0
	}
	out := make([]models.RetrievedChunk, 0, k)
	for _, r := range results[:k] {
		out = append(out, models.RetrievedChunk{Text: r.chunk.Text, Metadata: r.chunk.Metadata})
	}
	return out, nil
}

func (s *LocalStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

// Replace swaps the in-memory collection and rewrites the file in one rename.
// On a failed write the previous contents stay in memory and on disk.
func (s *LocalStore) Replace(ctx context.Context, chunks []models.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevChunks, prevIndex := s.chunks, s.index
	s.chunks = make([]models.Chunk, 0, len(chunks))
	s.index = make(map[string]int, len(chunks))
	for _, ch := range chunks {
		if ch.ID == "" {
			s.chunks, s.index = prevChunks, prevIndex
			return errors.New("chunk id must not be empty")
		}
		s.put(ch)
	}
	if err := s.flush(); err != nil {
		s.chunks, s.index = prevChunks, prevIndex
		return err
	}
	return nil
}

func (s *LocalStore) Close() error { return nil }

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
