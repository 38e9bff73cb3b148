package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github/itish2003/medchat/models"
)

const fakeChromaDBPath = "/api/v2/tenants/default_tenant/databases/default_database/"

type fakeChromaRecord struct {
	document  string
	metadata  map[string]interface{}
	embedding []float32
}

type fakeChromaCollection struct {
	id      string
	name    string
	records map[string]fakeChromaRecord
	order   []string
}

// fakeChroma is an in-memory Chroma v2 server. Every created collection gets
// a fresh ID, like the real server.
type fakeChroma struct {
	mu         sync.Mutex
	nextID     int
	byName     map[string]*fakeChromaCollection
	byID       map[string]*fakeChromaCollection
	upsertReqs int
	deleteReqs int
	failUpsert bool
	server     *httptest.Server
}

func newFakeChroma(t *testing.T) *fakeChroma {
	t.Helper()
	f := &fakeChroma{
		byName: make(map[string]*fakeChromaCollection),
		byID:   make(map[string]*fakeChromaCollection),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeChroma) collectionID(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.byName[name]; ok {
		return c.id
	}
	return ""
}

func (f *fakeChroma) requests() (upserts, deletes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upsertReqs, f.deleteReqs
}

func (f *fakeChroma) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.URL.Path == "/api/v2/pre-flight-checks" {
		writeFakeJSON(w, map[string]interface{}{"max_batch_size": 1000})
		return
	}
	rest, ok := strings.CutPrefix(r.URL.Path, fakeChromaDBPath)
	if !ok {
		fakeNotFound(w, "unknown path "+r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1 && r.Method == http.MethodPost:
		f.create(w, r)
	case len(parts) == 2 && r.Method == http.MethodGet:
		c, ok := f.byName[parts[1]]
		if !ok {
			fakeNotFound(w, fmt.Sprintf("Collection %s does not exist.", parts[1]))
			return
		}
		writeFakeJSON(w, fakeCollectionModel(c))
	case len(parts) == 2 && r.Method == http.MethodDelete:
		if c, ok := f.byName[parts[1]]; ok {
			delete(f.byName, c.name)
			delete(f.byID, c.id)
		}
		writeFakeJSON(w, map[string]interface{}{})
	case len(parts) == 3:
		c, ok := f.byID[parts[1]]
		if !ok {
			fakeNotFound(w, fmt.Sprintf("Collection %s does not exist.", parts[1]))
			return
		}
		f.collectionOp(w, r, c, parts[2])
	default:
		fakeNotFound(w, "unknown route "+r.URL.Path)
	}
}

func (f *fakeChroma) create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c, ok := f.byName[req.Name]
	if !ok {
		f.nextID++
		c = &fakeChromaCollection{
			id:      fmt.Sprintf("00000000-0000-0000-0000-%012d", f.nextID),
			name:    req.Name,
			records: make(map[string]fakeChromaRecord),
		}
		f.byName[c.name] = c
		f.byID[c.id] = c
	}
	writeFakeJSON(w, fakeCollectionModel(c))
}

func (f *fakeChroma) collectionOp(w http.ResponseWriter, r *http.Request, c *fakeChromaCollection, op string) {
	switch op {
	case "count":
		w.Write([]byte(strconv.Itoa(len(c.order))))
	case "upsert":
		f.upsertReqs++
		if f.failUpsert {
			http.Error(w, `{"error":"InternalError","message":"disk full"}`, http.StatusInternalServerError)
			return
		}
		var req struct {
			IDs        []string                 `json:"ids"`
			Documents  []string                 `json:"documents"`
			Metadatas  []map[string]interface{} `json:"metadatas"`
			Embeddings [][]float32              `json:"embeddings"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for i, id := range req.IDs {
			if _, exists := c.records[id]; !exists {
				c.order = append(c.order, id)
			}
			c.records[id] = fakeChromaRecord{document: req.Documents[i], metadata: req.Metadatas[i], embedding: req.Embeddings[i]}
		}
		writeFakeJSON(w, map[string]interface{}{})
	case "get":
		var req struct {
			Limit  int `json:"limit"`
			Offset int `json:"offset"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ids := c.order[min(req.Offset, len(c.order)):]
		if req.Limit > 0 && len(ids) > req.Limit {
			ids = ids[:req.Limit]
		}
		metadatas := make([]map[string]interface{}, len(ids))
		for i, id := range ids {
			metadatas[i] = c.records[id].metadata
		}
		writeFakeJSON(w, map[string]interface{}{"ids": ids, "metadatas": metadatas})
	case "delete":
		f.deleteReqs++
		var req struct {
			IDs []string `json:"ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, id := range req.IDs {
			delete(c.records, id)
		}
		kept := c.order[:0]
		for _, id := range c.order {
			if _, ok := c.records[id]; ok {
				kept = append(kept, id)
			}
		}
		c.order = kept
		writeFakeJSON(w, map[string]interface{}{})
	case "query":
		var req struct {
			QueryEmbeddings [][]float32 `json:"query_embeddings"`
			NResults        int         `json:"n_results"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ids := append([]string(nil), c.order...)
		sort.SliceStable(ids, func(i, j int) bool {
			return cosine(req.QueryEmbeddings[0], c.records[ids[i]].embedding) >
				cosine(req.QueryEmbeddings[0], c.records[ids[j]].embedding)
		})
		if len(ids) > req.NResults {
			ids = ids[:req.NResults]
		}
		docs := make([]string, len(ids))
		metadatas := make([]map[string]interface{}, len(ids))
		for i, id := range ids {
			docs[i] = c.records[id].document
			metadatas[i] = c.records[id].metadata
		}
		writeFakeJSON(w, map[string]interface{}{
			"ids":       [][]string{ids},
			"documents": [][]string{docs},
			"metadatas": [][]map[string]interface{}{metadatas},
		})
	default:
		fakeNotFound(w, "unknown collection operation "+op)
	}
}

func fakeCollectionModel(c *fakeChromaCollection) map[string]interface{} {
	return map[string]interface{}{
		"id":       c.id,
		"name":     c.name,
		"tenant":   "default_tenant",
		"database": "default_database",
	}
}

func writeFakeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func fakeNotFound(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(map[string]string{"error": "NotFoundError", "message": msg})
}

// stubEmbedder maps every text to the same two-dimensional vector.
type stubEmbedder struct{}

func (stubEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func openChroma(t *testing.T, f *fakeChroma) *ChromaStore {
	t.Helper()
	s, err := NewChromaStore(context.Background(), f.server.URL, "medical-chatbot", stubEmbedder{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func manyChunks(n int) []models.Chunk {
	chunks := make([]models.Chunk, n)
	for i := range chunks {
		chunks[i] = models.Chunk{
			ID:        fmt.Sprintf("chunk-%d", i),
			Text:      fmt.Sprintf("passage %d", i),
			Metadata:  map[string]interface{}{"source": "data/handbook.pdf", "chunk_id": i},
			Embedding: []float32{float32(i + 1), 1},
		}
	}
	return chunks
}

func TestChromaStore_QueryRoundTripsMetadata(t *testing.T) {
	ctx := context.Background()
	s := openChroma(t, newFakeChroma(t))
	require.NoError(t, s.Upsert(ctx, testChunks()))

	got, err := s.Query(ctx, []float32{0.9, 0.1}, 2)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "Aspirin treats headaches.", got[0].Text)
	assert.Equal(t, "Paracetamol lowers fever.", got[1].Text)
	assert.Equal(t, "doc1", got[0].Metadata["source"])
	assert.Equal(t, float64(0), got[0].Metadata["chunk_id"])
	assert.Equal(t, float64(2), got[1].Metadata["chunk_id"])
}

func TestChromaStore_QueryWithoutSourceKeepsChunkID(t *testing.T) {
	ctx := context.Background()
	s := openChroma(t, newFakeChroma(t))
	require.NoError(t, s.Upsert(ctx, []models.Chunk{
		{ID: "chunk-7", Text: "Orphan passage.", Metadata: map[string]interface{}{"chunk_id": 7}, Embedding: []float32{1, 0}},
	}))

	got, err := s.Query(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.NotContains(t, got[0].Metadata, "source")
	assert.Equal(t, float64(7), got[0].Metadata["chunk_id"])
}

func TestChromaStore_UpsertBatches(t *testing.T) {
	ctx := context.Background()
	f := newFakeChroma(t)
	s := openChroma(t, f)

	require.NoError(t, s.Upsert(ctx, manyChunks(250)))

	upserts, _ := f.requests()
	assert.Equal(t, 3, upserts)
	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 250, count)
}

func TestChromaStore_ReplaceRemovesStaleIDs(t *testing.T) {
	ctx := context.Background()
	f := newFakeChroma(t)
	s := openChroma(t, f)
	require.NoError(t, s.Upsert(ctx, manyChunks(250)))
	idBefore := f.collectionID("medical-chatbot")

	require.NoError(t, s.Replace(ctx, testChunks()))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, idBefore, f.collectionID("medical-chatbot"), "collection must be kept, not recreated")
	_, deletes := f.requests()
	assert.Equal(t, 3, deletes)

	got, err := s.Query(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, "Ibuprofen is an NSAID.", got[0].Text)
}

func TestChromaStore_ReaderSurvivesReindex(t *testing.T) {
	ctx := context.Background()
	f := newFakeChroma(t)
	reader := openChroma(t, f)
	writer := openChroma(t, f)
	require.NoError(t, writer.Replace(ctx, manyChunks(5)))

	_, err := reader.Query(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)

	require.NoError(t, writer.Replace(ctx, testChunks()))

	got, err := reader.Query(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Aspirin treats headaches.", got[0].Text)

	count, err := reader.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestChromaStore_ReaderFollowsRecreatedCollection(t *testing.T) {
	ctx := context.Background()
	f := newFakeChroma(t)
	reader := openChroma(t, f)
	oldID := f.collectionID("medical-chatbot")

	// Another client drops and recreates the collection under the same name.
	other := openChroma(t, f)
	require.NoError(t, other.client.DeleteCollection(ctx, "medical-chatbot"))
	require.NoError(t, other.getOrCreateCollection(ctx))
	require.NoError(t, other.Upsert(ctx, testChunks()))
	require.NotEqual(t, oldID, f.collectionID("medical-chatbot"))

	count, err := reader.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	got, err := reader.Query(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, "Ibuprofen is an NSAID.", got[0].Text)
}

func TestChromaStore_FailedReplaceKeepsPreviousContents(t *testing.T) {
	ctx := context.Background()
	f := newFakeChroma(t)
	s := openChroma(t, f)
	require.NoError(t, s.Replace(ctx, testChunks()))

	f.mu.Lock()
	f.failUpsert = true
	f.mu.Unlock()

	err := s.Replace(ctx, manyChunks(10))
	require.Error(t, err)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestNewChromaStore_RequiresEmbedder(t *testing.T) {
	_, err := NewChromaStore(context.Background(), newFakeChroma(t).server.URL, "medical-chatbot", nil, zap.NewNop())
	assert.Error(t, err)
}

func TestEmbeddingFunction_UsesEmbedder(t *testing.T) {
	ef := NewEmbeddingFunction(stubEmbedder{})

	got, err := ef.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []float32{1, 0}, got[0].ContentAsFloat32())

	q, err := ef.EmbedQuery(context.Background(), "headache")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, q.ContentAsFloat32())
}
