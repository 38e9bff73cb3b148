package models

// Chunk is a unit of persisted text written by the indexer.
type Chunk struct {
	ID        string                 `json:"id"`
	Text      string                 `json:"text"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Embedding []float32              `json:"embedding,omitempty"`
}

// RetrievedChunk is one similarity-search hit, most similar first.
type RetrievedChunk struct {
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Metadata keys written by the indexer.
const (
	MetadataSource  = "source"
	MetadataChunkID = "chunk_id"
)
