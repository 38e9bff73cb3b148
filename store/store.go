package store

import (
	"context"
	"errors"

	"github/itish2003/medchat/models"
)

// ErrDimensionMismatch is returned when a query vector does not match the
// dimension of the stored embeddings.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// VectorStore is a named, persistent collection of chunks. The indexer is the
// only writer; the query service only calls Query and Count.
type VectorStore interface {
	// Upsert inserts chunks or replaces chunks with the same ID.
	Upsert(ctx context.Context, chunks []models.Chunk) error
	// Query returns up to k chunks nearest to embedding, most similar first.
	Query(ctx context.Context, embedding []float32, k int) ([]models.RetrievedChunk, error)
	Count(ctx context.Context) (int, error)
	// Replace makes chunks the complete contents of the collection, keeping
	// the collection itself so concurrent readers are not interrupted.
	Replace(ctx context.Context, chunks []models.Chunk) error
	Close() error
}
