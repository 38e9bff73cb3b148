package store

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github/itish2003/medchat/models"
)

// chunkRecord is one row of the chunks table. Collections share the table and
// are told apart by the Collection column.
type chunkRecord struct {
	Collection string            `gorm:"primaryKey;type:text"`
	ID         string            `gorm:"primaryKey;type:text"`
	Text       string            `gorm:"type:text"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb"`
	Embedding  pgvector.Vector   `gorm:"type:vector"`
	CreatedAt  time.Time         `gorm:"autoCreateTime"`
}

func (chunkRecord) TableName() string {
	return "chunks"
}

// PgVectorStore keeps collections in Postgres with the pgvector extension and
// ranks by cosine distance.
type PgVectorStore struct {
	db         *gorm.DB
	collection string
}

var _ VectorStore = (*PgVectorStore)(nil)

func NewPgVectorStore(ctx context.Context, dsn, collection string) (*PgVectorStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL must be set for the pgvector store")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			gormlogger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  gormlogger.Warn,
				IgnoreRecordNotFoundError: true,
				ParameterizedQueries:      true,
			},
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	return newPgVectorStore(ctx, db, collection)
}

func newPgVectorStore(ctx context.Context, db *gorm.DB, collection string) (*PgVectorStore, error) {
	if err := db.WithContext(ctx).Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, fmt.Errorf("failed to enable pgvector extension: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&chunkRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate chunks table: %w", err)
	}
	return &PgVectorStore{db: db, collection: collection}, nil
}

func (s *PgVectorStore) Upsert(ctx context.Context, chunks []models.Chunk) error {
	return s.upsert(s.db.WithContext(ctx), chunks)
}

func (s *PgVectorStore) upsert(tx *gorm.DB, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	records := make([]chunkRecord, len(chunks))
	for i, ch := range chunks {
		records[i] = chunkRecord{
			Collection: s.collection,
			ID:         ch.ID,
			Text:       ch.Text,
			Metadata:   datatypes.JSONMap(ch.Metadata),
			Embedding:  pgvector.NewVector(ch.Embedding),
		}
	}

	err := tx.
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection"}, {Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"text", "metadata", "embedding"}),
		}).
		CreateInBatches(records, 100).Error
	if err != nil {
		return fmt.Errorf("failed to upsert chunks: %w", err)
	}
	return nil
}

// Replace upserts chunks and deletes the collection's other rows in one
// transaction.
func (s *PgVectorStore) Replace(ctx context.Context, chunks []models.Chunk) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.upsert(tx, chunks); err != nil {
			return err
		}

		stale := tx.Where("collection = ?", s.collection)
		if len(chunks) > 0 {
			ids := make([]string, len(chunks))
			for i, ch := range chunks {
				ids[i] = ch.ID
			}
			stale = stale.Where("id NOT IN ?", ids)
		}
		if err := stale.Delete(&chunkRecord{}).Error; err != nil {
			return fmt.Errorf("failed to delete stale chunks: %w", err)
		}
		return nil
	})
}

func (s *PgVectorStore) Query(ctx context.Context, embedding []float32, k int) ([]models.RetrievedChunk, error) {
	var records []chunkRecord
	err := s.db.WithContext(ctx).
		Where("collection = ?", s.collection).
		Order(gorm.Expr("embedding <=> ?", pgvector.NewVector(embedding))).
		Limit(k).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	out := make([]models.RetrievedChunk, len(records))
	for i, r := range records {
		out[i] = models.RetrievedChunk{Text: r.Text, Metadata: map[string]interface{}(r.Metadata)}
	}
	return out, nil
}

func (s *PgVectorStore) Count(ctx context.Context) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&chunkRecord{}).Where("collection = ?", s.collection).Count(&count).Error
	return int(count), err
}

func (s *PgVectorStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
