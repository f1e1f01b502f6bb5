package integration

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"ai-docquery-be/internal/entity"
	"ai-docquery-be/internal/repository/specification"
	"ai-docquery-be/internal/repository/unitofwork"
	"ai-docquery-be/pkg/database"
	"ai-docquery-be/pkg/embedding"
	"ai-docquery-be/pkg/store"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const denseDim = 768

func denseVec(seed float32) []float32 {
	v := make([]float32, denseDim)
	v[0] = seed
	v[1] = 1 - seed
	return v
}

func TestGormConnection(t *testing.T) {
	// Load .env from root
	if err := godotenv.Load("../../.env"); err != nil {
		log.Println("No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		t.Skip("Skipping integration test: DB_CONNECTION_STRING not set")
	}

	gormDB, err := database.NewGormDBFromDSN(dsn)
	require.NoError(t, err, "Failed to connect to DB")

	uowFactory := unitofwork.NewRepositoryFactory(gormDB)
	uow := uowFactory.NewUnitOfWork(context.Background())

	assert.NotNil(t, uow.DocumentRepository())
	assert.NotNil(t, uow.DocumentChunkRepository())
	assert.NotNil(t, uow.RecordRepository())
	assert.NotNil(t, uow.QueryLogRepository())

	sqlDB, _ := gormDB.DB()
	assert.NoError(t, sqlDB.Ping())

	ctx := context.Background()
	userId := uuid.New()

	t.Run("Check Table Access", func(t *testing.T) {
		_, err := uow.DocumentRepository().Count(ctx)
		assert.NoError(t, err)

		_, err = uow.DocumentChunkRepository().Count(ctx)
		assert.NoError(t, err)

		_, err = uow.RecordRepository().Count(ctx)
		assert.NoError(t, err)
	})

	t.Run("Transactional Ingest And Vector Search", func(t *testing.T) {
		tx := uowFactory.NewUnitOfWork(ctx)
		require.NoError(t, tx.Begin(ctx))
		defer tx.Rollback()

		doc := &entity.Document{
			UserId:  userId,
			Title:   "Integration Test Document",
			Content: "The quarterly report covers revenue and churn.",
		}
		require.NoError(t, tx.DocumentRepository().Create(ctx, doc))

		sparse := embedding.NewSparseEncoder()
		chunks := []*entity.DocumentChunk{
			{
				Content:    "The quarterly report covers revenue.",
				Dense:      denseVec(0.9),
				Sparse:     sparse.Encode("quarterly report revenue"),
				DocumentId: doc.Id,
				ChunkIndex: 0,
			},
			{
				Content:    "Churn stayed flat in Q2.",
				Dense:      denseVec(0.1),
				Sparse:     sparse.Encode("churn flat q2"),
				DocumentId: doc.Id,
				ChunkIndex: 1,
			},
		}
		require.NoError(t, tx.DocumentChunkRepository().CreateBulk(ctx, chunks))

		scored, err := tx.DocumentChunkRepository().SearchDenseWithScore(ctx, denseVec(0.9), 5, userId, nil)
		require.NoError(t, err)
		require.NotEmpty(t, scored)
		assert.Equal(t, "The quarterly report covers revenue.", scored[0].Chunk.Content)
		assert.Greater(t, scored[0].Similarity, scored[len(scored)-1].Similarity-1e-9)

		// Foreign tenant must see nothing
		foreign, err := tx.DocumentChunkRepository().SearchDenseWithScore(ctx, denseVec(0.9), 5, uuid.New(), nil)
		require.NoError(t, err)
		assert.Empty(t, foreign)

		// A temporal window before the document's timestamp excludes it
		past := &store.MetadataFilter{Temporal: &store.TemporalContext{
			Start: time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2019, 12, 31, 0, 0, 0, 0, time.UTC),
		}}
		outOfWindow, err := tx.DocumentChunkRepository().SearchDenseWithScore(ctx, denseVec(0.9), 5, userId, past)
		require.NoError(t, err)
		assert.Empty(t, outOfWindow)

		// A window around now keeps it
		current := &store.MetadataFilter{Temporal: &store.TemporalContext{
			Start: time.Now().Add(-time.Hour),
			End:   time.Now().Add(time.Hour),
		}}
		inWindow, err := tx.DocumentChunkRepository().SearchDenseWithScore(ctx, denseVec(0.9), 5, userId, current)
		require.NoError(t, err)
		assert.NotEmpty(t, inWindow)
	})

	t.Run("Record Collection Roundtrip", func(t *testing.T) {
		tx := uowFactory.NewUnitOfWork(ctx)
		require.NoError(t, tx.Begin(ctx))
		defer tx.Rollback()

		records := []*entity.Record{
			{UserId: userId, Collection: "orders", Payload: map[string]interface{}{"amount": 12.5}},
			{UserId: userId, Collection: "orders", Payload: map[string]interface{}{"amount": 99.0}},
		}
		require.NoError(t, tx.RecordRepository().CreateBulk(ctx, records))

		rows, err := tx.RecordRepository().FindByCollection(ctx, userId, "orders")
		require.NoError(t, err)
		assert.Len(t, rows, 2)

		found, err := tx.RecordRepository().FindAll(ctx,
			specification.ByUser{UserID: userId},
			specification.ByCollection{Collection: "orders"},
		)
		require.NoError(t, err)
		assert.Len(t, found, 2)
	})
}
