package contract

import (
	"context"

	"ai-docquery-be/internal/entity"
	"ai-docquery-be/internal/repository/specification"
	"ai-docquery-be/pkg/store"

	"github.com/google/uuid"
)

// ScoredChunk wraps DocumentChunk with its similarity score
type ScoredChunk struct {
	Chunk      *entity.DocumentChunk
	Similarity float64 // 0.0 to 1.0 (1.0 = identical)
}

type DocumentChunkRepository interface {
	Create(ctx context.Context, chunk *entity.DocumentChunk) error
	CreateBulk(ctx context.Context, chunks []*entity.DocumentChunk) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByDocumentId(ctx context.Context, documentId uuid.UUID) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.DocumentChunk, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
	// SearchDenseWithScore runs a cosine-similarity search over the
	// dense embedding column, scoped to the user's documents. A
	// non-nil filter additionally bounds the source document's
	// timestamp to the query's temporal window.
	SearchDenseWithScore(ctx context.Context, vector []float32, limit int, userId uuid.UUID, filter *store.MetadataFilter) ([]*ScoredChunk, error)
	// SearchSparseWithScore does the same over the hashed term-weight
	// column
	SearchSparseWithScore(ctx context.Context, vector []float32, limit int, userId uuid.UUID, filter *store.MetadataFilter) ([]*ScoredChunk, error)
	// SearchLexicalWithScore is a ts_rank full-text search used by
	// diagnostics to sanity-check retrieval independently of the
	// embedding providers
	SearchLexicalWithScore(ctx context.Context, query string, limit int, userId uuid.UUID) ([]*ScoredChunk, error)
}
