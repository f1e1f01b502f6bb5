package adapter

import (
	"context"
	"fmt"

	"ai-docquery-be/internal/repository/contract"
	"ai-docquery-be/internal/repository/unitofwork"
	"ai-docquery-be/pkg/store"

	"github.com/google/uuid"
)

// VectorSearchAdapter exposes the chunk repository's two pgvector
// columns as the retriever's dense and sparse channels.
type VectorSearchAdapter struct {
	uowFactory unitofwork.RepositoryFactory
}

func NewVectorSearchAdapter(uowFactory unitofwork.RepositoryFactory) *VectorSearchAdapter {
	return &VectorSearchAdapter{uowFactory: uowFactory}
}

func (a *VectorSearchAdapter) SearchDense(ctx context.Context, userID string, vector []float32, topK int, filter *store.MetadataFilter) ([]store.RetrievedDocument, error) {
	return a.search(ctx, userID, vector, topK, filter, true)
}

func (a *VectorSearchAdapter) SearchSparse(ctx context.Context, userID string, vector []float32, topK int, filter *store.MetadataFilter) ([]store.RetrievedDocument, error) {
	return a.search(ctx, userID, vector, topK, filter, false)
}

// search runs one channel. The temporal constraint is pushed into the
// SQL; numerical conditions are checked here against the chunk
// metadata, since the chunk table has no numeric columns of its own.
func (a *VectorSearchAdapter) search(ctx context.Context, userID string, vector []float32, topK int, filter *store.MetadataFilter, dense bool) ([]store.RetrievedDocument, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", userID, err)
	}

	repo := a.uowFactory.NewUnitOfWork(ctx).DocumentChunkRepository()

	var scored []*contract.ScoredChunk
	if dense {
		scored, err = repo.SearchDenseWithScore(ctx, vector, topK, uid, filter)
	} else {
		scored, err = repo.SearchSparseWithScore(ctx, vector, topK, uid, filter)
	}
	if err != nil {
		return nil, err
	}

	docs := make([]store.RetrievedDocument, 0, len(scored))
	for _, s := range scored {
		metadata := map[string]interface{}{
			"document_id": s.Chunk.DocumentId.String(),
			"chunk_index": s.Chunk.ChunkIndex,
		}
		if !filter.MatchesNumerical(metadata) {
			continue
		}
		docs = append(docs, store.RetrievedDocument{
			ID:       s.Chunk.Id.String(),
			Content:  s.Chunk.Content,
			Score:    s.Similarity,
			Metadata: metadata,
		})
	}
	return docs, nil
}
