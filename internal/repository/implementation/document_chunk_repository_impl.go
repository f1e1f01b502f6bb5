package implementation

import (
	"context"

	"ai-docquery-be/internal/entity"
	"ai-docquery-be/internal/mapper"
	"ai-docquery-be/internal/model"
	"ai-docquery-be/internal/repository/contract"
	"ai-docquery-be/internal/repository/specification"
	"ai-docquery-be/pkg/store"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

type DocumentChunkRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.DocumentChunkMapper
}

func NewDocumentChunkRepository(db *gorm.DB) contract.DocumentChunkRepository {
	return &DocumentChunkRepositoryImpl{
		db:     db,
		mapper: mapper.NewDocumentChunkMapper(),
	}
}

func (r *DocumentChunkRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *DocumentChunkRepositoryImpl) Create(ctx context.Context, chunk *entity.DocumentChunk) error {
	m := r.mapper.ToModel(chunk)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*chunk = *r.mapper.ToEntity(m)
	return nil
}

func (r *DocumentChunkRepositoryImpl) CreateBulk(ctx context.Context, chunks []*entity.DocumentChunk) error {
	models := r.mapper.ToModels(chunks)
	if err := r.db.WithContext(ctx).Create(models).Error; err != nil {
		return err
	}
	for i, m := range models {
		*chunks[i] = *r.mapper.ToEntity(m)
	}
	return nil
}

func (r *DocumentChunkRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&model.DocumentChunk{}, id).Error
}

func (r *DocumentChunkRepositoryImpl) DeleteByDocumentId(ctx context.Context, documentId uuid.UUID) error {
	return r.db.WithContext(ctx).Where("document_id = ?", documentId).Delete(&model.DocumentChunk{}).Error
}

func (r *DocumentChunkRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.DocumentChunk, error) {
	var models []*model.DocumentChunk
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}

func (r *DocumentChunkRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	err := query.Model(&model.DocumentChunk{}).Count(&count).Error
	return count, err
}

func (r *DocumentChunkRepositoryImpl) SearchDenseWithScore(ctx context.Context, vector []float32, limit int, userId uuid.UUID, filter *store.MetadataFilter) ([]*contract.ScoredChunk, error) {
	return r.searchWithScore(ctx, "dense_embedding", vector, limit, userId, filter)
}

func (r *DocumentChunkRepositoryImpl) SearchSparseWithScore(ctx context.Context, vector []float32, limit int, userId uuid.UUID, filter *store.MetadataFilter) ([]*contract.ScoredChunk, error) {
	return r.searchWithScore(ctx, "sparse_embedding", vector, limit, userId, filter)
}

func (r *DocumentChunkRepositoryImpl) SearchLexicalWithScore(ctx context.Context, query string, limit int, userId uuid.UUID) ([]*contract.ScoredChunk, error) {
	if limit <= 0 {
		limit = 5
	}

	type result struct {
		model.DocumentChunk
		Similarity float64
	}
	var results []result

	err := r.db.WithContext(ctx).
		Table("document_chunks").
		Select("document_chunks.*, ts_rank(to_tsvector('english', document_chunks.content), plainto_tsquery('english', ?)) as similarity", query).
		Joins("JOIN documents ON documents.id = document_chunks.document_id").
		Where("documents.user_id = ?", userId).
		Where("document_chunks.deleted_at IS NULL").
		Where("documents.deleted_at IS NULL").
		Where("to_tsvector('english', document_chunks.content) @@ plainto_tsquery('english', ?)", query).
		Order("similarity DESC").
		Limit(limit).
		Scan(&results).Error

	if err != nil {
		return nil, err
	}

	scored := make([]*contract.ScoredChunk, len(results))
	for i, res := range results {
		scored[i] = &contract.ScoredChunk{
			Chunk:      r.mapper.ToEntity(&res.DocumentChunk),
			Similarity: res.Similarity,
		}
	}
	return scored, nil
}

// searchWithScore runs the similarity query over one vector column.
// Cosine distance in pgvector is 1 - cosine_similarity, so
// 1 - (column <=> query_vector) yields the similarity.
// The join with documents enforces user scoping; chunks carry no
// user_id of their own. A temporal filter bounds the source
// document's timestamp, the only date the chunk store records.
func (r *DocumentChunkRepositoryImpl) searchWithScore(ctx context.Context, column string, vector []float32, limit int, userId uuid.UUID, filter *store.MetadataFilter) ([]*contract.ScoredChunk, error) {
	if limit <= 0 {
		limit = 5
	}

	type result struct {
		model.DocumentChunk
		Similarity float64
	}
	var results []result

	queryVector := pgvector.NewVector(vector)

	query := r.db.WithContext(ctx).
		Table("document_chunks").
		Select("document_chunks.*, 1 - ("+column+" <=> ?) as similarity", queryVector).
		Joins("JOIN documents ON documents.id = document_chunks.document_id").
		Where("documents.user_id = ?", userId).
		Where("document_chunks.deleted_at IS NULL").
		Where("documents.deleted_at IS NULL")

	if filter != nil && filter.Temporal != nil {
		query = query.Where("documents.created_at BETWEEN ? AND ?", filter.Temporal.Start, filter.Temporal.End)
	}

	err := query.
		Order("similarity DESC").
		Limit(limit).
		Scan(&results).Error

	if err != nil {
		return nil, err
	}

	scored := make([]*contract.ScoredChunk, len(results))
	for i, res := range results {
		scored[i] = &contract.ScoredChunk{
			Chunk:      r.mapper.ToEntity(&res.DocumentChunk),
			Similarity: res.Similarity,
		}
	}
	return scored, nil
}
