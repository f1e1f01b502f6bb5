package service

import (
	"context"
	"fmt"
	"log"

	"ai-docquery-be/internal/dto"
	"ai-docquery-be/internal/entity"
	"ai-docquery-be/internal/repository/specification"
	"ai-docquery-be/internal/repository/unitofwork"
	"ai-docquery-be/pkg/embedding"
	"ai-docquery-be/pkg/utils"

	"github.com/google/uuid"
)

const (
	chunkSize    = 1200
	chunkOverlap = 150
)

type IDocumentService interface {
	Ingest(ctx context.Context, userId uuid.UUID, req *dto.IngestDocumentRequest) (*dto.DocumentResponse, error)
	List(ctx context.Context, userId uuid.UUID) ([]*dto.DocumentResponse, error)
	Delete(ctx context.Context, userId uuid.UUID, id uuid.UUID) error
}

type documentService struct {
	uowFactory        unitofwork.RepositoryFactory
	embeddingProvider embedding.EmbeddingProvider
	sparseEncoder     *embedding.SparseEncoder
	cacheInvalidator  func(ctx context.Context)
}

// NewDocumentService creates the ingestion service. cacheInvalidator
// is called after any mutation so stale routed results never outlive
// the corpus they were computed from.
func NewDocumentService(
	uowFactory unitofwork.RepositoryFactory,
	embeddingProvider embedding.EmbeddingProvider,
	cacheInvalidator func(ctx context.Context),
) IDocumentService {
	if cacheInvalidator == nil {
		cacheInvalidator = func(context.Context) {}
	}
	return &documentService{
		uowFactory:        uowFactory,
		embeddingProvider: embeddingProvider,
		sparseEncoder:     embedding.NewSparseEncoder(),
		cacheInvalidator:  cacheInvalidator,
	}
}

func (s *documentService) Ingest(ctx context.Context, userId uuid.UUID, req *dto.IngestDocumentRequest) (*dto.DocumentResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	document := &entity.Document{
		UserId:  userId,
		Title:   req.Title,
		Content: req.Content,
		Source:  req.Source,
	}
	if err := uow.DocumentRepository().Create(ctx, document); err != nil {
		return nil, err
	}

	pieces := utils.SplitText(req.Content, chunkSize, chunkOverlap)
	chunks := make([]*entity.DocumentChunk, 0, len(pieces))
	for i, piece := range pieces {
		resp, err := s.embeddingProvider.Generate(piece, "retrieval_document")
		if err != nil {
			return nil, fmt.Errorf("embedding chunk %d of %s: %w", i, document.Id, err)
		}
		chunks = append(chunks, &entity.DocumentChunk{
			Content:    piece,
			Dense:      resp.Embedding.Values,
			Sparse:     s.sparseEncoder.Encode(piece),
			DocumentId: document.Id,
			ChunkIndex: i,
		})
	}
	if err := uow.DocumentChunkRepository().CreateBulk(ctx, chunks); err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, err
	}

	s.cacheInvalidator(ctx)
	log.Printf("[INFO] Ingested document %s (%d chunks)", document.Id, len(chunks))

	return &dto.DocumentResponse{
		Id:         document.Id,
		Title:      document.Title,
		Source:     document.Source,
		ChunkCount: len(chunks),
		CreatedAt:  document.CreatedAt,
	}, nil
}

func (s *documentService) List(ctx context.Context, userId uuid.UUID) ([]*dto.DocumentResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	documents, err := uow.DocumentRepository().FindAll(ctx,
		specification.ByUser{UserID: userId},
		specification.OrderBy{Field: "created_at", Desc: true},
	)
	if err != nil {
		return nil, err
	}

	chunkRepo := uow.DocumentChunkRepository()
	out := make([]*dto.DocumentResponse, 0, len(documents))
	for _, doc := range documents {
		count, err := chunkRepo.Count(ctx, specification.ByDocument{DocumentID: doc.Id})
		if err != nil {
			return nil, err
		}
		out = append(out, &dto.DocumentResponse{
			Id:         doc.Id,
			Title:      doc.Title,
			Source:     doc.Source,
			ChunkCount: int(count),
			CreatedAt:  doc.CreatedAt,
		})
	}
	return out, nil
}

func (s *documentService) Delete(ctx context.Context, userId uuid.UUID, id uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	// Ownership check before anything is touched
	document, err := uow.DocumentRepository().FindOne(ctx,
		specification.ByID{ID: id},
		specification.ByUser{UserID: userId},
	)
	if err != nil {
		return err
	}
	if document == nil {
		return fmt.Errorf("document %s not found", id)
	}

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.DocumentChunkRepository().DeleteByDocumentId(ctx, id); err != nil {
		return err
	}
	if err := uow.DocumentRepository().Delete(ctx, id); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return err
	}

	s.cacheInvalidator(ctx)
	return nil
}
