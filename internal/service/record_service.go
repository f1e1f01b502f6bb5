package service

import (
	"context"
	"log"

	"ai-docquery-be/internal/dto"
	"ai-docquery-be/internal/entity"
	"ai-docquery-be/internal/repository/unitofwork"

	"github.com/google/uuid"
)

type IRecordService interface {
	Import(ctx context.Context, userId uuid.UUID, req *dto.ImportRecordsRequest) (*dto.ImportRecordsResponse, error)
	Collections(ctx context.Context) ([]string, error)
}

type recordService struct {
	uowFactory       unitofwork.RepositoryFactory
	cacheInvalidator func(ctx context.Context)
}

func NewRecordService(uowFactory unitofwork.RepositoryFactory, cacheInvalidator func(ctx context.Context)) IRecordService {
	if cacheInvalidator == nil {
		cacheInvalidator = func(context.Context) {}
	}
	return &recordService{
		uowFactory:       uowFactory,
		cacheInvalidator: cacheInvalidator,
	}
}

func (s *recordService) Import(ctx context.Context, userId uuid.UUID, req *dto.ImportRecordsRequest) (*dto.ImportRecordsResponse, error) {
	records := make([]*entity.Record, 0, len(req.Records))
	for _, payload := range req.Records {
		records = append(records, &entity.Record{
			UserId:     userId,
			Collection: req.Collection,
			Payload:    payload,
		})
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.RecordRepository().CreateBulk(ctx, records); err != nil {
		return nil, err
	}

	s.cacheInvalidator(ctx)
	log.Printf("[INFO] Imported %d records into %s for user %s", len(records), req.Collection, userId)

	return &dto.ImportRecordsResponse{
		Collection: req.Collection,
		Imported:   len(records),
	}, nil
}

func (s *recordService) Collections(ctx context.Context) ([]string, error) {
	return s.uowFactory.NewUnitOfWork(ctx).RecordRepository().Collections(ctx)
}
