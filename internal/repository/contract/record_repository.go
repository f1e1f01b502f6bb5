package contract

import (
	"context"

	"ai-docquery-be/internal/entity"
	"ai-docquery-be/internal/repository/specification"

	"github.com/google/uuid"
)

type RecordRepository interface {
	Create(ctx context.Context, record *entity.Record) error
	CreateBulk(ctx context.Context, records []*entity.Record) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Record, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
	// FindByCollection returns one tenant's rows for a collection,
	// always scoped by user_id at the SQL level
	FindByCollection(ctx context.Context, userId uuid.UUID, collection string) ([]*entity.Record, error)
	// Collections lists the distinct collection names present
	Collections(ctx context.Context) ([]string, error)
}
