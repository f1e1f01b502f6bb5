// Package adapter bridges the repository layer to the agent pipeline
// interfaces without letting the pipeline depend on gorm.
package adapter

import (
	"context"
	"fmt"

	"ai-docquery-be/internal/repository/specification"
	"ai-docquery-be/internal/repository/unitofwork"
	"ai-docquery-be/pkg/agent/structured"

	"github.com/google/uuid"
)

// RecordStoreAdapter exposes the records table as the structured
// pipeline's row source. Rows carry their user_id so the injected
// tenant stage can re-check scoping in memory.
type RecordStoreAdapter struct {
	uowFactory unitofwork.RepositoryFactory
}

func NewRecordStoreAdapter(uowFactory unitofwork.RepositoryFactory) *RecordStoreAdapter {
	return &RecordStoreAdapter{uowFactory: uowFactory}
}

func (a *RecordStoreAdapter) FindByCollection(ctx context.Context, userID, collection string) ([]structured.Row, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", userID, err)
	}

	uow := a.uowFactory.NewUnitOfWork(ctx)
	records, err := uow.RecordRepository().FindByCollection(ctx, uid, collection)
	if err != nil {
		return nil, err
	}

	rows := make([]structured.Row, 0, len(records))
	for _, rec := range records {
		row := structured.Row{}
		for k, v := range rec.Payload {
			row[k] = v
		}
		row["user_id"] = rec.UserId.String()
		rows = append(rows, row)
	}
	return rows, nil
}

// LoadSchema samples each collection to derive field names and coarse
// types for the pipeline prompt. Called once at startup.
func (a *RecordStoreAdapter) LoadSchema(ctx context.Context) (structured.Schema, error) {
	uow := a.uowFactory.NewUnitOfWork(ctx)
	repo := uow.RecordRepository()

	collections, err := repo.Collections(ctx)
	if err != nil {
		return nil, err
	}

	schema := structured.Schema{}
	for _, collection := range collections {
		fields := map[string]string{}
		records, err := repo.FindAll(ctx,
			specification.ByCollection{Collection: collection},
			specification.Pagination{Limit: 25},
		)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			for field, value := range rec.Payload {
				if _, seen := fields[field]; !seen {
					fields[field] = fieldType(value)
				}
			}
		}
		schema[collection] = fields
	}
	return schema, nil
}

func fieldType(value interface{}) string {
	switch value.(type) {
	case float64, float32, int, int64:
		return "number"
	case bool:
		return "boolean"
	default:
		return "string"
	}
}
