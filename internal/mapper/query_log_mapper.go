package mapper

import (
	"ai-docquery-be/internal/entity"
	"ai-docquery-be/internal/model"

	"gorm.io/datatypes"
)

type QueryLogMapper struct{}

func NewQueryLogMapper() *QueryLogMapper {
	return &QueryLogMapper{}
}

func (m *QueryLogMapper) ToEntity(l *model.QueryLog) *entity.QueryLog {
	if l == nil {
		return nil
	}
	return &entity.QueryLog{
		Id:        l.Id,
		UserId:    l.UserId,
		Query:     l.Query,
		QueryType: l.QueryType,
		Steps:     l.Steps,
		CacheHit:  l.CacheHit,
		LatencyMs: l.LatencyMs,
		Metrics:   map[string]interface{}(l.Metrics),
		CreatedAt: l.CreatedAt,
	}
}

func (m *QueryLogMapper) ToModel(l *entity.QueryLog) *model.QueryLog {
	if l == nil {
		return nil
	}
	return &model.QueryLog{
		Id:        l.Id,
		UserId:    l.UserId,
		Query:     l.Query,
		QueryType: l.QueryType,
		Steps:     l.Steps,
		CacheHit:  l.CacheHit,
		LatencyMs: l.LatencyMs,
		Metrics:   datatypes.JSONMap(l.Metrics),
		CreatedAt: l.CreatedAt,
	}
}
