package entity

import (
	"time"

	"github.com/google/uuid"
)

type QueryLog struct {
	Id        uuid.UUID
	UserId    uuid.UUID
	Query     string
	QueryType string
	Steps     int
	CacheHit  bool
	LatencyMs int64
	Metrics   map[string]interface{}
	CreatedAt time.Time
}
