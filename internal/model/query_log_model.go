package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// QueryLog is the audit trail of completed turns, written
// asynchronously by the consumer. No soft delete: audit rows are
// append-only.
type QueryLog struct {
	Id        uuid.UUID         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserId    uuid.UUID         `gorm:"type:uuid;not null;index"`
	Query     string            `gorm:"type:text;not null"`
	QueryType string            `gorm:"type:varchar(50)"`
	Steps     int               `gorm:"default:0"`
	CacheHit  bool              `gorm:"default:false"`
	LatencyMs int64             `gorm:"default:0"`
	Metrics   datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time         `gorm:"autoCreateTime"`
}

func (QueryLog) TableName() string {
	return "query_logs"
}
