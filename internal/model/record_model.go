package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Record is one structured row in a named collection. The payload is
// schemaless JSON; the aggregation layer interprets it.
type Record struct {
	Id         uuid.UUID         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserId     uuid.UUID         `gorm:"type:uuid;not null;index"` // User ownership for data isolation
	Collection string            `gorm:"type:varchar(255);not null;index"`
	Payload    datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt  time.Time         `gorm:"autoCreateTime"`
	UpdatedAt  time.Time         `gorm:"autoUpdateTime"`
	DeletedAt  gorm.DeletedAt    `gorm:"index"`
}

func (Record) TableName() string {
	return "records"
}
