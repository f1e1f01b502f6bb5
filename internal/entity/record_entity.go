package entity

import (
	"time"

	"github.com/google/uuid"
)

type Record struct {
	Id         uuid.UUID
	UserId     uuid.UUID
	Collection string
	Payload    map[string]interface{}
	CreatedAt  time.Time
	UpdatedAt  *time.Time
	DeletedAt  *time.Time
	IsDeleted  bool
}
