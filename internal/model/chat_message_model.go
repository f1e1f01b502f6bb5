package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ChatMessage struct {
	Id            uuid.UUID         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Content       string            `gorm:"type:text;not null"`
	Role          string            `gorm:"type:varchar(50);not null"`
	ChatSessionId uuid.UUID         `gorm:"type:uuid;not null;index"`
	Citations     datatypes.JSONMap `gorm:"type:jsonb"` // chunk ids and scores backing an assistant reply
	CreatedAt     time.Time         `gorm:"autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"autoUpdateTime"`
	DeletedAt     gorm.DeletedAt    `gorm:"index"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}
