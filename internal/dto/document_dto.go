package dto

import (
	"time"

	"github.com/google/uuid"
)

type IngestDocumentRequest struct {
	Title   string `json:"title" validate:"required,max=255"`
	Content string `json:"content" validate:"required"`
	Source  string `json:"source,omitempty" validate:"max=255"`
}

type DocumentResponse struct {
	Id         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	Source     string    `json:"source,omitempty"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

type ImportRecordsRequest struct {
	Collection string                   `json:"collection" validate:"required,max=255"`
	Records    []map[string]interface{} `json:"records" validate:"required,min=1,max=1000"`
}

type ImportRecordsResponse struct {
	Collection string `json:"collection"`
	Imported   int    `json:"imported"`
}
