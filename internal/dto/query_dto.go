package dto

import (
	"time"

	"github.com/google/uuid"
)

type AskRequest struct {
	ChatSessionId uuid.UUID `json:"chat_session_id"`
	Query         string    `json:"query" validate:"required,min=1,max=4000"`
}

type SourceDTO struct {
	ChunkId    uuid.UUID `json:"chunk_id"`
	DocumentId uuid.UUID `json:"document_id"`
	Score      float64   `json:"score"`
	Excerpt    string    `json:"excerpt"`
}

type AskResponse struct {
	ChatSessionId uuid.UUID   `json:"chat_session_id"`
	Answer        string      `json:"answer"`
	Clarification bool        `json:"clarification"`
	QueryType     string      `json:"query_type"`
	Steps         int         `json:"steps"`
	CacheHit      bool        `json:"cache_hit"`
	Sources       []SourceDTO `json:"sources,omitempty"`
}

type CreateSessionRequest struct {
	Title string `json:"title" validate:"required,max=255"`
}

type CreateSessionResponse struct {
	Id uuid.UUID `json:"id"`
}

type SessionResponse struct {
	Id        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

type ChatHistoryResponse struct {
	Id        uuid.UUID              `json:"id"`
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	Citations map[string]interface{} `json:"citations,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

type QueryLogResponse struct {
	Id        uuid.UUID `json:"id"`
	Query     string    `json:"query"`
	QueryType string    `json:"query_type"`
	Steps     int       `json:"steps"`
	CacheHit  bool      `json:"cache_hit"`
	LatencyMs int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}
