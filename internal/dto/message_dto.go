package dto

import "github.com/google/uuid"

// QueryCompletedMessage is the payload published to the internal bus
// after every finished turn; the consumer persists it as a QueryLog.
type QueryCompletedMessage struct {
	UserId    uuid.UUID              `json:"user_id"`
	Query     string                 `json:"query"`
	QueryType string                 `json:"query_type"`
	Steps     int                    `json:"steps"`
	CacheHit  bool                   `json:"cache_hit"`
	LatencyMs int64                  `json:"latency_ms"`
	Metrics   map[string]interface{} `json:"metrics"`
}
