package events

import "time"

const (
	QueryCompletedType = "QUERY_COMPLETED"
	CorpusChangedType  = "CORPUS_CHANGED"
)

// NewQueryCompleted builds the event emitted after every finished
// turn, successful or clarifying.
func NewQueryCompleted(userID, query, queryType string, steps int, cacheHit bool, latencyMs int64) Event {
	return BaseEvent{
		Type: QueryCompletedType,
		Data: map[string]interface{}{
			"user_id":    userID,
			"query":      query,
			"query_type": queryType,
			"steps":      steps,
			"cache_hit":  cacheHit,
			"latency_ms": latencyMs,
		},
		OccurredAt: time.Now(),
	}
}

// NewCorpusChanged signals that documents or records were added or
// removed. Other instances drop their cached route results on receipt.
func NewCorpusChanged(userID, kind string) Event {
	return BaseEvent{
		Type: CorpusChangedType,
		Data: map[string]interface{}{
			"user_id": userID,
			"kind":    kind,
		},
		OccurredAt: time.Now(),
	}
}
