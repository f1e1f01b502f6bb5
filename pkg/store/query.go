package store

import (
	"strings"
	"time"
)

// QueryType classifies which data backend(s) a query needs
type QueryType string

const (
	QueryTypeStructured   QueryType = "STRUCTURED"
	QueryTypeUnstructured QueryType = "UNSTRUCTURED"
	QueryTypeHybrid       QueryType = "HYBRID"
)

// ParseQueryType maps a raw classifier string to a QueryType.
// Matching is case-insensitive; unmapped values return false.
func ParseQueryType(raw string) (QueryType, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(QueryTypeStructured):
		return QueryTypeStructured, true
	case string(QueryTypeUnstructured):
		return QueryTypeUnstructured, true
	case string(QueryTypeHybrid):
		return QueryTypeHybrid, true
	}
	return "", false
}

// Query is the immutable input value object for one turn
type Query struct {
	Text           string
	ConversationID string
	Model          string
	Temperature    float64
	MaxTokens      int
}

// TemporalContext is a date range constraint extracted from the query
type TemporalContext struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Condition is a numerical filter on one field (e.g. {"$gt": 1000})
type Condition struct {
	Op    string  `json:"op"`
	Value float64 `json:"value"`
}

// Matches reports whether value satisfies the condition. Unknown
// operators never match.
func (c Condition) Matches(value float64) bool {
	switch c.Op {
	case "$gt":
		return value > c.Value
	case "$gte":
		return value >= c.Value
	case "$lt":
		return value < c.Value
	case "$lte":
		return value <= c.Value
	case "$eq":
		return value == c.Value
	case "$ne":
		return value != c.Value
	}
	return false
}

// MetadataFilter carries the temporal and numerical constraints a
// classified query imposes on retrieval. The vector store applies it
// alongside tenant scoping.
type MetadataFilter struct {
	Temporal  *TemporalContext     `json:"temporal,omitempty"`
	Numerical map[string]Condition `json:"numerical,omitempty"`
}

// IsZero reports whether the filter constrains nothing. A nil filter
// is zero.
func (f *MetadataFilter) IsZero() bool {
	return f == nil || (f.Temporal == nil && len(f.Numerical) == 0)
}

// MatchesNumerical checks the numerical conditions against one piece
// of evidence metadata. A field the evidence does not record as a
// number is unconstrained; a recorded field must satisfy its
// condition.
func (f *MetadataFilter) MatchesNumerical(metadata map[string]interface{}) bool {
	if f.IsZero() {
		return true
	}
	for field, cond := range f.Numerical {
		raw, present := metadata[field]
		if !present {
			continue
		}
		value, ok := asFloat(raw)
		if !ok {
			continue
		}
		if !cond.Matches(value) {
			return false
		}
	}
	return true
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// EnhancedQuery is the classifier output. Immutable after creation;
// cached by normalized query text.
type EnhancedQuery struct {
	OriginalQuery       string               `json:"original_query"`
	EnhancedQuery       string               `json:"enhanced_query"`
	QueryType           QueryType            `json:"query_type"`
	RequiredDataSources []string             `json:"required_data_sources"`
	Reasoning           string               `json:"reasoning"`
	TemporalContext     *TemporalContext     `json:"temporal_context,omitempty"`
	NumericalFilters    map[string]Condition `json:"numerical_filters,omitempty"`
}

// MetadataFilter folds the query's extracted constraints into a
// retrieval filter. Nil when the classifier extracted none.
func (q *EnhancedQuery) MetadataFilter() *MetadataFilter {
	if q.TemporalContext == nil && len(q.NumericalFilters) == 0 {
		return nil
	}
	return &MetadataFilter{Temporal: q.TemporalContext, Numerical: q.NumericalFilters}
}

// RetrievedDocument is one piece of evidence. Within a single retrieval
// result set the ID is unique.
type RetrievedDocument struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"content"`
	Score    float64                `json:"score"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Vector   []float32              `json:"-"`
}

// CombinedContent is the tagged union produced by a HYBRID route
type CombinedContent struct {
	StructuredData   interface{} `json:"structured_data"`
	UnstructuredData interface{} `json:"unstructured_data"`
}

// QueryResult is the normalized output of one DataRouter dispatch
type QueryResult struct {
	Content         interface{}            `json:"content"`
	SourceDocuments []RetrievedDocument    `json:"source_documents"`
	Metadata        map[string]interface{} `json:"metadata"`
	CacheHit        bool                   `json:"cache_hit"`
	Error           string                 `json:"error,omitempty"`
}

// Documents returns the evidence set, never nil.
func (r *QueryResult) Documents() []RetrievedDocument {
	if r == nil {
		return nil
	}
	return r.SourceDocuments
}
