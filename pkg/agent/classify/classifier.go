// Package classify turns a raw user query into an EnhancedQuery that
// decides which data backends run. Classification is a pure LLM call;
// an unparsable result is an error, never a silent default, because
// routing on a guessed classification can leak the wrong backend.
package classify

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"ai-docquery-be/pkg/agent/agenterr"
	"ai-docquery-be/pkg/cache"
	"ai-docquery-be/pkg/llm"
	"ai-docquery-be/pkg/store"
)

// Classifier performs LLM-based query classification with memoization
type Classifier struct {
	llmProvider llm.LLMProvider
	cache       cache.Cache
	cacheTTL    time.Duration
	logger      *log.Logger
}

// NewClassifier creates a classifier. The cache is keyed by normalized
// query text and is shared, read-mostly state; Invalidate and
// ClearCache are its only mutation paths besides Set.
func NewClassifier(llmProvider llm.LLMProvider, c cache.Cache, ttl time.Duration, logger *log.Logger) *Classifier {
	return &Classifier{
		llmProvider: llmProvider,
		cache:       c,
		cacheTTL:    ttl,
		logger:      logger,
	}
}

// Classify analyzes the query and produces an immutable EnhancedQuery.
// Repeated queries hit the cache instead of the LLM.
func (c *Classifier) Classify(ctx context.Context, query string) (*store.EnhancedQuery, error) {
	key := cacheKey(query)

	if data, found := c.cache.Get(ctx, key); found {
		var cached store.EnhancedQuery
		if err := json.Unmarshal(data, &cached); err == nil {
			c.logger.Printf("[CLASSIFY] Cache hit for query: %s", truncate(query, 50))
			return &cached, nil
		}
		// A corrupt entry is dropped, not trusted
		c.cache.Delete(ctx, key)
	}

	prompt := buildPrompt(query)

	// Temperature 0 for deterministic classification
	response, err := c.llmProvider.Generate(ctx, prompt, llm.WithTemperature(0.0))
	if err != nil {
		return nil, agenterr.Classification("llm call failed", err)
	}

	enhanced, err := parseClassification(query, response)
	if err != nil {
		c.logger.Printf("[CLASSIFY] Unparsable classification: %v", err)
		return nil, err
	}

	c.logger.Printf("[CLASSIFY] %s → %s (sources: %v)",
		truncate(query, 50), enhanced.QueryType, enhanced.RequiredDataSources)

	if data, err := json.Marshal(enhanced); err == nil {
		c.cache.Set(ctx, key, data, c.cacheTTL)
	}

	return enhanced, nil
}

// Invalidate drops the memoized classification for one query.
func (c *Classifier) Invalidate(ctx context.Context, query string) {
	c.cache.Delete(ctx, cacheKey(query))
}

// ClearCache drops every memoized classification.
func (c *Classifier) ClearCache(ctx context.Context) {
	c.cache.Clear(ctx)
}

// NormalizeQuery lowercases and collapses whitespace so trivially
// reworded repeats share one cache entry.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

func cacheKey(query string) string {
	return "classify:" + NormalizeQuery(query)
}

// rawClassification is the strict JSON contract requested from the LLM
type rawClassification struct {
	QueryType        string                     `json:"query_type"`
	EnhancedQuery    string                     `json:"enhanced_query"`
	DataSources      []string                   `json:"data_sources"`
	TemporalContext  *rawTemporalWindow         `json:"temporal_context"`
	NumericalFilters map[string]store.Condition `json:"numerical_filters"`
	Reasoning        string                     `json:"reasoning"`
}

type rawTemporalWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func parseClassification(query, response string) (*store.EnhancedQuery, error) {
	jsonContent := extractJSON(response)
	if jsonContent == "" {
		return nil, agenterr.Classification("no JSON found in response", nil)
	}

	var raw rawClassification
	if err := json.Unmarshal([]byte(jsonContent), &raw); err != nil {
		return nil, agenterr.Classification("json unmarshal failed", err)
	}

	if raw.QueryType == "" || raw.EnhancedQuery == "" {
		return nil, agenterr.Classification("missing required keys query_type/enhanced_query", nil)
	}

	queryType, ok := store.ParseQueryType(raw.QueryType)
	if !ok {
		return nil, agenterr.Classification("unmapped query_type: "+raw.QueryType, nil)
	}

	enhanced := &store.EnhancedQuery{
		OriginalQuery:       query,
		EnhancedQuery:       raw.EnhancedQuery,
		QueryType:           queryType,
		RequiredDataSources: raw.DataSources,
		Reasoning:           raw.Reasoning,
		NumericalFilters:    raw.NumericalFilters,
	}

	if raw.TemporalContext != nil {
		window, err := parseTemporalWindow(raw.TemporalContext)
		if err != nil {
			return nil, err
		}
		enhanced.TemporalContext = window
	}

	return enhanced, nil
}

func parseTemporalWindow(raw *rawTemporalWindow) (*store.TemporalContext, error) {
	start, err := time.Parse("2006-01-02", raw.Start)
	if err != nil {
		return nil, agenterr.Classification("invalid temporal_context.start: "+raw.Start, err)
	}
	end, err := time.Parse("2006-01-02", raw.End)
	if err != nil {
		return nil, agenterr.Classification("invalid temporal_context.end: "+raw.End, err)
	}
	return &store.TemporalContext{Start: start, End: end}, nil
}

// extractJSON isolates JSON content from response
func extractJSON(response string) string {
	startIdx := strings.Index(response, "{")
	endIdx := strings.LastIndex(response, "}")

	if startIdx == -1 || endIdx == -1 || endIdx <= startIdx {
		return ""
	}

	return response[startIdx : endIdx+1]
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
