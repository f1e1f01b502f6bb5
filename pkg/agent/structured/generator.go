// Package structured translates an EnhancedQuery into an aggregation
// pipeline, validates the pipeline before anything executes, and runs
// it over the tenant's records. The tenant isolation stage is always
// injected by code, never sourced from the LLM.
package structured

import (
	"context"
	"log"

	"ai-docquery-be/pkg/agent/agenterr"
	"ai-docquery-be/pkg/llm"
	"ai-docquery-be/pkg/store"
)

// RecordStore fetches one tenant's rows for a collection. The store
// must scope by userID at the query level; the injected $match stage
// re-checks the same predicate in memory.
type RecordStore interface {
	FindByCollection(ctx context.Context, userID, collection string) ([]Row, error)
}

// Schema describes the queryable collections: collection → field → type
type Schema map[string]map[string]string

// Generator synthesizes and executes aggregation pipelines
type Generator struct {
	llmProvider llm.LLMProvider
	records     RecordStore
	schema      Schema
	logger      *log.Logger
}

func NewGenerator(llmProvider llm.LLMProvider, records RecordStore, schema Schema, logger *log.Logger) *Generator {
	return &Generator{
		llmProvider: llmProvider,
		records:     records,
		schema:      schema,
		logger:      logger,
	}
}

// Execute generates a pipeline for the query, validates it, and runs it
// over the tenant's rows. The result metadata always carries
// total_records and the full effective pipeline including the injected
// tenant stage.
func (g *Generator) Execute(ctx context.Context, enhanced *store.EnhancedQuery, userID string) (*store.QueryResult, error) {
	collection, err := g.targetCollection(enhanced)
	if err != nil {
		return nil, err
	}

	prompt := buildPipelinePrompt(enhanced, collection, g.schema[collection])

	response, err := g.llmProvider.Generate(ctx, prompt, llm.WithTemperature(0.0))
	if err != nil {
		return nil, agenterr.QueryGeneration("llm call failed", err)
	}

	stages, err := ValidatePipeline(response)
	if err != nil {
		g.logger.Printf("[STRUCTURED] Invalid pipeline for %q: %v", truncate(enhanced.EnhancedQuery, 50), err)
		return nil, err
	}

	// Stage 0 is always the tenant filter, regardless of what the LLM
	// produced
	pipeline := append([]Stage{TenantStage(userID)}, stages...)

	rows, err := g.records.FindByCollection(ctx, userID, collection)
	if err != nil {
		return nil, agenterr.QueryExecution("record fetch failed for "+collection, err)
	}

	results, err := ApplyPipeline(rows, pipeline)
	if err != nil {
		return nil, err
	}

	g.logger.Printf("[STRUCTURED] %s: %d rows → %d results (%d stages)",
		collection, len(rows), len(results), len(pipeline))

	return &store.QueryResult{
		Content: results,
		Metadata: map[string]interface{}{
			"collection":    collection,
			"total_records": len(results),
			"query_filters": pipelineJSON(pipeline),
		},
	}, nil
}

// targetCollection picks the first required data source that names a
// known collection. No match is a generation error: running against a
// guessed collection would silently answer the wrong question.
func (g *Generator) targetCollection(enhanced *store.EnhancedQuery) (string, error) {
	for _, source := range enhanced.RequiredDataSources {
		if _, known := g.schema[source]; known {
			return source, nil
		}
	}
	return "", agenterr.QueryGeneration("no known collection among required data sources", nil)
}

func pipelineJSON(pipeline []Stage) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(pipeline))
	for _, s := range pipeline {
		out = append(out, map[string]interface{}(s))
	}
	return out
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
