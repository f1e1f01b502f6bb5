// Package route dispatches a classified query to the structured
// executor, the vector retriever, or both. The HYBRID path fans out
// concurrently and tolerates one failed branch; it errors only when
// both branches fail or the joint deadline passes with nothing in
// hand.
package route

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"ai-docquery-be/pkg/agent/agenterr"
	"ai-docquery-be/pkg/cache"
	"ai-docquery-be/pkg/store"
)

// StructuredExecutor runs an aggregation for a classified query
type StructuredExecutor interface {
	Execute(ctx context.Context, enhanced *store.EnhancedQuery, userID string) (*store.QueryResult, error)
}

// UnstructuredRetriever runs hybrid vector retrieval. The filter
// narrows the search to the query's temporal and numerical
// constraints.
type UnstructuredRetriever interface {
	Retrieve(ctx context.Context, userID, query string, filter *store.MetadataFilter) (*store.QueryResult, error)
}

// Router owns the dispatch decision and the result cache
type Router struct {
	structured    StructuredExecutor
	unstructured  UnstructuredRetriever
	cache         cache.Cache
	cacheTTL      time.Duration
	hybridTimeout time.Duration
	logger        *log.Logger
}

func NewRouter(
	structured StructuredExecutor,
	unstructured UnstructuredRetriever,
	c cache.Cache,
	cacheTTL time.Duration,
	hybridTimeout time.Duration,
	logger *log.Logger,
) *Router {
	return &Router{
		structured:    structured,
		unstructured:  unstructured,
		cache:         c,
		cacheTTL:      cacheTTL,
		hybridTimeout: hybridTimeout,
		logger:        logger,
	}
}

// Dispatch routes by query type. Cached results come back with
// CacheHit set; fresh results are cached only on success.
func (r *Router) Dispatch(ctx context.Context, enhanced *store.EnhancedQuery, userID string) (*store.QueryResult, error) {
	key := r.cacheKey(enhanced, userID)

	if data, found := r.cache.Get(ctx, key); found {
		var cached store.QueryResult
		if err := json.Unmarshal(data, &cached); err == nil {
			cached.CacheHit = true
			r.logger.Printf("[ROUTE] Cache hit (%s)", enhanced.QueryType)
			return &cached, nil
		}
		r.cache.Delete(ctx, key)
	}

	var result *store.QueryResult
	var err error

	switch enhanced.QueryType {
	case store.QueryTypeStructured:
		result, err = r.structured.Execute(ctx, enhanced, userID)
	case store.QueryTypeUnstructured:
		result, err = r.unstructured.Retrieve(ctx, userID, enhanced.EnhancedQuery, enhanced.MetadataFilter())
	case store.QueryTypeHybrid:
		result, err = r.dispatchHybrid(ctx, enhanced, userID)
	default:
		return nil, agenterr.Configuration("unroutable query type: "+string(enhanced.QueryType), nil)
	}

	if err != nil {
		return nil, err
	}

	// Degraded partials are never cached: a retry should get the
	// chance to produce the full result
	if result.Error == "" {
		if data, err := json.Marshal(result); err == nil {
			r.cache.Set(ctx, key, data, r.cacheTTL)
		}
	}

	return result, nil
}

type branchResult struct {
	name   string
	result *store.QueryResult
	err    error
}

// dispatchHybrid runs both branches under one shared deadline. A
// branch that misses the deadline is treated as failed; partial
// evidence still answers the query.
func (r *Router) dispatchHybrid(ctx context.Context, enhanced *store.EnhancedQuery, userID string) (*store.QueryResult, error) {
	hctx, cancel := context.WithTimeout(ctx, r.hybridTimeout)
	defer cancel()

	results := make(chan branchResult, 2)

	go func() {
		res, err := r.structured.Execute(hctx, enhanced, userID)
		results <- branchResult{name: "structured", result: res, err: err}
	}()
	go func() {
		res, err := r.unstructured.Retrieve(hctx, userID, enhanced.EnhancedQuery, enhanced.MetadataFilter())
		results <- branchResult{name: "unstructured", result: res, err: err}
	}()

	var structuredRes, unstructuredRes *store.QueryResult
	var branchErrs []error

	for received := 0; received < 2; received++ {
		select {
		case br := <-results:
			if br.err != nil {
				r.logger.Printf("[ROUTE] Hybrid branch %s failed: %v", br.name, br.err)
				branchErrs = append(branchErrs, fmt.Errorf("%s: %w", br.name, br.err))
				continue
			}
			if br.name == "structured" {
				structuredRes = br.result
			} else {
				unstructuredRes = br.result
			}
		case <-hctx.Done():
			if structuredRes == nil && unstructuredRes == nil {
				return nil, agenterr.Timeout(
					fmt.Sprintf("hybrid dispatch exceeded %s with no branch complete", r.hybridTimeout), hctx.Err())
			}
			// One branch made it; ship what we have, marked degraded
			if structuredRes == nil {
				branchErrs = append(branchErrs, fmt.Errorf("structured: %w", hctx.Err()))
			}
			if unstructuredRes == nil {
				branchErrs = append(branchErrs, fmt.Errorf("unstructured: %w", hctx.Err()))
			}
			return r.combine(structuredRes, unstructuredRes, branchErrs), nil
		}
	}

	if structuredRes == nil && unstructuredRes == nil {
		return nil, agenterr.QueryExecution(
			fmt.Sprintf("both hybrid branches failed: %v", branchErrs), nil)
	}

	return r.combine(structuredRes, unstructuredRes, branchErrs), nil
}

// combine merges the surviving branches. CacheHit is an OR over the
// branches that actually produced a result; a failed branch never
// votes.
func (r *Router) combine(structuredRes, unstructuredRes *store.QueryResult, branchErrs []error) *store.QueryResult {
	combined := store.CombinedContent{}
	metadata := map[string]interface{}{"route": string(store.QueryTypeHybrid)}
	var docs []store.RetrievedDocument
	cacheHit := false

	if structuredRes != nil {
		combined.StructuredData = structuredRes.Content
		metadata["structured"] = structuredRes.Metadata
		cacheHit = cacheHit || structuredRes.CacheHit
	}
	if unstructuredRes != nil {
		combined.UnstructuredData = unstructuredRes.Content
		metadata["unstructured"] = unstructuredRes.Metadata
		docs = unstructuredRes.SourceDocuments
		cacheHit = cacheHit || unstructuredRes.CacheHit
	}

	result := &store.QueryResult{
		Content:         combined,
		SourceDocuments: docs,
		Metadata:        metadata,
		CacheHit:        cacheHit,
	}
	if len(branchErrs) > 0 {
		metadata["degraded"] = true
		result.Error = fmt.Sprintf("partial result: %v", branchErrs)
	}
	return result
}

// cacheKey includes the metadata filter: the same enhanced text under
// a different temporal window is a different result set.
func (r *Router) cacheKey(enhanced *store.EnhancedQuery, userID string) string {
	key := fmt.Sprintf("route:%s:%s:%s", userID, enhanced.QueryType, enhanced.EnhancedQuery)
	if filter := enhanced.MetadataFilter(); !filter.IsZero() {
		if data, err := json.Marshal(filter); err == nil {
			key += ":" + string(data)
		}
	}
	return key
}

// ClearCache drops every cached route result. Called when documents
// or records change.
func (r *Router) ClearCache(ctx context.Context) {
	r.cache.Clear(ctx)
}
