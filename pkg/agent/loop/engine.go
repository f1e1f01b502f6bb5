// Package loop runs the agentic reason-act cycle: classify once, then
// alternate search and analysis until the evidence is good enough to
// answer, always within a bounded number of steps. A final answer is
// never produced before at least one search has completed.
package loop

import (
	"context"
	"fmt"
	"log"
	"reflect"
	"strings"
	"time"

	"ai-docquery-be/pkg/agent/agenterr"
	"ai-docquery-be/pkg/llm"
	"ai-docquery-be/pkg/store"
)

// QueryClassifier produces the routing decision for a raw query
type QueryClassifier interface {
	Classify(ctx context.Context, query string) (*store.EnhancedQuery, error)
}

// Dispatcher executes one search against the routed backend(s)
type Dispatcher interface {
	Dispatch(ctx context.Context, enhanced *store.EnhancedQuery, userID string) (*store.QueryResult, error)
}

// ProgressFunc receives state transitions for streaming to clients.
// Called synchronously; implementations must not block.
type ProgressFunc func(userID, stage, detail string)

// Config bounds the loop and its retries
type Config struct {
	MaxSteps              int
	MaxRetries            int
	BaseDelay             time.Duration
	BackoffFactor         float64
	StepTimeout           time.Duration
	RelevanceThreshold    float64
	CompletenessThreshold float64
	HistoryWindow         int
}

// Outcome is the terminal result of one turn
type Outcome struct {
	Answer        string                    `json:"answer"`
	Clarification bool                      `json:"clarification"`
	Sources       []store.RetrievedDocument `json:"sources,omitempty"`
	Steps         int                       `json:"steps"`
	QueryType     store.QueryType           `json:"query_type"`
	CacheHit      bool                      `json:"cache_hit"`
	Metrics       store.Metrics             `json:"metrics"`
}

// Engine drives the loop. Stateless between turns; every Run gets a
// fresh AgentState.
type Engine struct {
	llmProvider llm.LLMProvider
	classifier  QueryClassifier
	dispatcher  Dispatcher
	cfg         Config
	logger      *log.Logger
	progress    ProgressFunc
}

func NewEngine(
	llmProvider llm.LLMProvider,
	classifier QueryClassifier,
	dispatcher Dispatcher,
	cfg Config,
	logger *log.Logger,
	progress ProgressFunc,
) *Engine {
	if progress == nil {
		progress = func(string, string, string) {}
	}
	return &Engine{
		llmProvider: llmProvider,
		classifier:  classifier,
		dispatcher:  dispatcher,
		cfg:         cfg,
		logger:      logger,
		progress:    progress,
	}
}

// Run executes one turn. Classification failures propagate unchanged:
// guessing a route would be worse than refusing. Search failures are
// retried with backoff; a turn that never gathers evidence ends in an
// EvidenceMissing error, not a fabricated answer.
func (e *Engine) Run(ctx context.Context, userID string, query string, history []store.ChatTurn) (*Outcome, error) {
	state := store.NewAgentState(window(history, e.cfg.HistoryWindow))

	e.progress(userID, "classifying", query)
	enhanced, err := e.classifier.Classify(ctx, query)
	if err != nil {
		return nil, err
	}
	e.logger.Printf("[LOOP] Classified as %s: %s", enhanced.QueryType, truncate(enhanced.EnhancedQuery, 60))

	cacheHit := false
	var lastSearchErr error

	for step := 1; step <= e.cfg.MaxSteps; step++ {
		action, err := e.decideAction(ctx, state, enhanced, step)
		if err != nil {
			return nil, err
		}

		// Mandatory evidence: an answer proposed before any search has
		// completed becomes a search
		if action.Kind == store.ActionFinalAnswer && !state.EvidenceGathered() {
			e.logger.Printf("[LOOP] FINAL_ANSWER before evidence at step %d, forcing SEARCH", step)
			state.Metrics.RecordError("premature_answer")
			action = store.Action{Kind: store.ActionSearch, Payload: enhanced.EnhancedQuery}
		}

		switch action.Kind {
		case store.ActionClarify:
			e.progress(userID, "clarifying", action.Payload)
			state.NeedsClarification = true
			return &Outcome{
				Answer:        action.Payload,
				Clarification: true,
				Steps:         step,
				QueryType:     enhanced.QueryType,
				Metrics:       e.finishMetrics(state),
			}, nil

		case store.ActionFinalAnswer:
			e.progress(userID, "answering", "")
			return e.compose(ctx, state, enhanced, step, cacheHit, false)

		case store.ActionSearch:
			e.progress(userID, "searching", action.Payload)
			searchQuery := enhanced
			if action.Payload != "" && action.Payload != enhanced.EnhancedQuery {
				refined := *enhanced
				refined.EnhancedQuery = action.Payload
				searchQuery = &refined
			}

			result, err := e.searchWithRetry(ctx, searchQuery, userID)
			if err != nil {
				lastSearchErr = err
				state.Metrics.RecordError(string(agenterr.KindOf(err)))
				e.logger.Printf("[LOOP] Search failed at step %d after retries: %v", step, err)
				continue
			}
			state.RecordSearch(result)
			cacheHit = cacheHit || result.CacheHit

			// A search that completes empty with nothing gathered so
			// far means the corpus holds no answer; refining the same
			// query against the same corpus will not change that.
			if len(state.SearchResults) == 0 && emptyResult(result) {
				e.progress(userID, "clarifying", noInformationMsg)
				state.NeedsClarification = true
				return &Outcome{
					Answer:        noInformationMsg,
					Clarification: true,
					Steps:         step,
					QueryType:     enhanced.QueryType,
					CacheHit:      cacheHit,
					Metrics:       e.finishMetrics(state),
				}, nil
			}

			e.progress(userID, "analyzing", "")
			relevance, completeness := e.analyze(ctx, state, enhanced)
			state.Metrics.RecordScores(relevance, completeness)

			if relevance >= e.cfg.RelevanceThreshold && completeness >= e.cfg.CompletenessThreshold {
				e.progress(userID, "answering", "")
				return e.compose(ctx, state, enhanced, step, cacheHit, false)
			}
			e.logger.Printf("[LOOP] Step %d scores %.2f/%.2f below thresholds, refining",
				step, relevance, completeness)

		default:
			return nil, agenterr.QueryGeneration("unhandled action kind: "+string(action.Kind), nil)
		}
	}

	// Step budget exhausted. With evidence in hand we answer anyway;
	// without any, the turn failed.
	if state.EvidenceGathered() {
		e.progress(userID, "answering", "")
		return e.compose(ctx, state, enhanced, e.cfg.MaxSteps, cacheHit, true)
	}
	return nil, agenterr.EvidenceMissing(
		fmt.Sprintf("no evidence gathered within %d steps", e.cfg.MaxSteps), lastSearchErr)
}

// searchWithRetry dispatches under the per-step timeout, retrying
// sequentially with exponential backoff. Retries never run
// concurrently.
func (e *Engine) searchWithRetry(ctx context.Context, enhanced *store.EnhancedQuery, userID string) (*store.QueryResult, error) {
	var result *store.QueryResult

	err := retry(ctx, e.cfg.MaxRetries, e.cfg.BaseDelay, e.cfg.BackoffFactor, func() error {
		sctx, cancel := context.WithTimeout(ctx, e.cfg.StepTimeout)
		defer cancel()

		res, err := e.dispatcher.Dispatch(sctx, enhanced, userID)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) finishMetrics(state *store.AgentState) store.Metrics {
	state.Metrics.LatencyMs = time.Since(state.Metrics.StartedAt).Milliseconds()
	return state.Metrics
}

// retry runs fn up to attempts+1 times with exponential backoff,
// honoring context cancellation between attempts.
func retry(ctx context.Context, attempts int, baseDelay time.Duration, factor float64, fn func() error) error {
	var err error
	delay := baseDelay

	for attempt := 0; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt >= attempts {
			return err
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return agenterr.Timeout("retry abandoned", ctx.Err())
		}
		delay = time.Duration(float64(delay) * factor)
	}
}

const noInformationMsg = "No information found for your question. " +
	"Try rephrasing it or adding specifics such as a topic, date range, or collection name."

// emptyResult reports whether a completed search produced no evidence
// at all: no source documents and no content in any branch.
func emptyResult(result *store.QueryResult) bool {
	if result == nil {
		return true
	}
	if len(result.SourceDocuments) > 0 {
		return false
	}
	return emptyContent(result.Content)
}

func emptyContent(v interface{}) bool {
	switch c := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(c) == ""
	case store.CombinedContent:
		return emptyContent(c.StructuredData) && emptyContent(c.UnstructuredData)
	}
	// Structured rows arrive as a slice whose element type varies by
	// executor
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	}
	return false
}

func window(history []store.ChatTurn, size int) []store.ChatTurn {
	if size <= 0 || len(history) <= size {
		return history
	}
	return history[len(history)-size:]
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
