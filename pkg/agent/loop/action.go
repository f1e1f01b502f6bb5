package loop

import (
	"context"
	"encoding/json"
	"strings"

	"ai-docquery-be/pkg/agent/agenterr"
	"ai-docquery-be/pkg/llm"
	"ai-docquery-be/pkg/store"
)

// rawAction is the strict JSON contract the reasoning prompt requests
type rawAction struct {
	Action     string  `json:"action"`
	Payload    string  `json:"payload"`
	Reasoning  string  `json:"reasoning"`
	Confidence float64 `json:"confidence"`
}

// decideAction asks the model for the next step. An unparsable reply
// gets exactly one corrective re-prompt carrying the parse error; a
// second failure ends the turn.
func (e *Engine) decideAction(ctx context.Context, state *store.AgentState, enhanced *store.EnhancedQuery, step int) (store.Action, error) {
	prompt := buildReasoningPrompt(state, enhanced, step, e.cfg.MaxSteps)

	response, err := e.llmProvider.Generate(ctx, prompt, llm.WithTemperature(0.0))
	if err != nil {
		return store.Action{}, agenterr.QueryGeneration("reasoning call failed", err)
	}

	action, parseErr := parseAction(response)
	if parseErr == nil {
		return action, nil
	}

	state.Metrics.RecordError("malformed_action")
	e.logger.Printf("[LOOP] Malformed action at step %d, re-prompting once: %v", step, parseErr)

	corrective := buildCorrectivePrompt(prompt, response, parseErr)
	response, err = e.llmProvider.Generate(ctx, corrective, llm.WithTemperature(0.0))
	if err != nil {
		return store.Action{}, agenterr.QueryGeneration("corrective reasoning call failed", err)
	}

	action, parseErr = parseAction(response)
	if parseErr != nil {
		return store.Action{}, parseErr
	}
	return action, nil
}

func parseAction(response string) (store.Action, error) {
	jsonContent := extractJSON(response)
	if jsonContent == "" {
		return store.Action{}, agenterr.QueryGeneration("no JSON found in action response", nil)
	}

	var raw rawAction
	if err := json.Unmarshal([]byte(jsonContent), &raw); err != nil {
		return store.Action{}, agenterr.QueryGeneration("action unmarshal failed", err)
	}

	kind, ok := parseActionKind(raw.Action)
	if !ok {
		return store.Action{}, agenterr.QueryGeneration("unmapped action: "+raw.Action, nil)
	}
	if raw.Payload == "" && kind != store.ActionFinalAnswer {
		return store.Action{}, agenterr.QueryGeneration("action "+raw.Action+" is missing its payload", nil)
	}

	return store.Action{
		Kind:       kind,
		Payload:    raw.Payload,
		Reasoning:  raw.Reasoning,
		Confidence: raw.Confidence,
	}, nil
}

func parseActionKind(raw string) (store.ActionKind, bool) {
	switch store.ActionKind(strings.ToUpper(strings.TrimSpace(raw))) {
	case store.ActionSearch:
		return store.ActionSearch, true
	case store.ActionClarify:
		return store.ActionClarify, true
	case store.ActionFinalAnswer:
		return store.ActionFinalAnswer, true
	}
	return "", false
}

// rawAnalysis is the evidence-quality verdict
type rawAnalysis struct {
	Relevance    float64 `json:"relevance"`
	Completeness float64 `json:"completeness"`
	Missing      string  `json:"missing"`
}

// analyze scores the gathered evidence. Scoring is advisory: a failed
// or unparsable analysis counts as below-threshold so the loop keeps
// refining instead of answering on unknown-quality evidence.
func (e *Engine) analyze(ctx context.Context, state *store.AgentState, enhanced *store.EnhancedQuery) (float64, float64) {
	prompt := buildAnalysisPrompt(state, enhanced)

	response, err := e.llmProvider.Generate(ctx, prompt, llm.WithTemperature(0.0))
	if err != nil {
		state.Metrics.RecordError("analysis_failed")
		return 0, 0
	}

	jsonContent := extractJSON(response)
	if jsonContent == "" {
		state.Metrics.RecordError("analysis_unparsable")
		return 0, 0
	}

	var analysis rawAnalysis
	if err := json.Unmarshal([]byte(jsonContent), &analysis); err != nil {
		state.Metrics.RecordError("analysis_unparsable")
		return 0, 0
	}

	return clamp01(analysis.Relevance), clamp01(analysis.Completeness)
}

// compose produces the final answer from the gathered evidence.
func (e *Engine) compose(ctx context.Context, state *store.AgentState, enhanced *store.EnhancedQuery, step int, cacheHit, forced bool) (*Outcome, error) {
	prompt := buildAnswerPrompt(state, enhanced, forced)

	var answer string
	err := retry(ctx, e.cfg.MaxRetries, e.cfg.BaseDelay, e.cfg.BackoffFactor, func() error {
		response, err := e.llmProvider.Generate(ctx, prompt)
		if err != nil {
			return err
		}
		answer = strings.TrimSpace(response)
		return nil
	})
	if err != nil {
		return nil, agenterr.QueryGeneration("answer composition failed", err)
	}

	state.HasFinalAnswer = true
	return &Outcome{
		Answer:    answer,
		Sources:   state.SearchResults,
		Steps:     step,
		QueryType: enhanced.QueryType,
		CacheHit:  cacheHit,
		Metrics:   e.finishMetrics(state),
	}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
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
