package store

import "time"

// ActionKind tags the agent's proposed next step
type ActionKind string

const (
	ActionSearch      ActionKind = "SEARCH"
	ActionClarify     ActionKind = "CLARIFY"
	ActionFinalAnswer ActionKind = "FINAL_ANSWER"
	ActionCombine     ActionKind = "COMBINE"
)

// Action is the tagged variant the reasoning loop parses from the LLM.
// Payload carries the search query, clarification question or answer text.
type Action struct {
	Kind       ActionKind             `json:"kind"`
	Payload    string                 `json:"payload"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
	Reasoning  string                 `json:"reasoning"`
	Confidence float64                `json:"confidence"`
}

// ChatTurn is one ordered entry of the conversation history
type ChatTurn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Metrics is read-only telemetry collected during one turn. It never
// alters control flow.
type Metrics struct {
	SearchCount    int            `json:"search_count"`
	RelevanceHist  []float64      `json:"relevance_history"`
	CompletionHist []float64      `json:"completeness_history"`
	ErrorCounters  map[string]int `json:"error_counters"`
	StartedAt      time.Time      `json:"started_at"`
	LatencyMs      int64          `json:"latency_ms"`
}

// RecordError bumps the counter for one error category.
func (m *Metrics) RecordError(category string) {
	if m.ErrorCounters == nil {
		m.ErrorCounters = make(map[string]int)
	}
	m.ErrorCounters[category]++
}

// RecordScores appends one analysis pass to the score history.
func (m *Metrics) RecordScores(relevance, completeness float64) {
	m.RelevanceHist = append(m.RelevanceHist, relevance)
	m.CompletionHist = append(m.CompletionHist, completeness)
}

// AgentState is owned exclusively by one in-flight conversation turn.
// Created fresh per turn, discarded after it; selected fields are
// persisted by the conversation collaborator.
type AgentState struct {
	SearchCount        int
	ChatHistory        []ChatTurn
	SearchResults      []RetrievedDocument
	HasFinalAnswer     bool
	NeedsClarification bool
	Metrics            Metrics
}

// NewAgentState starts a fresh turn with the given history window.
func NewAgentState(history []ChatTurn) *AgentState {
	return &AgentState{
		ChatHistory: history,
		Metrics: Metrics{
			ErrorCounters: make(map[string]int),
			StartedAt:     time.Now(),
		},
	}
}

// RecordSearch merges one completed search into the state. SearchCount
// is monotonic non-decreasing.
func (s *AgentState) RecordSearch(result *QueryResult) {
	s.SearchCount++
	s.Metrics.SearchCount = s.SearchCount
	if result != nil {
		s.SearchResults = append(s.SearchResults, result.SourceDocuments...)
	}
}

// EvidenceGathered reports whether at least one search has completed.
// FINAL_ANSWER is only honored once this is true.
func (s *AgentState) EvidenceGathered() bool {
	return s.SearchCount >= 1
}
