package classify

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"ai-docquery-be/pkg/agent/agenterr"
	"ai-docquery-be/pkg/cache"
	"ai-docquery-be/pkg/llm"
	"ai-docquery-be/pkg/store"
)

// stubLLM returns canned responses and counts calls
type stubLLM struct {
	response string
	err      error
	calls    int
}

func (s *stubLLM) Chat(_ context.Context, _ []llm.Message, _ ...llm.Option) (string, error) {
	s.calls++
	return s.response, s.err
}

func (s *stubLLM) Generate(ctx context.Context, _ string, opts ...llm.Option) (string, error) {
	return s.Chat(ctx, nil, opts...)
}

func newTestClassifier(response string) (*Classifier, *stubLLM) {
	stub := &stubLLM{response: response}
	c := NewClassifier(stub, cache.NewMemoryCache(time.Minute), time.Minute, log.New(os.Stderr, "", 0))
	return c, stub
}

const structuredResponse = `{
  "query_type": "structured",
  "enhanced_query": "sum of revenue between 2024-01-01 and 2024-03-31",
  "data_sources": ["records"],
  "temporal_context": {"start": "2024-01-01", "end": "2024-03-31"},
  "numerical_filters": null,
  "reasoning": "aggregation over tabular fields"
}`

func TestClassifyDeterministicFromFixedResponse(t *testing.T) {
	c, _ := newTestClassifier(structuredResponse)

	for i := 0; i < 3; i++ {
		got, err := c.Classify(context.Background(), "total revenue in Q1 2024")
		if err != nil {
			t.Fatalf("Classify() error = %v", err)
		}
		if got.QueryType != store.QueryTypeStructured {
			t.Errorf("QueryType = %s, want STRUCTURED", got.QueryType)
		}
		if got.TemporalContext == nil {
			t.Fatal("TemporalContext = nil, want Q1 2024 window")
		}
		if got.TemporalContext.Start.Format("2006-01-02") != "2024-01-01" {
			t.Errorf("TemporalContext.Start = %v", got.TemporalContext.Start)
		}
		if got.TemporalContext.End.Format("2006-01-02") != "2024-03-31" {
			t.Errorf("TemporalContext.End = %v", got.TemporalContext.End)
		}
	}
}

func TestClassifyCaseInsensitiveQueryType(t *testing.T) {
	tests := []struct {
		raw  string
		want store.QueryType
	}{
		{"structured", store.QueryTypeStructured},
		{"Unstructured", store.QueryTypeUnstructured},
		{"HYBRID", store.QueryTypeHybrid},
	}

	for _, tt := range tests {
		got, ok := store.ParseQueryType(tt.raw)
		if !ok || got != tt.want {
			t.Errorf("ParseQueryType(%q) = %v, %v; want %v", tt.raw, got, ok, tt.want)
		}
	}
}

func TestClassifyRejectsUnmappedType(t *testing.T) {
	c, _ := newTestClassifier(`{"query_type": "MAGIC", "enhanced_query": "x", "data_sources": [], "reasoning": "r"}`)

	_, err := c.Classify(context.Background(), "whatever")
	if !agenterr.IsKind(err, agenterr.KindClassification) {
		t.Fatalf("error kind = %v, want CLASSIFICATION", agenterr.KindOf(err))
	}
}

func TestClassifyRejectsMalformedJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"no json at all", "I think this is a structured query."},
		{"truncated json", `{"query_type": "STRUCTURED", "enhanc`},
		{"missing required keys", `{"query_type": "STRUCTURED"}`},
		{"bad temporal date", `{"query_type": "STRUCTURED", "enhanced_query": "x", "temporal_context": {"start": "soon", "end": "later"}, "reasoning": "r"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClassifier(tt.response)
			_, err := c.Classify(context.Background(), "q")
			if !agenterr.IsKind(err, agenterr.KindClassification) {
				t.Errorf("error kind = %v, want CLASSIFICATION", agenterr.KindOf(err))
			}
		})
	}
}

func TestClassifyMemoizesByNormalizedText(t *testing.T) {
	c, stub := newTestClassifier(structuredResponse)
	ctx := context.Background()

	if _, err := c.Classify(ctx, "Total Revenue in Q1 2024"); err != nil {
		t.Fatalf("first Classify() error = %v", err)
	}
	// Differently-spaced and cased repeat must hit the cache
	if _, err := c.Classify(ctx, "  total   revenue in q1 2024 "); err != nil {
		t.Fatalf("second Classify() error = %v", err)
	}
	if stub.calls != 1 {
		t.Errorf("llm calls = %d, want 1 (memoized)", stub.calls)
	}

	c.Invalidate(ctx, "total revenue in q1 2024")
	if _, err := c.Classify(ctx, "total revenue in Q1 2024"); err != nil {
		t.Fatalf("post-invalidate Classify() error = %v", err)
	}
	if stub.calls != 2 {
		t.Errorf("llm calls after invalidate = %d, want 2", stub.calls)
	}
}

func TestClassifyDoesNotCacheFailures(t *testing.T) {
	c, stub := newTestClassifier("not json")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := c.Classify(ctx, "q"); err == nil {
			t.Fatal("Classify() expected error")
		}
	}
	if stub.calls != 2 {
		t.Errorf("llm calls = %d, want 2 (failures not cached)", stub.calls)
	}
}
