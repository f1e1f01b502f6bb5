package retrieve

import (
	"context"
	"errors"
	"io"
	"log"
	"math"
	"testing"
	"time"

	"ai-docquery-be/pkg/agent/agenterr"
	"ai-docquery-be/pkg/embedding"
	"ai-docquery-be/pkg/llm"
	"ai-docquery-be/pkg/store"
)

type stubLLM struct {
	response string
	err      error
}

func (s *stubLLM) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	return s.response, s.err
}

func (s *stubLLM) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return s.response, s.err
}

type stubEmbedder struct {
	err error
}

func (s *stubEmbedder) Generate(text string, taskType string) (*embedding.EmbeddingResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &embedding.EmbeddingResponse{
		Embedding: embedding.EmbeddingResponseEmbedding{Values: []float32{0.1, 0.2, 0.3}},
	}, nil
}

type stubSearcher struct {
	dense         []store.RetrievedDocument
	sparse        []store.RetrievedDocument
	denseErr      error
	sparseErr     error
	denseFilters  []*store.MetadataFilter
	sparseFilters []*store.MetadataFilter
}

func (s *stubSearcher) SearchDense(ctx context.Context, userID string, vector []float32, topK int, filter *store.MetadataFilter) ([]store.RetrievedDocument, error) {
	s.denseFilters = append(s.denseFilters, filter)
	return s.dense, s.denseErr
}

func (s *stubSearcher) SearchSparse(ctx context.Context, userID string, vector []float32, topK int, filter *store.MetadataFilter) ([]store.RetrievedDocument, error) {
	s.sparseFilters = append(s.sparseFilters, filter)
	return s.sparse, s.sparseErr
}

func testConfig() Config {
	return Config{
		DenseWeight:    0.7,
		SparseWeight:   0.3,
		ExpansionCount: 0,
		TopK:           10,
		ScoreThreshold: 0.0,
	}
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func doc(id, content string, score float64) store.RetrievedDocument {
	return store.RetrievedDocument{ID: id, Content: content, Score: score}
}

func TestRetrieveFusesBothChannels(t *testing.T) {
	searcher := &stubSearcher{
		dense:  []store.RetrievedDocument{doc("a", "alpha", 0.9), doc("b", "beta", 0.5)},
		sparse: []store.RetrievedDocument{doc("a", "alpha", 0.4), doc("c", "gamma", 0.8)},
	}
	r := NewRetriever(&stubLLM{}, &stubEmbedder{}, searcher, testConfig(), quietLogger())

	result, err := r.Retrieve(context.Background(), "u1", "refund policy", nil)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}

	if len(result.SourceDocuments) != 3 {
		t.Fatalf("documents = %d, want 3 (a deduplicated, b, c)", len(result.SourceDocuments))
	}

	scores := map[string]float64{}
	for _, d := range result.SourceDocuments {
		scores[d.ID] = d.Score
	}
	// a: 0.7*0.9 + 0.3*0.4 = 0.75
	if math.Abs(scores["a"]-0.75) > 1e-9 {
		t.Errorf("fused score for a = %v, want 0.75", scores["a"])
	}
	if result.SourceDocuments[0].ID != "a" {
		t.Errorf("top document = %s, want a", result.SourceDocuments[0].ID)
	}
}

func TestRetrieveFusionIsOrderIndependent(t *testing.T) {
	forward := &stubSearcher{
		dense:  []store.RetrievedDocument{doc("a", "alpha", 0.6)},
		sparse: []store.RetrievedDocument{doc("a", "alpha", 0.9)},
	}
	// Same evidence with the channels swapped: the per-channel weights
	// must still attach to the right channel.
	swapped := &stubSearcher{
		dense:  []store.RetrievedDocument{doc("a", "alpha", 0.9)},
		sparse: []store.RetrievedDocument{doc("a", "alpha", 0.6)},
	}

	r1 := NewRetriever(&stubLLM{}, &stubEmbedder{}, forward, testConfig(), quietLogger())
	r2 := NewRetriever(&stubLLM{}, &stubEmbedder{}, swapped, testConfig(), quietLogger())

	res1, err := r1.Retrieve(context.Background(), "u1", "q", nil)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	res2, err := r2.Retrieve(context.Background(), "u1", "q", nil)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}

	// 0.7*0.6 + 0.3*0.9 = 0.69 vs 0.7*0.9 + 0.3*0.6 = 0.81
	if math.Abs(res1.SourceDocuments[0].Score-0.69) > 1e-9 {
		t.Errorf("forward score = %v, want 0.69", res1.SourceDocuments[0].Score)
	}
	if math.Abs(res2.SourceDocuments[0].Score-0.81) > 1e-9 {
		t.Errorf("swapped score = %v, want 0.81", res2.SourceDocuments[0].Score)
	}
}

func TestRetrieveDeduplicationKeepsFirstContent(t *testing.T) {
	searcher := &stubSearcher{
		dense:  []store.RetrievedDocument{doc("x", "dense copy", 0.8)},
		sparse: []store.RetrievedDocument{doc("x", "sparse copy", 0.8)},
	}
	r := NewRetriever(&stubLLM{}, &stubEmbedder{}, searcher, testConfig(), quietLogger())

	result, err := r.Retrieve(context.Background(), "u1", "q", nil)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(result.SourceDocuments) != 1 {
		t.Fatalf("documents = %d, want 1", len(result.SourceDocuments))
	}
	if got := result.SourceDocuments[0].Content; got != "dense copy" {
		t.Errorf("content = %q, want the first sighting to win", got)
	}
}

func TestRetrieveThresholdAndTopK(t *testing.T) {
	searcher := &stubSearcher{
		dense: []store.RetrievedDocument{
			doc("a", "a", 0.9), doc("b", "b", 0.8), doc("c", "c", 0.2),
		},
	}
	cfg := testConfig()
	cfg.ScoreThreshold = 0.5
	cfg.TopK = 1
	r := NewRetriever(&stubLLM{}, &stubEmbedder{}, searcher, cfg, quietLogger())

	result, err := r.Retrieve(context.Background(), "u1", "q", nil)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(result.SourceDocuments) != 1 {
		t.Fatalf("documents = %d, want 1 after threshold and topK", len(result.SourceDocuments))
	}
	if result.SourceDocuments[0].ID != "a" {
		t.Errorf("kept document = %s, want a", result.SourceDocuments[0].ID)
	}
}

func TestRetrieveSingleChannelFailureDegrades(t *testing.T) {
	searcher := &stubSearcher{
		dense:     []store.RetrievedDocument{doc("a", "alpha", 0.9)},
		sparseErr: errors.New("index offline"),
	}
	r := NewRetriever(&stubLLM{}, &stubEmbedder{}, searcher, testConfig(), quietLogger())

	result, err := r.Retrieve(context.Background(), "u1", "q", nil)
	if err != nil {
		t.Fatalf("Retrieve() error = %v, want degraded success", err)
	}
	if len(result.SourceDocuments) != 1 {
		t.Errorf("documents = %d, want 1 from the surviving channel", len(result.SourceDocuments))
	}
}

func TestRetrieveAllChannelsFailed(t *testing.T) {
	searcher := &stubSearcher{
		denseErr:  errors.New("down"),
		sparseErr: errors.New("down"),
	}
	r := NewRetriever(&stubLLM{}, &stubEmbedder{}, searcher, testConfig(), quietLogger())

	_, err := r.Retrieve(context.Background(), "u1", "q", nil)
	if !agenterr.IsKind(err, agenterr.KindRetrieval) {
		t.Errorf("Retrieve() error = %v, want KindRetrieval", err)
	}
}

func TestRetrieveEmbeddingFailureCountsAsDenseFailure(t *testing.T) {
	searcher := &stubSearcher{
		sparse: []store.RetrievedDocument{doc("s", "sparse", 0.7)},
	}
	r := NewRetriever(&stubLLM{}, &stubEmbedder{err: errors.New("embedder down")}, searcher, testConfig(), quietLogger())

	result, err := r.Retrieve(context.Background(), "u1", "q", nil)
	if err != nil {
		t.Fatalf("Retrieve() error = %v, want sparse-only degradation", err)
	}
	if len(result.SourceDocuments) != 1 || result.SourceDocuments[0].ID != "s" {
		t.Errorf("documents = %v, want only the sparse hit", result.SourceDocuments)
	}
}

func TestRetrievePassesFilterToEveryChannelSearch(t *testing.T) {
	searcher := &stubSearcher{
		dense: []store.RetrievedDocument{doc("a", "alpha", 0.9)},
	}
	r := NewRetriever(&stubLLM{}, &stubEmbedder{}, searcher, testConfig(), quietLogger())

	filter := &store.MetadataFilter{
		Temporal: &store.TemporalContext{
			Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		},
		Numerical: map[string]store.Condition{"amount": {Op: "$gt", Value: 1000}},
	}

	if _, err := r.Retrieve(context.Background(), "u1", "q1 sales", filter); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}

	if len(searcher.denseFilters) == 0 || len(searcher.sparseFilters) == 0 {
		t.Fatal("both channels must have been searched")
	}
	for _, got := range append(searcher.denseFilters, searcher.sparseFilters...) {
		if got == nil || got.Temporal == nil {
			t.Fatal("temporal constraint did not reach the channel search")
		}
		if !got.Temporal.Start.Equal(filter.Temporal.Start) || !got.Temporal.End.Equal(filter.Temporal.End) {
			t.Errorf("temporal window = %v..%v, want %v..%v",
				got.Temporal.Start, got.Temporal.End, filter.Temporal.Start, filter.Temporal.End)
		}
		if got.Numerical["amount"].Op != "$gt" {
			t.Errorf("numerical condition = %+v, want the amount bound carried through", got.Numerical)
		}
	}
}

func TestParseExpansions(t *testing.T) {
	cases := []struct {
		name     string
		response string
		want     int
	}{
		{"strict json list", `["how do refunds work", "return policy details", "money back rules"]`, 4},
		{"quoted fallback", `Here are variants: "refund procedure" and "return rules".`, 3},
		{"garbage falls back to original", `no variants today`, 1},
		{"duplicates collapse", `["refund policy", "REFUND POLICY", "other wording"]`, 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseExpansions("refund policy", tc.response, 3)
			if len(got) != tc.want {
				t.Errorf("parseExpansions() = %v (%d variants), want %d", got, len(got), tc.want)
			}
			if got[0] != "refund policy" {
				t.Errorf("first variant = %q, want the original query", got[0])
			}
		})
	}
}
