package route

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"ai-docquery-be/pkg/agent/agenterr"
	"ai-docquery-be/pkg/cache"
	"ai-docquery-be/pkg/store"
)

type stubStructured struct {
	result *store.QueryResult
	err    error
	delay  time.Duration
	calls  int
}

func (s *stubStructured) Execute(ctx context.Context, enhanced *store.EnhancedQuery, userID string) (*store.QueryResult, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.result, s.err
}

type stubRetriever struct {
	result     *store.QueryResult
	err        error
	delay      time.Duration
	calls      int
	lastFilter *store.MetadataFilter
}

func (s *stubRetriever) Retrieve(ctx context.Context, userID, query string, filter *store.MetadataFilter) (*store.QueryResult, error) {
	s.calls++
	s.lastFilter = filter
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.result, s.err
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestRouter(s *stubStructured, u *stubRetriever, timeout time.Duration) *Router {
	return NewRouter(s, u, cache.NewMemoryCache(time.Minute), time.Minute, timeout, quietLogger())
}

func enhancedOf(qt store.QueryType) *store.EnhancedQuery {
	return &store.EnhancedQuery{
		OriginalQuery: "q",
		EnhancedQuery: "q enhanced",
		QueryType:     qt,
	}
}

func structuredResult() *store.QueryResult {
	return &store.QueryResult{
		Content:  []map[string]interface{}{{"total": 42.0}},
		Metadata: map[string]interface{}{"total_records": 1},
	}
}

func unstructuredResult() *store.QueryResult {
	return &store.QueryResult{
		Content:         "the policy says...",
		SourceDocuments: []store.RetrievedDocument{{ID: "d1", Content: "the policy says...", Score: 0.9}},
		Metadata:        map[string]interface{}{"total_documents": 1},
	}
}

func TestDispatchStructuredRoute(t *testing.T) {
	s := &stubStructured{result: structuredResult()}
	u := &stubRetriever{result: unstructuredResult()}
	r := newTestRouter(s, u, time.Second)

	result, err := r.Dispatch(context.Background(), enhancedOf(store.QueryTypeStructured), "u1")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if result.CacheHit {
		t.Error("fresh dispatch must not report a cache hit")
	}
	if s.calls != 1 || u.calls != 0 {
		t.Errorf("calls = structured %d / unstructured %d, want 1 / 0", s.calls, u.calls)
	}
}

func TestDispatchUnstructuredRoute(t *testing.T) {
	s := &stubStructured{result: structuredResult()}
	u := &stubRetriever{result: unstructuredResult()}
	r := newTestRouter(s, u, time.Second)

	result, err := r.Dispatch(context.Background(), enhancedOf(store.QueryTypeUnstructured), "u1")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if s.calls != 0 || u.calls != 1 {
		t.Errorf("calls = structured %d / unstructured %d, want 0 / 1", s.calls, u.calls)
	}
	if len(result.SourceDocuments) != 1 {
		t.Errorf("source documents = %d, want 1", len(result.SourceDocuments))
	}
}

func TestDispatchUnstructuredCarriesQueryConstraints(t *testing.T) {
	s := &stubStructured{result: structuredResult()}
	u := &stubRetriever{result: unstructuredResult()}
	r := newTestRouter(s, u, time.Second)

	enhanced := enhancedOf(store.QueryTypeUnstructured)
	enhanced.TemporalContext = &store.TemporalContext{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	}
	enhanced.NumericalFilters = map[string]store.Condition{"amount": {Op: "$gte", Value: 500}}

	if _, err := r.Dispatch(context.Background(), enhanced, "u1"); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	got := u.lastFilter
	if got == nil || got.Temporal == nil {
		t.Fatal("retriever received no metadata filter; temporal constraint dropped at the route")
	}
	if !got.Temporal.Start.Equal(enhanced.TemporalContext.Start) || !got.Temporal.End.Equal(enhanced.TemporalContext.End) {
		t.Errorf("temporal window = %v..%v, want the classified window", got.Temporal.Start, got.Temporal.End)
	}
	if got.Numerical["amount"].Op != "$gte" {
		t.Errorf("numerical conditions = %+v, want the amount bound", got.Numerical)
	}
}

func TestDispatchCacheKeyedByTemporalWindow(t *testing.T) {
	s := &stubStructured{result: structuredResult()}
	u := &stubRetriever{result: unstructuredResult()}
	r := newTestRouter(s, u, time.Second)

	q1 := enhancedOf(store.QueryTypeUnstructured)
	q1.TemporalContext = &store.TemporalContext{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	}
	if _, err := r.Dispatch(context.Background(), q1, "u1"); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	// Same enhanced text, different window: must not replay Q1's result
	q2 := enhancedOf(store.QueryTypeUnstructured)
	q2.TemporalContext = &store.TemporalContext{
		Start: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2023, 3, 31, 0, 0, 0, 0, time.UTC),
	}
	result, err := r.Dispatch(context.Background(), q2, "u1")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if result.CacheHit {
		t.Error("a different temporal window must not hit the first window's cache entry")
	}
	if u.calls != 2 {
		t.Errorf("retriever calls = %d, want 2", u.calls)
	}
}

func TestDispatchHybridCombinesBranches(t *testing.T) {
	s := &stubStructured{result: structuredResult()}
	u := &stubRetriever{result: unstructuredResult()}
	r := newTestRouter(s, u, time.Second)

	result, err := r.Dispatch(context.Background(), enhancedOf(store.QueryTypeHybrid), "u1")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	combined, ok := result.Content.(store.CombinedContent)
	if !ok {
		t.Fatalf("Content type = %T, want CombinedContent", result.Content)
	}
	if combined.StructuredData == nil || combined.UnstructuredData == nil {
		t.Errorf("combined = %+v, want both branches populated", combined)
	}
	if len(result.SourceDocuments) != 1 {
		t.Errorf("source documents = %d, want the retrieval evidence carried through", len(result.SourceDocuments))
	}
}

func TestDispatchHybridToleratesOneFailure(t *testing.T) {
	s := &stubStructured{err: errors.New("pipeline exploded")}
	u := &stubRetriever{result: unstructuredResult()}
	r := newTestRouter(s, u, time.Second)

	result, err := r.Dispatch(context.Background(), enhancedOf(store.QueryTypeHybrid), "u1")
	if err != nil {
		t.Fatalf("Dispatch() error = %v, want degraded success", err)
	}

	combined := result.Content.(store.CombinedContent)
	if combined.StructuredData != nil {
		t.Error("failed branch must not contribute content")
	}
	if combined.UnstructuredData == nil {
		t.Error("surviving branch missing from combined content")
	}
	if result.Error == "" {
		t.Error("degraded result must carry the branch error")
	}
	if result.Metadata["degraded"] != true {
		t.Error("degraded flag missing from metadata")
	}
}

func TestDispatchHybridBothFail(t *testing.T) {
	s := &stubStructured{err: errors.New("down")}
	u := &stubRetriever{err: errors.New("down")}
	r := newTestRouter(s, u, time.Second)

	_, err := r.Dispatch(context.Background(), enhancedOf(store.QueryTypeHybrid), "u1")
	if !agenterr.IsKind(err, agenterr.KindQueryExecution) {
		t.Errorf("Dispatch() error = %v, want KindQueryExecution", err)
	}
}

func TestDispatchHybridTimeoutWithNothing(t *testing.T) {
	s := &stubStructured{result: structuredResult(), delay: 500 * time.Millisecond}
	u := &stubRetriever{result: unstructuredResult(), delay: 500 * time.Millisecond}
	r := newTestRouter(s, u, 30*time.Millisecond)

	_, err := r.Dispatch(context.Background(), enhancedOf(store.QueryTypeHybrid), "u1")
	if !agenterr.IsKind(err, agenterr.KindTimeout) {
		t.Errorf("Dispatch() error = %v, want KindTimeout", err)
	}
}

func TestDispatchHybridTimeoutWithPartial(t *testing.T) {
	s := &stubStructured{result: structuredResult()}
	u := &stubRetriever{result: unstructuredResult(), delay: 500 * time.Millisecond}
	r := newTestRouter(s, u, 80*time.Millisecond)

	result, err := r.Dispatch(context.Background(), enhancedOf(store.QueryTypeHybrid), "u1")
	if err != nil {
		t.Fatalf("Dispatch() error = %v, want partial result from the fast branch", err)
	}

	combined := result.Content.(store.CombinedContent)
	if combined.StructuredData == nil {
		t.Error("fast branch missing from partial result")
	}
	if combined.UnstructuredData != nil {
		t.Error("slow branch should not have completed")
	}
}

func TestDispatchCachesSuccessOnly(t *testing.T) {
	s := &stubStructured{result: structuredResult()}
	u := &stubRetriever{result: unstructuredResult()}
	r := newTestRouter(s, u, time.Second)

	if _, err := r.Dispatch(context.Background(), enhancedOf(store.QueryTypeStructured), "u1"); err != nil {
		t.Fatalf("first Dispatch() error = %v", err)
	}
	second, err := r.Dispatch(context.Background(), enhancedOf(store.QueryTypeStructured), "u1")
	if err != nil {
		t.Fatalf("second Dispatch() error = %v", err)
	}
	if !second.CacheHit {
		t.Error("repeat dispatch should be a cache hit")
	}
	if s.calls != 1 {
		t.Errorf("structured calls = %d, want 1 (second served from cache)", s.calls)
	}
}

func TestDispatchCacheIsTenantScoped(t *testing.T) {
	s := &stubStructured{result: structuredResult()}
	u := &stubRetriever{result: unstructuredResult()}
	r := newTestRouter(s, u, time.Second)

	if _, err := r.Dispatch(context.Background(), enhancedOf(store.QueryTypeStructured), "u1"); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	other, err := r.Dispatch(context.Background(), enhancedOf(store.QueryTypeStructured), "u2")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if other.CacheHit {
		t.Error("another tenant must not hit the first tenant's cache entry")
	}
	if s.calls != 2 {
		t.Errorf("structured calls = %d, want 2", s.calls)
	}
}

func TestDispatchDegradedResultNotCached(t *testing.T) {
	s := &stubStructured{err: errors.New("down")}
	u := &stubRetriever{result: unstructuredResult()}
	r := newTestRouter(s, u, time.Second)

	if _, err := r.Dispatch(context.Background(), enhancedOf(store.QueryTypeHybrid), "u1"); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	// Structured recovers; the repeat must re-dispatch, not replay the
	// degraded partial
	s.err = nil
	s.result = structuredResult()

	result, err := r.Dispatch(context.Background(), enhancedOf(store.QueryTypeHybrid), "u1")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if result.CacheHit {
		t.Error("degraded partial must not have been cached")
	}
	combined := result.Content.(store.CombinedContent)
	if combined.StructuredData == nil {
		t.Error("recovered branch missing; the degraded partial was replayed")
	}
}
