package structured

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"ai-docquery-be/pkg/agent/agenterr"
	"ai-docquery-be/pkg/llm"
	"ai-docquery-be/pkg/store"
)

type stubLLM struct {
	response string
	err      error
	calls    int
}

func (s *stubLLM) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	s.calls++
	return s.response, s.err
}

func (s *stubLLM) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	s.calls++
	return s.response, s.err
}

type stubRecords struct {
	rows []Row
	err  error
}

func (s *stubRecords) FindByCollection(ctx context.Context, userID, collection string) ([]Row, error) {
	return s.rows, s.err
}

func testSchema() Schema {
	return Schema{
		"sales": {
			"date":   "string",
			"amount": "number",
			"region": "string",
		},
	}
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func salesRows() []Row {
	return []Row{
		{"user_id": "u1", "date": "2024-01-15", "amount": 100.0, "region": "east"},
		{"user_id": "u1", "date": "2024-02-20", "amount": 250.0, "region": "west"},
		{"user_id": "u1", "date": "2024-05-01", "amount": 999.0, "region": "east"},
	}
}

func TestExecuteRevenueAggregation(t *testing.T) {
	llmStub := &stubLLM{response: `[
		{"$match": {"date": {"$gte": "2024-01-01", "$lte": "2024-03-31"}}},
		{"$group": {"_id": null, "total_revenue": {"$sum": "$amount"}}}
	]`}
	records := &stubRecords{rows: salesRows()}
	gen := NewGenerator(llmStub, records, testSchema(), quietLogger())

	enhanced := &store.EnhancedQuery{
		OriginalQuery:       "What was my total revenue in Q1 2024?",
		EnhancedQuery:       "total revenue between 2024-01-01 and 2024-03-31",
		QueryType:           store.QueryTypeStructured,
		RequiredDataSources: []string{"sales"},
	}

	result, err := gen.Execute(context.Background(), enhanced, "u1")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	rows, ok := result.Content.([]Row)
	if !ok {
		t.Fatalf("Content type = %T, want []Row", result.Content)
	}
	if len(rows) != 1 {
		t.Fatalf("result rows = %d, want 1", len(rows))
	}
	if got := rows[0]["total_revenue"]; got != 350.0 {
		t.Errorf("total_revenue = %v, want 350 (the May row must be excluded)", got)
	}

	if got := result.Metadata["total_records"]; got != 1 {
		t.Errorf("metadata total_records = %v, want 1", got)
	}

	filters, ok := result.Metadata["query_filters"].([]map[string]interface{})
	if !ok || len(filters) != 3 {
		t.Fatalf("query_filters = %v, want 3 stages including the injected tenant stage", result.Metadata["query_filters"])
	}
	match, ok := filters[0]["$match"].(map[string]interface{})
	if !ok || match["user_id"] != "u1" {
		t.Errorf("stage 0 = %v, want tenant $match on user_id", filters[0])
	}
}

func TestExecuteTenantStageFiltersForeignRows(t *testing.T) {
	// A store bug that leaks another tenant's rows is still caught by
	// the injected stage 0.
	llmStub := &stubLLM{response: `[{"$group": {"_id": null, "n": {"$count": 1}}}]`}
	records := &stubRecords{rows: []Row{
		{"user_id": "u1", "amount": 10.0},
		{"user_id": "intruder", "amount": 20.0},
	}}
	gen := NewGenerator(llmStub, records, testSchema(), quietLogger())

	enhanced := &store.EnhancedQuery{
		EnhancedQuery:       "count records",
		QueryType:           store.QueryTypeStructured,
		RequiredDataSources: []string{"sales"},
	}

	result, err := gen.Execute(context.Background(), enhanced, "u1")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	rows := result.Content.([]Row)
	if got := rows[0]["n"]; got != 1.0 {
		t.Errorf("count = %v, want 1 (foreign row must not survive stage 0)", got)
	}
}

func TestExecuteRejectsInvalidPipelines(t *testing.T) {
	cases := []struct {
		name     string
		response string
	}{
		{"no json", "I cannot generate a pipeline for that."},
		{"object not list", `{"$match": {"amount": 1}}`},
		{"scalar element", `[42]`},
		{"two operators in one stage", `[{"$match": {}, "$limit": 5}]`},
		{"unknown operator", `[{"$unwind": "$items"}]`},
		{"truncated", `[{"$match": {"amount"`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			llmStub := &stubLLM{response: tc.response}
			records := &stubRecords{rows: salesRows()}
			gen := NewGenerator(llmStub, records, testSchema(), quietLogger())

			enhanced := &store.EnhancedQuery{
				EnhancedQuery:       "anything",
				RequiredDataSources: []string{"sales"},
			}

			_, err := gen.Execute(context.Background(), enhanced, "u1")
			if !agenterr.IsKind(err, agenterr.KindQueryGeneration) {
				t.Errorf("Execute() error = %v, want KindQueryGeneration", err)
			}
		})
	}
}

func TestValidatePipelineIsIdempotent(t *testing.T) {
	raw := `[{"$sort": {"amount": -1}}, {"$limit": 3}]`

	first, err := ValidatePipeline(raw)
	if err != nil {
		t.Fatalf("first ValidatePipeline() error = %v", err)
	}
	second, err := ValidatePipeline(raw)
	if err != nil {
		t.Fatalf("second ValidatePipeline() error = %v", err)
	}
	if len(first) != len(second) {
		t.Errorf("stage counts differ: %d vs %d", len(first), len(second))
	}

	bad := `[{"$match": {}, "$limit": 1}]`
	if _, err := ValidatePipeline(bad); err == nil {
		t.Fatal("expected error on first validation")
	}
	if _, err := ValidatePipeline(bad); err == nil {
		t.Fatal("expected the same error on repeated validation")
	}
}

func TestExecuteStoreFailure(t *testing.T) {
	llmStub := &stubLLM{response: `[{"$limit": 5}]`}
	records := &stubRecords{err: errors.New("connection refused")}
	gen := NewGenerator(llmStub, records, testSchema(), quietLogger())

	enhanced := &store.EnhancedQuery{
		EnhancedQuery:       "anything",
		RequiredDataSources: []string{"sales"},
	}

	_, err := gen.Execute(context.Background(), enhanced, "u1")
	if !agenterr.IsKind(err, agenterr.KindQueryExecution) {
		t.Errorf("Execute() error = %v, want KindQueryExecution", err)
	}
}

func TestExecuteUnknownCollection(t *testing.T) {
	llmStub := &stubLLM{response: `[{"$limit": 5}]`}
	gen := NewGenerator(llmStub, &stubRecords{}, testSchema(), quietLogger())

	enhanced := &store.EnhancedQuery{
		EnhancedQuery:       "anything",
		RequiredDataSources: []string{"inventory"},
	}

	_, err := gen.Execute(context.Background(), enhanced, "u1")
	if !agenterr.IsKind(err, agenterr.KindQueryGeneration) {
		t.Errorf("Execute() error = %v, want KindQueryGeneration", err)
	}
	if llmStub.calls != 0 {
		t.Errorf("llm calls = %d, want 0 (no prompt without a target collection)", llmStub.calls)
	}
}

func TestApplyPipelineStages(t *testing.T) {
	rows := []Row{
		{"region": "east", "amount": 100.0},
		{"region": "west", "amount": 250.0},
		{"region": "east", "amount": 50.0},
		{"region": "north", "amount": 300.0},
	}

	t.Run("match operators", func(t *testing.T) {
		out, err := ApplyPipeline(rows, []Stage{
			{"$match": map[string]interface{}{"amount": map[string]interface{}{"$gt": 75.0, "$lte": 250.0}}},
		})
		if err != nil {
			t.Fatalf("ApplyPipeline() error = %v", err)
		}
		if len(out) != 2 {
			t.Errorf("matched rows = %d, want 2", len(out))
		}
	})

	t.Run("match in", func(t *testing.T) {
		out, err := ApplyPipeline(rows, []Stage{
			{"$match": map[string]interface{}{"region": map[string]interface{}{"$in": []interface{}{"east", "north"}}}},
		})
		if err != nil {
			t.Fatalf("ApplyPipeline() error = %v", err)
		}
		if len(out) != 3 {
			t.Errorf("matched rows = %d, want 3", len(out))
		}
	})

	t.Run("group by field", func(t *testing.T) {
		out, err := ApplyPipeline(rows, []Stage{
			{"$group": map[string]interface{}{
				"_id":   "$region",
				"total": map[string]interface{}{"$sum": "$amount"},
				"avg":   map[string]interface{}{"$avg": "$amount"},
			}},
		})
		if err != nil {
			t.Fatalf("ApplyPipeline() error = %v", err)
		}
		if len(out) != 3 {
			t.Fatalf("groups = %d, want 3", len(out))
		}
		totals := map[interface{}]interface{}{}
		for _, g := range out {
			totals[g["_id"]] = g["total"]
		}
		if totals["east"] != 150.0 {
			t.Errorf("east total = %v, want 150", totals["east"])
		}
	})

	t.Run("sort and limit", func(t *testing.T) {
		out, err := ApplyPipeline(rows, []Stage{
			{"$sort": map[string]interface{}{"amount": -1.0}},
			{"$limit": 2.0},
		})
		if err != nil {
			t.Fatalf("ApplyPipeline() error = %v", err)
		}
		if len(out) != 2 || out[0]["amount"] != 300.0 || out[1]["amount"] != 250.0 {
			t.Errorf("top rows = %v, want amounts [300 250]", out)
		}
	})

	t.Run("compound sort is deterministic", func(t *testing.T) {
		// Fields apply lexicographically: amount desc primary, then
		// region asc. Repeated runs must agree despite map iteration.
		var first []Row
		for i := 0; i < 50; i++ {
			out, err := ApplyPipeline(rows, []Stage{
				{"$sort": map[string]interface{}{"region": 1.0, "amount": -1.0}},
			})
			if err != nil {
				t.Fatalf("ApplyPipeline() error = %v", err)
			}
			if out[0]["amount"] != 300.0 || out[3]["amount"] != 50.0 {
				t.Fatalf("order = %v, want amounts [300 250 100 50]", out)
			}
			if first == nil {
				first = out
				continue
			}
			for j := range out {
				if out[j]["amount"] != first[j]["amount"] {
					t.Fatalf("run %d ordering diverged at row %d: %v vs %v", i, j, out, first)
				}
			}
		}
	})

	t.Run("project", func(t *testing.T) {
		out, err := ApplyPipeline(rows, []Stage{
			{"$project": map[string]interface{}{"region": 1.0}},
		})
		if err != nil {
			t.Fatalf("ApplyPipeline() error = %v", err)
		}
		if _, present := out[0]["amount"]; present {
			t.Error("amount survived a projection that excluded it")
		}
		if _, present := out[0]["region"]; !present {
			t.Error("region missing from projection output")
		}
	})

	t.Run("min max", func(t *testing.T) {
		out, err := ApplyPipeline(rows, []Stage{
			{"$group": map[string]interface{}{
				"_id": nil,
				"lo":  map[string]interface{}{"$min": "$amount"},
				"hi":  map[string]interface{}{"$max": "$amount"},
			}},
		})
		if err != nil {
			t.Fatalf("ApplyPipeline() error = %v", err)
		}
		if out[0]["lo"] != 50.0 || out[0]["hi"] != 300.0 {
			t.Errorf("lo/hi = %v/%v, want 50/300", out[0]["lo"], out[0]["hi"])
		}
	})
}
