package store

import (
	"testing"
	"time"
)

func TestConditionMatches(t *testing.T) {
	cases := []struct {
		op    string
		bound float64
		value float64
		want  bool
	}{
		{"$gt", 1000, 1500, true},
		{"$gt", 1000, 1000, false},
		{"$gte", 1000, 1000, true},
		{"$lt", 10, 5, true},
		{"$lte", 10, 10, true},
		{"$eq", 7, 7, true},
		{"$ne", 7, 7, false},
		{"$regex", 1, 1, false}, // unknown operators never match
	}

	for _, tc := range cases {
		got := Condition{Op: tc.op, Value: tc.bound}.Matches(tc.value)
		if got != tc.want {
			t.Errorf("Condition{%s %v}.Matches(%v) = %v, want %v", tc.op, tc.bound, tc.value, got, tc.want)
		}
	}
}

func TestMetadataFilterMatchesNumerical(t *testing.T) {
	filter := &MetadataFilter{
		Numerical: map[string]Condition{"amount": {Op: "$gt", Value: 1000}},
	}

	if filter.MatchesNumerical(map[string]interface{}{"amount": 500.0}) {
		t.Error("evidence below the bound should be rejected")
	}
	if !filter.MatchesNumerical(map[string]interface{}{"amount": 1500.0}) {
		t.Error("evidence above the bound should pass")
	}
	// A field the evidence does not record is unconstrained
	if !filter.MatchesNumerical(map[string]interface{}{"region": "east"}) {
		t.Error("evidence without the field should pass")
	}

	var nilFilter *MetadataFilter
	if !nilFilter.MatchesNumerical(map[string]interface{}{"amount": 1.0}) {
		t.Error("a nil filter constrains nothing")
	}
}

func TestEnhancedQueryMetadataFilter(t *testing.T) {
	bare := &EnhancedQuery{EnhancedQuery: "q"}
	if got := bare.MetadataFilter(); !got.IsZero() {
		t.Errorf("MetadataFilter() = %+v, want zero for an unconstrained query", got)
	}

	window := &TemporalContext{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	}
	constrained := &EnhancedQuery{EnhancedQuery: "q", TemporalContext: window}
	got := constrained.MetadataFilter()
	if got.IsZero() || got.Temporal != window {
		t.Errorf("MetadataFilter() = %+v, want the temporal window carried over", got)
	}
}
