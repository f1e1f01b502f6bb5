package structured

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"ai-docquery-be/pkg/agent/agenterr"
)

// Stage is one aggregation pipeline stage, e.g. {"$match": {...}}
type Stage map[string]interface{}

// Row is one structured record as returned by the record store
type Row map[string]interface{}

var allowedStages = map[string]bool{
	"$match":   true,
	"$group":   true,
	"$sort":    true,
	"$limit":   true,
	"$project": true,
	"$lookup":  true,
}

// ValidatePipeline checks the raw LLM output before anything executes:
// it must parse as JSON, be a list, and every element must be a
// one-operator object. Validation is deterministic — the same input
// always fails (or passes) the same way.
func ValidatePipeline(raw string) ([]Stage, error) {
	jsonContent := extractJSONArray(raw)
	if jsonContent == "" {
		return nil, agenterr.QueryGeneration("no JSON array found in output", nil)
	}

	var parsed interface{}
	if err := json.Unmarshal([]byte(jsonContent), &parsed); err != nil {
		return nil, agenterr.QueryGeneration("pipeline is not valid JSON", err)
	}

	list, ok := parsed.([]interface{})
	if !ok {
		return nil, agenterr.QueryGeneration("pipeline is not a list", nil)
	}

	stages := make([]Stage, 0, len(list))
	for i, elem := range list {
		obj, ok := elem.(map[string]interface{})
		if !ok {
			return nil, agenterr.QueryGeneration(fmt.Sprintf("pipeline element %d is not an object", i), nil)
		}
		if len(obj) != 1 {
			return nil, agenterr.QueryGeneration(fmt.Sprintf("pipeline element %d must have exactly one operator", i), nil)
		}
		for op := range obj {
			if !allowedStages[op] {
				return nil, agenterr.QueryGeneration(fmt.Sprintf("pipeline element %d uses unsupported operator %s", i, op), nil)
			}
		}
		stages = append(stages, Stage(obj))
	}

	return stages, nil
}

// TenantStage builds the isolation $match that is always stage 0.
// It is never sourced from the LLM output.
func TenantStage(userID string) Stage {
	return Stage{"$match": map[string]interface{}{"user_id": userID}}
}

// ApplyPipeline runs the validated stages over the tenant's rows.
func ApplyPipeline(rows []Row, stages []Stage) ([]Row, error) {
	var err error
	for _, stage := range stages {
		for op, spec := range stage {
			switch op {
			case "$match":
				rows, err = applyMatch(rows, spec)
			case "$group":
				rows, err = applyGroup(rows, spec)
			case "$sort":
				rows, err = applySort(rows, spec)
			case "$limit":
				rows, err = applyLimit(rows, spec)
			case "$project":
				rows, err = applyProject(rows, spec)
			case "$lookup":
				// Lookups are resolved by the store before the pipeline
				// runs; as an in-memory stage it is a no-op.
			}
			if err != nil {
				return nil, err
			}
		}
	}
	return rows, nil
}

func applyMatch(rows []Row, spec interface{}) ([]Row, error) {
	conditions, ok := spec.(map[string]interface{})
	if !ok {
		return nil, agenterr.QueryExecution("$match spec is not an object", nil)
	}

	var out []Row
	for _, row := range rows {
		if matchesAll(row, conditions) {
			out = append(out, row)
		}
	}
	return out, nil
}

func matchesAll(row Row, conditions map[string]interface{}) bool {
	for field, cond := range conditions {
		value, present := row[field]
		switch c := cond.(type) {
		case map[string]interface{}:
			if !present || !matchesOperators(value, c) {
				return false
			}
		default:
			if !present || compareValues(value, cond) != 0 {
				return false
			}
		}
	}
	return true
}

func matchesOperators(value interface{}, ops map[string]interface{}) bool {
	for op, operand := range ops {
		switch op {
		case "$gt":
			if compareValues(value, operand) <= 0 {
				return false
			}
		case "$gte":
			if compareValues(value, operand) < 0 {
				return false
			}
		case "$lt":
			if compareValues(value, operand) >= 0 {
				return false
			}
		case "$lte":
			if compareValues(value, operand) > 0 {
				return false
			}
		case "$ne":
			if compareValues(value, operand) == 0 {
				return false
			}
		case "$eq":
			if compareValues(value, operand) != 0 {
				return false
			}
		case "$in":
			list, ok := operand.([]interface{})
			if !ok {
				return false
			}
			found := false
			for _, cand := range list {
				if compareValues(value, cand) == 0 {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// compareValues orders two JSON scalars: numerically when both are
// numbers, lexicographically otherwise. ISO dates compare correctly as
// strings.
func compareValues(a, b interface{}) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func applyGroup(rows []Row, spec interface{}) ([]Row, error) {
	groupSpec, ok := spec.(map[string]interface{})
	if !ok {
		return nil, agenterr.QueryExecution("$group spec is not an object", nil)
	}

	idSpec, hasID := groupSpec["_id"]
	if !hasID {
		return nil, agenterr.QueryExecution("$group is missing _id", nil)
	}

	type bucket struct {
		key  interface{}
		rows []Row
	}
	var order []string
	buckets := make(map[string]*bucket)

	for _, row := range rows {
		key := groupKey(row, idSpec)
		keyStr := fmt.Sprintf("%v", key)
		b, exists := buckets[keyStr]
		if !exists {
			b = &bucket{key: key}
			buckets[keyStr] = b
			order = append(order, keyStr)
		}
		b.rows = append(b.rows, row)
	}

	var out []Row
	for _, keyStr := range order {
		b := buckets[keyStr]
		result := Row{"_id": b.key}
		for outField, accSpec := range groupSpec {
			if outField == "_id" {
				continue
			}
			acc, ok := accSpec.(map[string]interface{})
			if !ok {
				return nil, agenterr.QueryExecution("$group accumulator for "+outField+" is not an object", nil)
			}
			value, err := accumulate(b.rows, acc)
			if err != nil {
				return nil, err
			}
			result[outField] = value
		}
		out = append(out, result)
	}
	return out, nil
}

func groupKey(row Row, idSpec interface{}) interface{} {
	if ref, ok := idSpec.(string); ok && strings.HasPrefix(ref, "$") {
		return row[strings.TrimPrefix(ref, "$")]
	}
	return idSpec
}

func accumulate(rows []Row, acc map[string]interface{}) (interface{}, error) {
	for op, operand := range acc {
		switch op {
		case "$count":
			return float64(len(rows)), nil
		case "$sum":
			// $sum: 1 counts rows; $sum: "$field" totals the field
			if _, isNum := toFloat(operand); isNum {
				return float64(len(rows)), nil
			}
			return foldField(rows, operand, func(total, v float64, _ int) float64 { return total + v })
		case "$avg":
			total, err := foldField(rows, operand, func(total, v float64, _ int) float64 { return total + v })
			if err != nil {
				return nil, err
			}
			if len(rows) == 0 {
				return 0.0, nil
			}
			return total.(float64) / float64(len(rows)), nil
		case "$min":
			return foldField(rows, operand, func(best, v float64, i int) float64 {
				if i == 0 || v < best {
					return v
				}
				return best
			})
		case "$max":
			return foldField(rows, operand, func(best, v float64, i int) float64 {
				if i == 0 || v > best {
					return v
				}
				return best
			})
		default:
			return nil, agenterr.QueryExecution("unsupported accumulator "+op, nil)
		}
	}
	return nil, agenterr.QueryExecution("empty accumulator", nil)
}

func foldField(rows []Row, operand interface{}, fold func(acc, v float64, i int) float64) (interface{}, error) {
	ref, ok := operand.(string)
	if !ok || !strings.HasPrefix(ref, "$") {
		return nil, agenterr.QueryExecution(fmt.Sprintf("accumulator operand %v is not a field reference", operand), nil)
	}
	field := strings.TrimPrefix(ref, "$")

	var acc float64
	for i, row := range rows {
		v, _ := toFloat(row[field])
		acc = fold(acc, v, i)
	}
	return acc, nil
}

func applySort(rows []Row, spec interface{}) ([]Row, error) {
	sortSpec, ok := spec.(map[string]interface{})
	if !ok {
		return nil, agenterr.QueryExecution("$sort spec is not an object", nil)
	}

	// JSON object key order is lost at parse time, so a compound sort
	// applies its fields in lexicographic order: the first field is
	// primary and identical inputs always produce identical output.
	fields := make([]string, 0, len(sortSpec))
	for field := range sortSpec {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	out := make([]Row, len(rows))
	copy(out, rows)

	sort.SliceStable(out, func(i, j int) bool {
		for _, field := range fields {
			cmp := compareValues(out[i][field], out[j][field])
			if cmp == 0 {
				continue
			}
			if d, ok := toFloat(sortSpec[field]); ok && d < 0 {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	return out, nil
}

func applyLimit(rows []Row, spec interface{}) ([]Row, error) {
	n, ok := toFloat(spec)
	if !ok || n < 0 {
		return nil, agenterr.QueryExecution(fmt.Sprintf("$limit %v is not a non-negative number", spec), nil)
	}
	limit := int(n)
	if limit >= len(rows) {
		return rows, nil
	}
	return rows[:limit], nil
}

func applyProject(rows []Row, spec interface{}) ([]Row, error) {
	projSpec, ok := spec.(map[string]interface{})
	if !ok {
		return nil, agenterr.QueryExecution("$project spec is not an object", nil)
	}

	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		projected := Row{}
		for field, include := range projSpec {
			if inc, ok := toFloat(include); ok && inc != 0 {
				if v, present := row[field]; present {
					projected[field] = v
				}
			}
		}
		out = append(out, projected)
	}
	return out, nil
}

// extractJSONArray isolates the first [...] block from a response
func extractJSONArray(response string) string {
	startIdx := strings.Index(response, "[")
	endIdx := strings.LastIndex(response, "]")

	if startIdx == -1 || endIdx == -1 || endIdx <= startIdx {
		return ""
	}

	return response[startIdx : endIdx+1]
}
