package structured

import (
	"fmt"
	"sort"
	"strings"

	"ai-docquery-be/pkg/store"
)

// buildPipelinePrompt asks for a strict JSON aggregation pipeline. The
// tenant filter is deliberately absent from the instructions: code
// injects it.
func buildPipelinePrompt(enhanced *store.EnhancedQuery, collection string, fields map[string]string) string {
	var sb strings.Builder

	sb.WriteString("<system>\n")
	sb.WriteString("You are a database query generator. You translate an analytical question ")
	sb.WriteString("into a JSON aggregation pipeline for the collection below.\n")
	sb.WriteString("</system>\n\n")

	sb.WriteString("<collection_schema>\n")
	sb.WriteString(fmt.Sprintf("Collection: %s\n", collection))
	for _, field := range sortedFields(fields) {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", field, fields[field]))
	}
	sb.WriteString("</collection_schema>\n\n")

	sb.WriteString("<pipeline_rules>\n")
	sb.WriteString("1. Output ONLY a JSON array of stage objects, nothing else.\n")
	sb.WriteString("2. Each stage object has exactly one operator key.\n")
	sb.WriteString("3. Allowed operators: $match, $group, $sort, $limit, $project.\n")
	sb.WriteString("4. Comparison operators inside $match: $gt, $gte, $lt, $lte, $eq, $ne, $in.\n")
	sb.WriteString("5. Accumulators inside $group: $sum, $avg, $min, $max, $count.\n")
	sb.WriteString("6. Dates are ISO strings (YYYY-MM-DD).\n")
	sb.WriteString("7. Never filter on user or tenant fields.\n")
	sb.WriteString("</pipeline_rules>\n\n")

	if enhanced.TemporalContext != nil || len(enhanced.NumericalFilters) > 0 {
		sb.WriteString("<required_constraints>\n")
		if tc := enhanced.TemporalContext; tc != nil {
			sb.WriteString(fmt.Sprintf("Restrict results to dates between %s and %s using a $match stage.\n",
				tc.Start.Format("2006-01-02"), tc.End.Format("2006-01-02")))
		}
		for _, field := range sortedFilterFields(enhanced.NumericalFilters) {
			cond := enhanced.NumericalFilters[field]
			sb.WriteString(fmt.Sprintf("Apply the numerical filter %s %s %v using a $match stage.\n",
				field, cond.Op, cond.Value))
		}
		sb.WriteString("</required_constraints>\n\n")
	}

	sb.WriteString("<query>\n")
	sb.WriteString(enhanced.EnhancedQuery)
	sb.WriteString("\n</query>\n\n")

	sb.WriteString("<output_format>\n")
	sb.WriteString(`[{"$match": {"date": {"$gte": "2024-01-01"}}}, {"$group": {"_id": null, "total": {"$sum": "$amount"}}}]`)
	sb.WriteString("\n</output_format>\n")

	return sb.String()
}

func sortedFields(fields map[string]string) []string {
	out := make([]string, 0, len(fields))
	for f := range fields {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func sortedFilterFields(filters map[string]store.Condition) []string {
	out := make([]string, 0, len(filters))
	for f := range filters {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
