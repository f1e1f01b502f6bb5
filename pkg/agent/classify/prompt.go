package classify

import (
	"fmt"
	"strings"
)

// buildPrompt composes the fixed classification template. The model is
// asked for strict JSON only; anything else fails the parse.
func buildPrompt(query string) string {
	var prompt strings.Builder

	prompt.WriteString("<system>\n")
	prompt.WriteString("You are a query classifier for a document question-answering system.\n")
	prompt.WriteString("You do NOT answer questions. You only classify them and extract constraints.\n")
	prompt.WriteString("</system>\n\n")

	prompt.WriteString("<user_query>\n")
	prompt.WriteString(query)
	prompt.WriteString("\n</user_query>\n\n")

	prompt.WriteString("<classification_rules>\n")
	prompt.WriteString("Choose exactly ONE query_type:\n\n")
	prompt.WriteString("STRUCTURED: The answer requires aggregating or filtering tabular records\n")
	prompt.WriteString("  - totals, counts, averages, rankings over structured fields\n")
	prompt.WriteString("  - Example: \"total revenue in Q1 2024\", \"how many invoices over $500?\"\n\n")
	prompt.WriteString("UNSTRUCTURED: The answer lives in free-text document content\n")
	prompt.WriteString("  - explanations, summaries, quotes, \"what does X say about Y\"\n\n")
	prompt.WriteString("HYBRID: The answer needs BOTH tabular aggregation AND document content\n")
	prompt.WriteString("  - Example: \"compare our Q1 revenue with what the board report says\"\n")
	prompt.WriteString("</classification_rules>\n\n")

	prompt.WriteString("<constraint_extraction>\n")
	prompt.WriteString("temporal_context: if the query names a time period, resolve it to an\n")
	prompt.WriteString("ISO date range, e.g. Q1 2024 → {\"start\": \"2024-01-01\", \"end\": \"2024-03-31\"}.\n")
	prompt.WriteString("Use null when no period is mentioned.\n\n")
	prompt.WriteString("numerical_filters: if the query constrains a numeric field, emit\n")
	prompt.WriteString("{\"field\": {\"op\": \"$gt|$gte|$lt|$lte|$eq\", \"value\": N}}. Use null otherwise.\n")
	prompt.WriteString("</constraint_extraction>\n\n")

	prompt.WriteString("<output_format>\n")
	prompt.WriteString("Respond with ONLY valid JSON:\n")
	prompt.WriteString("{\n")
	prompt.WriteString("  \"query_type\": \"STRUCTURED|UNSTRUCTURED|HYBRID\",\n")
	prompt.WriteString("  \"enhanced_query\": \"reworded, self-contained version of the query\",\n")
	prompt.WriteString(fmt.Sprintf("  \"data_sources\": [\"%s\", \"%s\"],\n", "records", "documents"))
	prompt.WriteString("  \"temporal_context\": {\"start\": \"YYYY-MM-DD\", \"end\": \"YYYY-MM-DD\"} or null,\n")
	prompt.WriteString("  \"numerical_filters\": {\"field\": {\"op\": \"$gt\", \"value\": 0}} or null,\n")
	prompt.WriteString("  \"reasoning\": \"Brief explanation\"\n")
	prompt.WriteString("}\n")
	prompt.WriteString("</output_format>")

	return prompt.String()
}
