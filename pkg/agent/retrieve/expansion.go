package retrieve

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var quotedString = regexp.MustCompile(`"([^"]+)"`)

// parseExpansions recovers query variants from an LLM response in
// three tiers: a strict JSON list of strings, then any quoted strings
// in the text, then the original query alone. Expansion never fails;
// the worst case is searching with the original query only.
func parseExpansions(original, response string, limit int) []string {
	variants := []string{original}
	seen := map[string]bool{strings.ToLower(original): true}

	add := func(v string) {
		v = strings.TrimSpace(v)
		if v == "" || seen[strings.ToLower(v)] {
			return
		}
		seen[strings.ToLower(v)] = true
		variants = append(variants, v)
	}

	for _, v := range parseStrictList(response) {
		add(v)
	}
	if len(variants) == 1 {
		for _, m := range quotedString.FindAllStringSubmatch(response, -1) {
			add(m[1])
		}
	}

	if len(variants) > limit+1 {
		variants = variants[:limit+1]
	}
	return variants
}

func parseStrictList(response string) []string {
	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")
	if start == -1 || end == -1 || end <= start {
		return nil
	}

	var list []string
	if err := json.Unmarshal([]byte(response[start:end+1]), &list); err != nil {
		return nil
	}
	return list
}

func buildExpansionPrompt(query string, count int) string {
	var sb strings.Builder

	sb.WriteString("<system>\n")
	sb.WriteString("You rewrite a search query into semantically equivalent variants ")
	sb.WriteString("that surface different vocabulary for the same intent.\n")
	sb.WriteString("</system>\n\n")

	sb.WriteString("<rules>\n")
	sb.WriteString(fmt.Sprintf("1. Produce exactly %d variants.\n", count))
	sb.WriteString("2. Keep the original meaning; change the wording.\n")
	sb.WriteString("3. Output ONLY a JSON array of strings.\n")
	sb.WriteString("</rules>\n\n")

	sb.WriteString("<query>\n")
	sb.WriteString(query)
	sb.WriteString("\n</query>\n\n")

	sb.WriteString("<output_format>\n")
	sb.WriteString(`["variant one", "variant two", "variant three"]`)
	sb.WriteString("\n</output_format>\n")

	return sb.String()
}
