package loop

import (
	"fmt"
	"strings"

	"ai-docquery-be/pkg/store"
)

func buildReasoningPrompt(state *store.AgentState, enhanced *store.EnhancedQuery, step, maxSteps int) string {
	var sb strings.Builder

	sb.WriteString("<system>\n")
	sb.WriteString("You are a research agent answering a question over the user's documents ")
	sb.WriteString("and records. Decide the single next action.\n")
	sb.WriteString("</system>\n\n")

	sb.WriteString("<rules>\n")
	sb.WriteString("1. SEARCH gathers evidence; its payload is the search query.\n")
	sb.WriteString("2. CLARIFY asks the user one question when the request is too ambiguous to search; its payload is the question.\n")
	sb.WriteString("3. FINAL_ANSWER ends the turn; only choose it when the evidence below already answers the question.\n")
	sb.WriteString("4. Never choose FINAL_ANSWER when no evidence has been gathered.\n")
	sb.WriteString("5. Output ONLY one JSON object, nothing else.\n")
	sb.WriteString("</rules>\n\n")

	sb.WriteString("<question>\n")
	sb.WriteString(enhanced.EnhancedQuery)
	sb.WriteString("\n</question>\n\n")

	if len(state.ChatHistory) > 0 {
		sb.WriteString("<conversation>\n")
		for _, turn := range state.ChatHistory {
			sb.WriteString(fmt.Sprintf("%s: %s\n", turn.Role, turn.Content))
		}
		sb.WriteString("</conversation>\n\n")
	}

	sb.WriteString(fmt.Sprintf("<progress>\nStep %d of %d. Searches completed: %d.\n</progress>\n\n",
		step, maxSteps, state.SearchCount))

	writeEvidence(&sb, state)

	sb.WriteString("<output_format>\n")
	sb.WriteString(`{"action": "SEARCH", "payload": "refined search query", "reasoning": "why", "confidence": 0.8}`)
	sb.WriteString("\n</output_format>\n")

	return sb.String()
}

// buildCorrectivePrompt replays the original instructions plus the
// parse failure. Used at most once per action decision.
func buildCorrectivePrompt(original, badResponse string, parseErr error) string {
	var sb strings.Builder

	sb.WriteString(original)
	sb.WriteString("\n<correction>\n")
	sb.WriteString("Your previous reply could not be parsed: ")
	sb.WriteString(parseErr.Error())
	sb.WriteString("\nPrevious reply:\n")
	sb.WriteString(truncate(badResponse, 300))
	sb.WriteString("\nReply again with ONLY the JSON object.\n")
	sb.WriteString("</correction>\n")

	return sb.String()
}

func buildAnalysisPrompt(state *store.AgentState, enhanced *store.EnhancedQuery) string {
	var sb strings.Builder

	sb.WriteString("<system>\n")
	sb.WriteString("You judge whether gathered evidence answers a question.\n")
	sb.WriteString("</system>\n\n")

	sb.WriteString("<question>\n")
	sb.WriteString(enhanced.EnhancedQuery)
	sb.WriteString("\n</question>\n\n")

	writeEvidence(&sb, state)

	sb.WriteString("<output_format>\n")
	sb.WriteString(`{"relevance": 0.0, "completeness": 0.0, "missing": "what is still needed"}`)
	sb.WriteString("\nBoth scores are between 0 and 1.\n")
	sb.WriteString("</output_format>\n")

	return sb.String()
}

func buildAnswerPrompt(state *store.AgentState, enhanced *store.EnhancedQuery, forced bool) string {
	var sb strings.Builder

	sb.WriteString("<system>\n")
	sb.WriteString("You answer the user's question using ONLY the evidence below. ")
	sb.WriteString("Cite nothing that is not in the evidence.\n")
	sb.WriteString("</system>\n\n")

	sb.WriteString("<question>\n")
	sb.WriteString(enhanced.OriginalQuery)
	sb.WriteString("\n</question>\n\n")

	if len(state.ChatHistory) > 0 {
		sb.WriteString("<conversation>\n")
		for _, turn := range state.ChatHistory {
			sb.WriteString(fmt.Sprintf("%s: %s\n", turn.Role, turn.Content))
		}
		sb.WriteString("</conversation>\n\n")
	}

	writeEvidence(&sb, state)

	if forced {
		sb.WriteString("<constraint>\n")
		sb.WriteString("The evidence is incomplete. Answer with what is available and say plainly what could not be determined.\n")
		sb.WriteString("</constraint>\n")
	}

	return sb.String()
}

func writeEvidence(sb *strings.Builder, state *store.AgentState) {
	if len(state.SearchResults) == 0 {
		sb.WriteString("<evidence>\nNone gathered yet.\n</evidence>\n\n")
		return
	}

	sb.WriteString("<evidence>\n")
	for i, doc := range state.SearchResults {
		sb.WriteString(fmt.Sprintf("[%d] (score %.2f) %s\n", i+1, doc.Score, truncate(doc.Content, 500)))
	}
	sb.WriteString("</evidence>\n\n")
}
