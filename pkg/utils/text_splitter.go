package utils

// SplitText breaks document content into chunks of roughly chunkSize
// runes with an overlap so retrieval does not lose context at chunk
// boundaries. Character-based; both vector channels embed the pieces
// as returned.
func SplitText(text string, chunkSize int, overlap int) []string {
	if len(text) <= chunkSize {
		return []string{text}
	}

	var chunks []string
	runes := []rune(text)
	totalLen := len(runes)

	step := chunkSize - overlap
	if step <= 0 {
		step = chunkSize // fallback if overlap >= chunkSize
	}

	for i := 0; i < totalLen; i += step {
		end := i + chunkSize
		if end > totalLen {
			end = totalLen
		}

		// Strict slicing; breaking on whitespace would be nicer but
		// must never drop content
		chunks = append(chunks, string(runes[i:end]))

		if end == totalLen {
			break
		}
	}

	return chunks
}
