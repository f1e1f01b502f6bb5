package embedding

// EmbeddingProvider generates dense embeddings. taskType distinguishes
// "retrieval_document" (ingest) from "retrieval_query" (search) for
// providers with asymmetric embedding modes; providers without the
// distinction ignore it.
type EmbeddingProvider interface {
	Generate(text string, taskType string) (*EmbeddingResponse, error)
}
