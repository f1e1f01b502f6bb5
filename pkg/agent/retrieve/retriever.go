// Package retrieve implements hybrid semantic retrieval: query
// expansion, a dense and a sparse vector channel, and weighted score
// fusion with deduplication by document id.
package retrieve

import (
	"context"
	"log"
	"sort"
	"strings"

	"ai-docquery-be/pkg/agent/agenterr"
	"ai-docquery-be/pkg/embedding"
	"ai-docquery-be/pkg/llm"
	"ai-docquery-be/pkg/store"
)

// VectorSearcher runs a tenant-scoped similarity search over one
// vector channel. Scores are cosine similarity in [0, 1]. The filter
// carries the query's temporal and numerical constraints; nil means
// tenant scoping only.
type VectorSearcher interface {
	SearchDense(ctx context.Context, userID string, vector []float32, topK int, filter *store.MetadataFilter) ([]store.RetrievedDocument, error)
	SearchSparse(ctx context.Context, userID string, vector []float32, topK int, filter *store.MetadataFilter) ([]store.RetrievedDocument, error)
}

// Config holds the fusion and expansion knobs
type Config struct {
	DenseWeight    float64
	SparseWeight   float64
	ExpansionCount int
	TopK           int
	ScoreThreshold float64
}

// Retriever fans a query out over expanded variants and both channels
type Retriever struct {
	llmProvider llm.LLMProvider
	embedder    embedding.EmbeddingProvider
	sparse      *embedding.SparseEncoder
	searcher    VectorSearcher
	cfg         Config
	logger      *log.Logger
}

func NewRetriever(
	llmProvider llm.LLMProvider,
	embedder embedding.EmbeddingProvider,
	searcher VectorSearcher,
	cfg Config,
	logger *log.Logger,
) *Retriever {
	return &Retriever{
		llmProvider: llmProvider,
		embedder:    embedder,
		sparse:      embedding.NewSparseEncoder(),
		searcher:    searcher,
		cfg:         cfg,
		logger:      logger,
	}
}

// fusedDoc accumulates per-channel best scores for one document id.
// Fusion reads the two channel maxima, so the order in which channel
// results arrive cannot change the final score.
type fusedDoc struct {
	doc    store.RetrievedDocument
	dense  float64
	sparse float64
}

// Retrieve expands the query, searches both channels for every
// variant, and returns the fused, deduplicated top results. The filter
// narrows every channel search; expansion never widens it. Variant
// failures degrade the result set; only a fully failed retrieval is an
// error.
func (r *Retriever) Retrieve(ctx context.Context, userID, query string, filter *store.MetadataFilter) (*store.QueryResult, error) {
	variants := r.expand(ctx, query)

	fused := make(map[string]*fusedDoc)
	channelErrors := 0
	channelsTried := 0

	for _, variant := range variants {
		channelsTried += 2

		if err := r.searchDense(ctx, userID, variant, filter, fused); err != nil {
			channelErrors++
			r.logger.Printf("[RETRIEVE] Dense channel failed for %q: %v", truncate(variant, 50), err)
		}
		if err := r.searchSparse(ctx, userID, variant, filter, fused); err != nil {
			channelErrors++
			r.logger.Printf("[RETRIEVE] Sparse channel failed for %q: %v", truncate(variant, 50), err)
		}
	}

	if channelErrors == channelsTried {
		return nil, agenterr.Retrieval("all retrieval channels failed", nil)
	}

	docs := r.rank(fused)

	r.logger.Printf("[RETRIEVE] %d variants → %d documents (threshold %.2f)",
		len(variants), len(docs), r.cfg.ScoreThreshold)

	return &store.QueryResult{
		Content:         joinContents(docs),
		SourceDocuments: docs,
		Metadata: map[string]interface{}{
			"query_variants":  variants,
			"total_documents": len(docs),
		},
	}, nil
}

func (r *Retriever) expand(ctx context.Context, query string) []string {
	if r.cfg.ExpansionCount <= 0 {
		return []string{query}
	}

	response, err := r.llmProvider.Generate(ctx,
		buildExpansionPrompt(query, r.cfg.ExpansionCount), llm.WithTemperature(0.7))
	if err != nil {
		// Expansion is best-effort: fall back to the original query
		r.logger.Printf("[RETRIEVE] Expansion failed, using original query: %v", err)
		return []string{query}
	}

	return parseExpansions(query, response, r.cfg.ExpansionCount)
}

func (r *Retriever) searchDense(ctx context.Context, userID, variant string, filter *store.MetadataFilter, fused map[string]*fusedDoc) error {
	resp, err := r.embedder.Generate(variant, "retrieval_query")
	if err != nil {
		return err
	}

	docs, err := r.searcher.SearchDense(ctx, userID, resp.Embedding.Values, r.cfg.TopK, filter)
	if err != nil {
		return err
	}

	mergeChannel(fused, docs, func(f *fusedDoc, score float64) {
		if score > f.dense {
			f.dense = score
		}
	})
	return nil
}

func (r *Retriever) searchSparse(ctx context.Context, userID, variant string, filter *store.MetadataFilter, fused map[string]*fusedDoc) error {
	vec := r.sparse.Encode(variant)

	docs, err := r.searcher.SearchSparse(ctx, userID, vec, r.cfg.TopK, filter)
	if err != nil {
		return err
	}

	mergeChannel(fused, docs, func(f *fusedDoc, score float64) {
		if score > f.sparse {
			f.sparse = score
		}
	})
	return nil
}

// mergeChannel folds one channel's results into the fusion map. The
// first content seen for an id wins; later sightings only update
// scores.
func mergeChannel(fused map[string]*fusedDoc, docs []store.RetrievedDocument, record func(*fusedDoc, float64)) {
	for _, doc := range docs {
		f, exists := fused[doc.ID]
		if !exists {
			f = &fusedDoc{doc: doc}
			fused[doc.ID] = f
		}
		record(f, doc.Score)
	}
}

func (r *Retriever) rank(fused map[string]*fusedDoc) []store.RetrievedDocument {
	docs := make([]store.RetrievedDocument, 0, len(fused))
	for _, f := range fused {
		score := r.cfg.DenseWeight*f.dense + r.cfg.SparseWeight*f.sparse
		if score < r.cfg.ScoreThreshold {
			continue
		}
		doc := f.doc
		doc.Score = score
		docs = append(docs, doc)
	}

	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Score != docs[j].Score {
			return docs[i].Score > docs[j].Score
		}
		return docs[i].ID < docs[j].ID
	})

	if len(docs) > r.cfg.TopK {
		docs = docs[:r.cfg.TopK]
	}
	return docs
}

func joinContents(docs []store.RetrievedDocument) string {
	var sb strings.Builder
	for i, doc := range docs {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(doc.Content)
	}
	return sb.String()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
