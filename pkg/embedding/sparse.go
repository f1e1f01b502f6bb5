package embedding

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// SparseDimension is the fixed width of hashed term-weight vectors.
// Chosen small enough to store alongside dense vectors in pgvector.
const SparseDimension = 1024

// SparseEncoder produces term-weighted (lexical) vectors by feature
// hashing. Two texts sharing vocabulary get overlapping buckets, so
// cosine similarity over these vectors approximates lexical overlap.
type SparseEncoder struct {
	dimension int
}

func NewSparseEncoder() *SparseEncoder {
	return &SparseEncoder{dimension: SparseDimension}
}

// Encode builds a unit-length hashed term-frequency vector for text.
// An empty or stopword-only text yields the zero vector.
func (e *SparseEncoder) Encode(text string) []float32 {
	vec := make([]float32, e.dimension)

	counts := make(map[string]int)
	for _, term := range Tokenize(text) {
		counts[term]++
	}
	if len(counts) == 0 {
		return vec
	}

	for term, count := range counts {
		h := fnv.New32a()
		h.Write([]byte(term))
		bucket := int(h.Sum32()) % e.dimension
		if bucket < 0 {
			bucket += e.dimension
		}
		// Sublinear term frequency keeps one repeated word from
		// dominating the whole vector
		vec[bucket] += float32(1 + math.Log(float64(count)))
	}

	return normalizeVector(vec)
}

// Tokenize lowercases, strips punctuation and drops stopwords and
// single-character fragments.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "he": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"or": true, "that": true, "the": true, "to": true, "was": true, "were": true,
	"will": true, "with": true, "what": true, "how": true, "my": true,
}
