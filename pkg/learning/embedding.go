package learning

import (
	"hash/fnv"
	"math"
	"strings"
)

// EmbeddingDimensions is the fixed vector length every embedding produces,
// matching what the Store's learning_embeddings sidecar table expects.
const EmbeddingDimensions = 64

// Embedder is the pluggable text→vector function the dedup check runs
// against, per SPEC_FULL.md §4.9 ("the core treats this as a pure
// function"). No example repo in the corpus ships a local embedding
// model or wires a hosted embeddings endpoint, so this package provides
// a deterministic, dependency-free default: feature-hashed term
// frequencies projected into a fixed-dimension vector. It is stable
// (same text always yields the same vector) and needs no network call or
// API key, which matters for a component that runs inside a cost-gated
// worker and must degrade gracefully without an oracle.
type Embedder func(text string) []float64

// HashEmbed is the default Embedder. It tokenizes on whitespace/punctuation,
// hashes each lowercase token into one of EmbeddingDimensions buckets with
// FNV-1a, accumulates term counts, and L2-normalizes the result so cosine
// similarity behaves sensibly.
func HashEmbed(text string) []float64 {
	vec := make([]float64, EmbeddingDimensions)
	for _, tok := range tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		bucket := int(h.Sum32()) % EmbeddingDimensions
		if bucket < 0 {
			bucket += EmbeddingDimensions
		}
		vec[bucket]++
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func tokenize(text string) []string {
	lower := strings.ToLower(text)
	return strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}
