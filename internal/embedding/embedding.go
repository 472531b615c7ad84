package embedding

import (
	"context"
	"math"
)

// Embedder turns text into fixed-length vectors. All vectors returned by one
// embedder share the same dimension and are comparable via cosine similarity.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Cosine returns the cosine similarity of two vectors, or 0 when either
// vector is empty or the dimensions differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// BestMatch returns the index and score of the candidate vector most similar
// to the query vector. Index is -1 when candidates is empty.
func BestMatch(query []float32, candidates [][]float32) (int, float64) {
	bestIdx := -1
	bestScore := 0.0
	for i, candidate := range candidates {
		score := Cosine(query, candidate)
		if bestIdx == -1 || score > bestScore {
			bestIdx = i
			bestScore = score
		}
	}
	return bestIdx, bestScore
}
