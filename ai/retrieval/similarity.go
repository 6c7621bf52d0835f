package retrieval

import "math"

// CosineSimilarity returns dot(a, b) / (|a| |b|) computed in float64.
// Mismatched lengths, empty or zero-magnitude vectors and non-finite
// intermediate values all yield 0. The result is clamped to [-1, 1].
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0
	}
	return max(-1, min(1, sim))
}
