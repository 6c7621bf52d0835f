package retrieval

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{0.3, 0.4, 0.5}, []float32{0.3, 0.4, 0.5}, 1},
		{"scaled", []float32{1, 2, 3}, []float32{2, 4, 6}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 1}, []float32{-1, -1}, -1},
		{"zero magnitude", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"empty", nil, nil, 0},
		{"infinite component", []float32{float32(math.Inf(1)), 1}, []float32{1, 1}, 0},
		{"nan component", []float32{float32(math.NaN()), 1}, []float32{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestCosineSimilarity_Bounded(t *testing.T) {
	// Large components would overflow float32 accumulation.
	a := []float32{3e38, 3e38, 3e38}
	sim := CosineSimilarity(a, a)
	assert.InDelta(t, 1, sim, 1e-9)
	assert.LessOrEqual(t, sim, 1.0)

	b := []float32{1e-30, 2e-30}
	assert.InDelta(t, 1, CosineSimilarity(b, b), 1e-9)
}
