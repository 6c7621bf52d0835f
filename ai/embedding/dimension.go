package embedding

import (
	"fmt"
	"sync/atomic"
)

// DimensionGuard holds the one vector dimension shared by every stored
// embedding. Zero means no dimension has been established yet.
type DimensionGuard struct {
	dim atomic.Int64
}

// NewDimensionGuard returns a guard seeded with dim (0 for unknown).
func NewDimensionGuard(dim int) *DimensionGuard {
	g := &DimensionGuard{}
	if dim > 0 {
		g.dim.Store(int64(dim))
	}
	return g
}

// Dimension returns the established dimension, or 0.
func (g *DimensionGuard) Dimension() int {
	if g == nil {
		return 0
	}
	return int(g.dim.Load())
}

// Establish records dim if none is set and reports the dimension in force.
func (g *DimensionGuard) Establish(dim int) int {
	if dim > 0 {
		g.dim.CompareAndSwap(0, int64(dim))
	}
	return g.Dimension()
}

// Check validates vec against the established dimension. An unset guard
// accepts any non-empty vector.
func (g *DimensionGuard) Check(vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty vector", ErrMalformedEmbedding)
	}
	if want := g.Dimension(); want > 0 && len(vec) != want {
		return fmt.Errorf("%w: got dimension %d, want %d", ErrMalformedEmbedding, len(vec), want)
	}
	return nil
}
