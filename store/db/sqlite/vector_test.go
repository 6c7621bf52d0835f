package sqlite

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorBLOB(t *testing.T) {
	vec := []float32{0, 1, -1, 0.5, math.MaxFloat32, float32(math.Inf(-1))}
	blob := float32ArrayToBLOB(vec)
	assert.Len(t, blob, len(vec)*4)

	got, err := blobToFloat32Array(blob)
	require.NoError(t, err)
	assert.Equal(t, vec, got)
}

func TestBlobToFloat32Array_Invalid(t *testing.T) {
	got, err := blobToFloat32Array(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = blobToFloat32Array([]byte{})
	require.Error(t, err)

	_, err = blobToFloat32Array([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestWithPragmas(t *testing.T) {
	assert.Contains(t, withPragmas("/tmp/a.db"), "/tmp/a.db?_pragma=")
	assert.Contains(t, withPragmas("file:/tmp/a.db?cache=shared"), "cache=shared&_pragma=")
}
