package sqlite

import (
	"encoding/binary"
	"fmt"
	"math"
)

// float32ArrayToBLOB encodes a vector as little-endian float32 values.
func float32ArrayToBLOB(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], math.Float32bits(v))
	}
	return buf
}

// blobToFloat32Array is the inverse of float32ArrayToBLOB. A NULL column
// decodes to nil.
func blobToFloat32Array(blob []byte) ([]float32, error) {
	if blob == nil {
		return nil, nil
	}
	if len(blob) == 0 || len(blob)%4 != 0 {
		return nil, fmt.Errorf("invalid BLOB length: %d is not a positive multiple of 4", len(blob))
	}

	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4 : i*4+4]))
	}
	return vec, nil
}
