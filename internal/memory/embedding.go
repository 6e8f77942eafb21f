package memory

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EmbeddingToBlob packs a float32 vector as contiguous little-endian bytes.
func EmbeddingToBlob(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	blob := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(f))
	}
	return blob
}

// BlobToEmbedding unpacks a blob written by EmbeddingToBlob. Blob length must
// be a multiple of 4.
func BlobToEmbedding(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(blob))
	}
	if len(blob) == 0 {
		return nil, nil
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}
