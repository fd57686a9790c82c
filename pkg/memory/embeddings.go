package memory

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// EmbeddingDim is the fixed width of document vectors.
const EmbeddingDim = 384

// Embed produces a deterministic pseudo-embedding from the SHA-256 digest
// of the text. Identical texts always embed identically, which keeps
// retrieval reproducible without a model dependency.
func Embed(text string) []float32 {
	digest := sha256.Sum256([]byte(text))

	need := EmbeddingDim * 4
	buf := make([]byte, 0, need+len(digest))
	for len(buf) < need {
		buf = append(buf, digest[:]...)
	}
	buf = buf[:need]

	vec := make([]float32, EmbeddingDim)
	for i := 0; i < EmbeddingDim; i++ {
		n := binary.LittleEndian.Uint32(buf[i*4 : i*4+4])
		vec[i] = float32(int32(n%2000)-1000) / 1000.0
	}
	return vec
}

// CosineDistance returns 1 minus the cosine similarity of two vectors.
// Mismatched or zero vectors yield the maximum distance of 1.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
