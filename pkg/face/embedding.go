package face

import (
	"errors"
	"math"
)

// ErrZeroNorm is returned when an embedding cannot be normalized.
var ErrZeroNorm = errors.New("embedding has zero norm")

// Embedding is a face descriptor. Its dimension is fixed by the model that
// produced it (128 for dlib).
type Embedding []float32

// Clone returns a copy of e.
func (e Embedding) Clone() Embedding {
	if e == nil {
		return nil
	}
	out := make(Embedding, len(e))
	copy(out, e)
	return out
}

// Norm returns the Euclidean norm of e.
func (e Embedding) Norm() float64 {
	var sum float64
	for _, v := range e {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Valid reports whether e is non-empty, finite and has a non-zero norm.
func (e Embedding) Valid() bool {
	n := e.Norm()
	return len(e) > 0 && n > 0 && !math.IsInf(n, 0) && !math.IsNaN(n)
}

// Normalize returns a unit-norm copy of e.
func (e Embedding) Normalize() (Embedding, error) {
	if !e.Valid() {
		return nil, ErrZeroNorm
	}
	n := e.Norm()
	out := make(Embedding, len(e))
	for i, v := range e {
		out[i] = float32(float64(v) / n)
	}
	return out, nil
}

// CosineSimilarity computes (a.b)/(|a||b|). It does not assume either vector
// is normalized. Mismatched dimensions or zero vectors yield 0.
func CosineSimilarity(a, b Embedding) float64 {
	if len(a) != len(b) || len(a) == 0 {
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
	// Clamp floating point drift.
	return math.Max(-1, math.Min(1, sim))
}

// EuclideanDistance calculates the Euclidean distance between two embeddings.
func EuclideanDistance(a, b Embedding) float64 {
	if len(a) != len(b) {
		return math.MaxFloat64
	}

	var sum float64
	for i := range a {
		diff := float64(a[i] - b[i])
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
