package semantic

import "math"

const cosineEpsilon = 1e-12

// Cosine returns the cosine similarity of a and b. Each norm gets a small epsilon so a zero
// vector scores 0 instead of dividing by zero. Extra trailing elements of the longer vector
// are ignored.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	return dot / ((math.Sqrt(normA) + cosineEpsilon) * (math.Sqrt(normB) + cosineEpsilon))
}
