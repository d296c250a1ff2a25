package vector

import "math"

// Epsilon guards normalization against zero-length vectors.
const Epsilon = 1e-8

// Cosine returns the cosine similarity of a and b. Zero vectors and vectors
// of different lengths have similarity 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}

	if na == 0 || nb == 0 {
		return 0
	}

	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Normalize returns v scaled to unit length.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}

	norm := math.Sqrt(sum) + Epsilon
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Average returns the normalized element-wise mean of a and b.
func Average(a, b []float32) []float32 {
	n := min(len(a), len(b))
	out := make([]float32, n)
	for i := range n {
		out[i] = (a[i] + b[i]) / 2
	}
	return Normalize(out)
}
