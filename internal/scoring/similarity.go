package scoring

import "math"

// Cosine maps the cosine of two vectors into [0,1] via (cos+1)/2.
// Mismatched lengths and zero-norm vectors are not comparable and return the
// neutral 0.5 rather than an error; retrieval treats "unknown" as midway.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0.5
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0.5
	}

	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return clamp((cos+1)/2, 0, 1)
}

// CosineDistance is the ascending-sort companion used by the semantic
// channel: 0 for identical directions, 1 for opposite.
func CosineDistance(a, b []float32) float64 {
	return 1 - Cosine(a, b)
}
