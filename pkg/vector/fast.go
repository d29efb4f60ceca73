package vector

import "github.com/viterin/vek/vek32"

// FastDot returns the dot product of a and b using vek32's SIMD-dispatched
// implementation (AVX2/SSE where the running CPU supports it, a scalar loop
// otherwise). It panics if len(a) != len(b), matching vek32's own
// contract; callers on an untrusted-length path should call Dot instead and
// reserve FastDot for pkg/hnsw's already-length-checked hot loop.
func FastDot(a, b []float32) float32 {
	return vek32.Dot(a, b)
}

// FastEuclideanSquared returns the squared Euclidean distance between a and
// b, computed from FastDot's SIMD dot products: ||a||^2 - 2(a.b) + ||b||^2.
// Callers that need the distance itself, not its square, should take
// math.Sqrt of the (non-negative, modulo float rounding) result themselves;
// squared distance is what pkg/hnsw's candidate ordering actually needs and
// avoids a sqrt per comparison.
func FastEuclideanSquared(a, b []float32) float32 {
	dot := vek32.Dot(a, b)
	aa := vek32.Dot(a, a)
	bb := vek32.Dot(b, b)
	d := aa - 2*dot + bb
	if d < 0 {
		// Rounding can push a near-zero true distance slightly negative.
		d = 0
	}
	return d
}
