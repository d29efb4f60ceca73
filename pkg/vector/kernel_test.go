package vector

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomVector(n int, rng *rand.Rand) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = rng.Float32()*2 - 1
	}
	return v
}

func TestEuclideanDimensionMismatch(t *testing.T) {
	_, err := Euclidean([]float32{1, 2}, []float32{1, 2, 3})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestEuclideanSelfDistanceIsZero(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	v := randomVector(128, rng)
	d, err := Euclidean(v, v)
	require.NoError(t, err)
	assert.InDelta(t, 0, d, 1e-5)
}

func TestEuclideanNonNegativeAndSymmetric(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 50; i++ {
		a := randomVector(64, rng)
		b := randomVector(64, rng)
		dab, err := Euclidean(a, b)
		require.NoError(t, err)
		dba, err := Euclidean(b, a)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, dab, float32(0))
		assert.InDelta(t, dab, dba, 1e-5)
	}
}

func TestCosineRangeAndZeroVector(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 50; i++ {
		a := randomVector(32, rng)
		b := randomVector(32, rng)
		sim, err := Cosine(a, b)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, sim, float32(-1))
		assert.LessOrEqual(t, sim, float32(1))
	}

	zero := make([]float32, 8)
	other := randomVector(8, rng)
	_, err := Cosine(zero, other)
	assert.ErrorIs(t, err, ErrZeroVector)
}

func TestCosineIdenticalVectorIsOne(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	v := randomVector(16, rng)
	sim, err := Cosine(v, v)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-5)
}

func TestNormalizeProducesUnitNorm(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 20; i++ {
		v := randomVector(100, rng)
		require.NoError(t, Normalize(v))
		n := Norm(v)
		assert.InDelta(t, 1.0, n, 1e-5)
	}
}

func TestNormalizeZeroVectorFails(t *testing.T) {
	v := make([]float32, 4)
	err := Normalize(v)
	assert.ErrorIs(t, err, ErrZeroVector)
	for _, x := range v {
		assert.Equal(t, float32(0), x)
	}
}

func TestNormalizedLeavesOriginalUnmodified(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	v := randomVector(12, rng)
	orig := append([]float32(nil), v...)
	out, err := Normalized(v)
	require.NoError(t, err)
	assert.Equal(t, orig, v)
	assert.InDelta(t, 1.0, Norm(out), 1e-5)
}

func TestMeanOfEmptyIsNil(t *testing.T) {
	out, err := Mean(nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestMeanDimensionMismatch(t *testing.T) {
	_, err := Mean([][]float32{{1, 2}, {1, 2, 3}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMeanComponentWise(t *testing.T) {
	vs := [][]float32{{1, 2, 3}, {3, 4, 5}, {5, 6, 7}}
	out, err := Mean(vs)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{3, 4, 5}, out, 1e-5)
}

func TestDotMatchesFastDot(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		a := randomVector(130, rng)
		b := randomVector(130, rng)
		want, err := Dot(a, b)
		require.NoError(t, err)
		got := FastDot(a, b)
		assert.InDelta(t, want, float64(got), 1e-2)
	}
}

func TestFastEuclideanSquaredMatchesEuclidean(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	for i := 0; i < 20; i++ {
		a := randomVector(77, rng)
		b := randomVector(77, rng)
		want, err := Euclidean(a, b)
		require.NoError(t, err)
		got := FastEuclideanSquared(a, b)
		assert.InDelta(t, float64(want)*float64(want), float64(got), 1e-1)
	}
}

func TestFastEuclideanSquaredNeverNegative(t *testing.T) {
	v := []float32{1, 2, 3, 4}
	got := FastEuclideanSquared(v, v)
	assert.GreaterOrEqual(t, got, float32(0))
	assert.Equal(t, float32(0), got)
}

func TestNormSqrtOfDot(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	v := randomVector(10, rng)
	dot, err := Dot(v, v)
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt(dot), Norm(v), 1e-6)
}
