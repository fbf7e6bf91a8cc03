package metric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEuclidean(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}

	assert.InDelta(t, 1.4142135, Euclidean(a, b), 1e-6)
	assert.Equal(t, float32(0), Euclidean(a, a))
}

func TestSquaredL2(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 6, 3}

	assert.Equal(t, float32(25), SquaredL2(a, b))
}

func TestCosineDistance(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	c := []float32{2, 0}

	assert.InDelta(t, 1.0, CosineDistance(a, b), 1e-6)
	// Identical direction, different magnitude.
	assert.InDelta(t, 0.0, CosineDistance(a, c), 1e-6)
}

func TestDistanceSymmetry(t *testing.T) {
	a := []float32{0.3, 0.7, 0.1}
	b := []float32{0.9, 0.2, 0.5}

	for _, fn := range []Func{Euclidean, SquaredL2, CosineDistance} {
		assert.Equal(t, fn(a, b), fn(b, a))
	}
}

func TestCosineSimilarity(t *testing.T) {
	t.Run("identical direction", func(t *testing.T) {
		sim, err := CosineSimilarity([]float32{1, 1}, []float32{2, 2})
		require.NoError(t, err)
		assert.InDelta(t, 1.0, sim, 1e-6)
	})

	t.Run("size mismatch", func(t *testing.T) {
		_, err := CosineSimilarity([]float32{1}, []float32{1, 2})
		require.ErrorIs(t, err, ErrVectorSizeMismatch)
	})

	t.Run("zero magnitude", func(t *testing.T) {
		_, err := CosineSimilarity([]float32{0, 0}, []float32{1, 2})
		require.ErrorIs(t, err, ErrZeroMagnitude)
	})
}

func TestCheckedDistance(t *testing.T) {
	_, err := Distance(Euclidean, []float32{1}, []float32{1, 2})
	require.ErrorIs(t, err, ErrVectorSizeMismatch)

	d, err := Distance(Euclidean, []float32{0, 3}, []float32{4, 0})
	require.NoError(t, err)
	assert.Equal(t, float32(5), d)
}

func TestNormalizeL2InPlace(t *testing.T) {
	v := []float32{3, 4}
	require.True(t, NormalizeL2InPlace(v))
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	require.False(t, NormalizeL2InPlace([]float32{0, 0}))
	require.False(t, NormalizeL2InPlace(nil))
}
